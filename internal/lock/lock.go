// Package lock guards the state directory so only one process writes the
// mapping store and the embedded indexes at a time.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
)

// FileName is the lock file created inside the guarded directory.
const FileName = "roomdex.lock"

// FileLock is a cross-process exclusive lock on a directory.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock for dir. Nothing is acquired yet.
func New(dir string) *FileLock {
	path := filepath.Join(dir, FileName)
	return &FileLock{path: path, flock: flock.New(path)}
}

func (l *FileLock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	return nil
}

// TryLock acquires the lock without blocking. It returns false when another
// process holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := l.ensureDir(); err != nil {
		return false, err
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.path, err)
	}
	l.locked = ok
	return ok, nil
}

// Acquire waits up to wait for the lock. A lock still held by another
// process afterwards is ERR_204_STORE_LOCKED.
func (l *FileLock) Acquire(ctx context.Context, wait time.Duration) error {
	if err := l.ensureDir(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ok, err := l.flock.TryLockContext(ctx, 50*time.Millisecond)
	if ok {
		l.locked = true
		return nil
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("acquire %s: %w", l.path, err)
	}
	return rxerrors.New(rxerrors.ErrCodeStoreLocked, "state directory is in use by another roomdex process", err).
		WithDetail("lock", l.path).
		WithSuggestion("stop the other 'roomdex run', or serve queries with 'roomdex web' and the sqlite state backend")
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Locked reports whether this process holds the lock.
func (l *FileLock) Locked() bool {
	return l.locked
}
