package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reports changes to one file.
type ConfigWatcher struct {
	path   string
	opts   Options
	logger *slog.Logger
}

// NewConfigWatcher creates a watcher for path.
func NewConfigWatcher(path string, opts Options, logger *slog.Logger) *ConfigWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		path = filepath.Join(dir, filepath.Base(path))
	}
	return &ConfigWatcher{path: path, opts: opts.WithDefaults(), logger: logger}
}

// Path returns the absolute path being watched.
func (w *ConfigWatcher) Path() string {
	return w.path
}

// Run calls onChange after each debounced change that leaves the file in
// place, until ctx is cancelled. An error from onChange is logged and
// watching continues.
func (w *ConfigWatcher) Run(ctx context.Context, onChange func(ctx context.Context) error) error {
	d := NewDebouncer(w.opts.Debounce)
	defer d.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.observe(ctx, d.Add)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil {
				return err
			}
			return nil
		case batch := <-d.Output():
			if !w.changed(batch) {
				continue
			}
			w.logger.Info("config_changed", slog.String("path", w.path))
			if err := onChange(ctx); err != nil {
				w.logger.Warn("config_reload_failed",
					slog.String("path", w.path),
					slog.String("error", err.Error()))
			}
		}
	}
}

// changed reports whether batch leaves the watched file present.
func (w *ConfigWatcher) changed(batch []FileEvent) bool {
	for _, ev := range batch {
		if ev.Path == w.path && ev.Operation != OpDelete {
			return true
		}
	}
	return false
}

// observe feeds raw events to emit until ctx is done.
func (w *ConfigWatcher) observe(ctx context.Context, emit func(FileEvent)) error {
	if !w.opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			return w.notify(ctx, fsw, emit)
		}
		w.logger.Warn("fsnotify_unavailable_polling",
			slog.String("error", err.Error()),
			slog.Duration("interval", w.opts.PollInterval))
	}
	return w.poll(ctx, emit)
}

func (w *ConfigWatcher) notify(ctx context.Context, fsw *fsnotify.Watcher, emit func(FileEvent)) error {
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Debug("config_watch_started", slog.String("path", w.path), slog.String("mode", "fsnotify"))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			op, ok := translate(ev.Op)
			if !ok {
				continue
			}
			emit(FileEvent{Path: w.path, Operation: op, Timestamp: time.Now()})
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

func translate(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete, true
	default:
		return 0, false
	}
}

type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

func (s fileState) same(o fileState) bool {
	return s.exists == o.exists && s.size == o.size && s.modTime.Equal(o.modTime)
}

func stat(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, size: info.Size(), modTime: info.ModTime()}
}

func (w *ConfigWatcher) poll(ctx context.Context, emit func(FileEvent)) error {
	w.logger.Debug("config_watch_started", slog.String("path", w.path), slog.String("mode", "polling"))

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	last := stat(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		cur := stat(w.path)
		switch {
		case cur.same(last):
			continue
		case !last.exists && cur.exists:
			emit(FileEvent{Path: w.path, Operation: OpCreate, Timestamp: time.Now()})
		case last.exists && !cur.exists:
			emit(FileEvent{Path: w.path, Operation: OpDelete, Timestamp: time.Now()})
		default:
			emit(FileEvent{Path: w.path, Operation: OpModify, Timestamp: time.Now()})
		}
		last = cur
	}
}
