package mapping

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketIndex = []byte("index")
	bucketName  = []byte("name")
)

// BoltStore implements Store on bbolt. bbolt holds an exclusive file lock,
// so only one process can open the store.
type BoltStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the bbolt file at path.
// Fails after one second if another process holds the file.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping store %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketIndex, bucketName} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize mapping store: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

func readMapping(tx *bolt.Tx, roomID string) (RoomMapping, bool) {
	m := RoomMapping{RoomID: roomID}
	index := tx.Bucket(bucketIndex).Get([]byte(roomID))
	name := tx.Bucket(bucketName).Get([]byte(roomID))
	// bbolt slices are only valid inside the transaction
	m.IndexName = string(index)
	m.DisplayName = string(name)
	return m, index != nil || name != nil
}

func writeMapping(tx *bolt.Tx, roomID string, m RoomMapping) error {
	if m.IndexName != "" {
		if err := tx.Bucket(bucketIndex).Put([]byte(roomID), []byte(m.IndexName)); err != nil {
			return err
		}
	}
	if m.DisplayName != "" {
		if err := tx.Bucket(bucketName).Put([]byte(roomID), []byte(m.DisplayName)); err != nil {
			return err
		}
	}
	return nil
}

// Lookup implements Store.
func (s *BoltStore) Lookup(ctx context.Context, roomID string) (RoomMapping, bool, error) {
	if err := ctx.Err(); err != nil {
		return RoomMapping{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return RoomMapping{}, false, ErrClosed
	}

	var (
		m  RoomMapping
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		m, ok = readMapping(tx, roomID)
		return nil
	})
	return m, ok, err
}

// Update implements Store.
func (s *BoltStore) Update(ctx context.Context, roomID string, fn func(*RoomMapping) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		m, _ := readMapping(tx, roomID)
		if err := fn(&m); err != nil {
			return err
		}
		if m.IndexName == "" && m.DisplayName == "" {
			return nil
		}
		return writeMapping(tx, roomID, m)
	})
}

// Move implements Store.
func (s *BoltStore) Move(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	// read and write in the same transaction so a concurrent writer cannot
	// slip in between
	return s.db.Update(func(tx *bolt.Tx) error {
		src, _ := readMapping(tx, from)
		if src.IndexName == "" {
			return ErrSourceMissing
		}
		return writeMapping(tx, to, RoomMapping{
			RoomID:      to,
			IndexName:   src.IndexName,
			DisplayName: src.Name(),
		})
	})
}

// List implements Store.
func (s *BoltStore) List(ctx context.Context) ([]RoomMapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var rooms []RoomMapping
	err := s.db.View(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketName)
		return tx.Bucket(bucketIndex).ForEach(func(k, v []byte) error {
			rooms = append(rooms, RoomMapping{
				RoomID:      string(k),
				IndexName:   string(v),
				DisplayName: string(names.Get(k)),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return normalize(rooms), nil
}

// Close implements Store.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// normalize defaults display names and applies the List ordering.
func normalize(rooms []RoomMapping) []RoomMapping {
	for i := range rooms {
		rooms[i].DisplayName = rooms[i].Name()
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].IndexName != rooms[j].IndexName {
			return rooms[i].IndexName < rooms[j].IndexName
		}
		return rooms[i].RoomID < rooms[j].RoomID
	})
	return rooms
}
