// Package mapping persists the room-to-index mapping: for each room id, the
// search index its messages go to and the room's display name.
//
// Two backends share one contract. The bbolt store is the default and is
// owned by a single process. The sqlite store lets a separate `roomdex web`
// process read while the bot writes.
package mapping

import (
	"context"
	"errors"
)

var (
	// ErrEmptyIndex is returned when an index name would be set to "".
	ErrEmptyIndex = errors.New("index name must not be empty")

	// ErrSourceMissing is returned by Move when the source room has no index.
	ErrSourceMissing = errors.New("source room has no index mapping")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("mapping store is closed")
)

// RoomMapping is one logical row: a room bound to a search index.
type RoomMapping struct {
	RoomID      string `json:"room_id"`
	IndexName   string `json:"index_name"`
	DisplayName string `json:"display_name"`
}

// Name returns the display name, defaulting to the room id.
func (m RoomMapping) Name() string {
	if m.DisplayName == "" {
		return m.RoomID
	}
	return m.DisplayName
}

// Store is the mapping store.
//
// Every mutation is a single write transaction. Readers see a consistent
// snapshot and never observe half of a mutation.
type Store interface {
	// Lookup returns the raw mapping for roomID. ok is false when neither an
	// index nor a name has been stored. DisplayName is "" when unset.
	Lookup(ctx context.Context, roomID string) (m RoomMapping, ok bool, err error)

	// Update runs fn against the current mapping for roomID inside one write
	// transaction and persists the result. A non-nil error from fn aborts
	// the transaction. Fields left "" by fn are not written.
	Update(ctx context.Context, roomID string, fn func(m *RoomMapping) error) error

	// Move copies the index and name of from to the key to, atomically.
	// The entry under from is left in place.
	Move(ctx context.Context, from, to string) error

	// List returns every room that has an index, ordered by index name and
	// then room id, with the display name defaulted.
	List(ctx context.Context) ([]RoomMapping, error)

	Close() error
}
