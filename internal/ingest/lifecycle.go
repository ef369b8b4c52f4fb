package ingest

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Aman-CERP/roomdex/internal/chat"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/mapping"
)

// LifecycleConfig contains the collaborators of a Lifecycle handler.
type LifecycleConfig struct {
	Store  mapping.Store
	Joiner chat.Joiner
	Logger *slog.Logger
}

// Lifecycle applies room renames and room replacements to the mapping.
type Lifecycle struct {
	store  mapping.Store
	joiner chat.Joiner
	logger *slog.Logger
}

// NewLifecycle creates a Lifecycle handler.
func NewLifecycle(cfg LifecycleConfig) *Lifecycle {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{store: cfg.Store, joiner: cfg.Joiner, logger: logger}
}

// Rename records a new display name. The index binding is untouched and an
// empty name changes nothing.
func (l *Lifecycle) Rename(ctx context.Context, ev chat.RoomName) error {
	if ev.Name == "" {
		return nil
	}
	if err := mapping.SetName(ctx, l.store, ev.Room, ev.Name); err != nil {
		return rxerrors.StoreError("record room name", err).WithDetail("room_id", ev.Room)
	}
	l.logger.Info("room_renamed",
		slog.String("room_id", ev.Room),
		slog.String("name", ev.Name))
	return nil
}

// Tombstone migrates the mapping of a replaced room to its successor.
//
// The successor is joined first; if that fails nothing is migrated. A failed
// move after a successful join leaves the successor joined but unmapped, and
// handling the same tombstone again repairs it since joining twice is a no-op.
func (l *Lifecycle) Tombstone(ctx context.Context, ev chat.Tombstone) error {
	if ev.Successor == "" {
		return rxerrors.ValidationError("tombstone without replacement room", nil).
			WithDetail("room_id", ev.Room)
	}

	if err := l.joiner.JoinRoom(ctx, ev.Successor); err != nil {
		return rxerrors.New(rxerrors.ErrCodeChatJoinFailed, "join replacement room", err).
			WithDetail("room_id", ev.Room).
			WithDetail("successor", ev.Successor)
	}

	if err := l.store.Move(ctx, ev.Room, ev.Successor); err != nil {
		if errors.Is(err, mapping.ErrSourceMissing) {
			return rxerrors.New(rxerrors.ErrCodeMappingSourceMissing, "replaced room has no index", err).
				WithDetail("room_id", ev.Room).
				WithDetail("successor", ev.Successor)
		}
		return rxerrors.StoreError("migrate room mapping", err).
			WithDetail("room_id", ev.Room).
			WithDetail("successor", ev.Successor)
	}

	l.logger.Info("tombstone_migrated",
		slog.String("room_id", ev.Room),
		slog.String("successor", ev.Successor),
		slog.String("reason", ev.Reason))
	return nil
}
