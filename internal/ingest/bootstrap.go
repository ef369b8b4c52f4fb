package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Aman-CERP/roomdex/internal/chat"
	"github.com/Aman-CERP/roomdex/internal/engine"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/mapping"
)

// BootstrapConfig contains the collaborators of a Bootstrapper.
type BootstrapConfig struct {
	// Directory resolves aliases and room names. Without one only room ids
	// can be bound and names default to the room id.
	Directory chat.Directory
	Store     mapping.Store
	Engine    engine.Engine
	Retry     rxerrors.RetryConfig
	Logger    *slog.Logger
}

// Bootstrapper binds configured rooms to their indexes.
type Bootstrapper struct {
	directory chat.Directory
	store     mapping.Store
	engine    engine.Engine
	retry     rxerrors.RetryConfig
	logger    *slog.Logger
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(cfg BootstrapConfig) *Bootstrapper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		directory: cfg.Directory,
		store:     cfg.Store,
		engine:    cfg.Engine,
		retry:     cfg.Retry,
		logger:    logger,
	}
}

// Report lists what one Apply did.
type Report struct {
	Bound  []mapping.RoomMapping
	Failed map[string]error
}

// Apply binds every index name in indices to its room reference, an id
// (!id:server) or an alias (#alias:server), and makes sure the index
// exists. One failing entry does not stop the others; their errors are
// joined into the returned error.
func (b *Bootstrapper) Apply(ctx context.Context, indices map[string]string) (*Report, error) {
	names := make([]string, 0, len(indices))
	for name := range indices {
		names = append(names, name)
	}
	sort.Strings(names)

	report := &Report{Failed: make(map[string]error)}
	var errs []error
	for _, index := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		m, err := b.bind(ctx, index, indices[index])
		if err != nil {
			b.logger.Warn("index_bootstrap_failed",
				slog.String("index", index),
				slog.String("room", indices[index]),
				slog.String("error", err.Error()))
			report.Failed[index] = err
			errs = append(errs, fmt.Errorf("%s: %w", index, err))
			continue
		}
		report.Bound = append(report.Bound, m)
	}

	b.logger.Info("indices_bootstrapped",
		slog.Int("bound", len(report.Bound)),
		slog.Int("failed", len(report.Failed)))
	return report, errors.Join(errs...)
}

func (b *Bootstrapper) bind(ctx context.Context, index, ref string) (mapping.RoomMapping, error) {
	if err := engine.ValidateIndexName(index); err != nil {
		return mapping.RoomMapping{}, rxerrors.ValidationError("invalid index name", err).
			WithDetail("index", index)
	}

	room, err := b.resolve(ctx, ref)
	if err != nil {
		return mapping.RoomMapping{}, err
	}

	var name *string
	if b.directory != nil {
		n, err := b.directory.RoomName(ctx, room)
		if err != nil {
			b.logger.Debug("room_name_unavailable",
				slog.String("room_id", room),
				slog.String("error", err.Error()))
		} else if n != "" {
			name = &n
		}
	}

	if err := mapping.SetEntry(ctx, b.store, room, &index, name); err != nil {
		return mapping.RoomMapping{}, rxerrors.StoreError("bind room to index", err).
			WithDetail("room_id", room)
	}

	err = rxerrors.Retry(ctx, b.retry, func() error {
		return b.engine.EnsureIndex(ctx, index)
	})
	if err != nil {
		if _, ok := rxerrors.As(err); ok {
			return mapping.RoomMapping{}, err
		}
		return mapping.RoomMapping{}, rxerrors.EngineError("create index", err).WithDetail("index", index)
	}

	m, _, err := b.store.Lookup(ctx, room)
	if err != nil {
		return mapping.RoomMapping{}, rxerrors.StoreError("read back binding", err)
	}
	m.RoomID = room
	m.DisplayName = m.Name()
	return m, nil
}

func (b *Bootstrapper) resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "!") && b.directory == nil:
		return ref, nil
	case strings.HasPrefix(ref, "!"), strings.HasPrefix(ref, "#"):
		if b.directory == nil {
			return "", rxerrors.ValidationError("alias needs a chat connection to resolve", nil).
				WithDetail("room", ref)
		}
		room, err := b.directory.ResolveRoom(ctx, ref)
		if err != nil {
			return "", rxerrors.New(rxerrors.ErrCodeRoomUnknown, "resolve room", err).
				WithDetail("room", ref)
		}
		return room, nil
	default:
		return "", rxerrors.ValidationError("room must be an id (!...) or alias (#...)", nil).
			WithDetail("room", ref)
	}
}
