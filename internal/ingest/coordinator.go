package ingest

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/roomdex/internal/chat"
	"github.com/Aman-CERP/roomdex/internal/document"
	"github.com/Aman-CERP/roomdex/internal/engine"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/mapping"
)

// Outcome is what happened to one message.
type Outcome int

const (
	// OutcomeIndexed means a document was submitted.
	OutcomeIndexed Outcome = iota
	// OutcomeSkipped means the builder produced no document.
	OutcomeSkipped
	// OutcomeUnmapped means the room is not bound to an index.
	OutcomeUnmapped
	// OutcomeFailed means the lookup or the submission failed.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIndexed:
		return "indexed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeUnmapped:
		return "unmapped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DocumentBuilder converts a message to a document, or nil to skip it.
type DocumentBuilder interface {
	Build(ctx context.Context, msg chat.Message) *document.SearchDocument
}

// CoordinatorConfig contains the collaborators of a Coordinator.
type CoordinatorConfig struct {
	Builder DocumentBuilder
	Store   mapping.Store
	Engine  engine.Engine
	Logger  *slog.Logger
}

// Coordinator indexes one message at a time.
type Coordinator struct {
	builder DocumentBuilder
	store   mapping.Store
	engine  engine.Engine
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		builder: cfg.Builder,
		store:   cfg.Store,
		engine:  cfg.Engine,
		logger:  logger,
	}
}

// HandleMessage builds msg, resolves its room's index and upserts the
// document. Skips and unbound rooms are not errors. A store failure comes
// back as ERR_202_STORE_TXN and a submission failure as a retryable
// ERR_301_ENGINE_UNAVAILABLE; neither touches the mapping.
func (c *Coordinator) HandleMessage(ctx context.Context, msg chat.Message) (Outcome, error) {
	doc := c.builder.Build(ctx, msg)
	if doc == nil {
		return OutcomeSkipped, nil
	}

	index, ok, err := mapping.GetIndex(ctx, c.store, msg.Room)
	if err != nil {
		return OutcomeFailed, rxerrors.StoreError("look up index for room", err).
			WithDetail("room_id", msg.Room)
	}
	if !ok {
		c.logger.Debug("message_unmapped",
			slog.String("room_id", msg.Room),
			slog.String("event_id", doc.EventID))
		return OutcomeUnmapped, nil
	}

	if err := c.engine.Upsert(ctx, index, *doc); err != nil {
		if re, ok := rxerrors.As(err); ok {
			return OutcomeFailed, re.WithDetail("index", index).WithDetail("event_id", doc.EventID)
		}
		return OutcomeFailed, rxerrors.EngineError("submit document", err).
			WithDetail("index", index).
			WithDetail("event_id", doc.EventID)
	}

	c.logger.Debug("message_indexed",
		slog.String("index", index),
		slog.String("event_id", doc.EventID),
		slog.Bool("edit", msg.Edit != nil))
	return OutcomeIndexed, nil
}
