package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/roomdex/internal/chat"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
)

// DefaultDrainTimeout bounds the event in flight at shutdown.
const DefaultDrainTimeout = 10 * time.Second

// MemberInvalidator drops cached member profiles.
type MemberInvalidator interface {
	InvalidateMember(room, user string)
}

// DispatcherConfig contains the collaborators of a Dispatcher.
type DispatcherConfig struct {
	Coordinator *Coordinator
	Lifecycle   *Lifecycle
	// Members is optional.
	Members MemberInvalidator
	// DrainTimeout bounds how long the event in flight may run after the
	// dispatcher context is cancelled.
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// Stats counts processed events.
type Stats struct {
	Received int64 `json:"received"`
	Indexed  int64 `json:"indexed"`
	Skipped  int64 `json:"skipped"`
	Unmapped int64 `json:"unmapped"`
	Failed   int64 `json:"failed"`
	Renamed  int64 `json:"renamed"`
	Migrated int64 `json:"migrated"`
}

// Dispatcher is the single consumer of the chat event stream.
type Dispatcher struct {
	coordinator *Coordinator
	lifecycle   *Lifecycle
	members     MemberInvalidator
	drain       time.Duration
	logger      *slog.Logger

	received atomic.Int64
	indexed  atomic.Int64
	skipped  atomic.Int64
	unmapped atomic.Int64
	failed   atomic.Int64
	renamed  atomic.Int64
	migrated atomic.Int64
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	drain := cfg.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}
	return &Dispatcher{
		coordinator: cfg.Coordinator,
		lifecycle:   cfg.Lifecycle,
		members:     cfg.Members,
		drain:       drain,
		logger:      logger,
	}
}

// Run processes events in order until ctx is cancelled or events is closed.
// Errors are logged and never stop the loop.
func (d *Dispatcher) Run(ctx context.Context, events <-chan chat.Event) error {
	d.logger.Info("dispatcher_started")
	defer func() {
		s := d.Stats()
		d.logger.Info("dispatcher_stopped",
			slog.Int64("received", s.Received),
			slog.Int64("indexed", s.Indexed),
			slog.Int64("failed", s.Failed))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			d.process(ctx, ev)
		}
	}
}

// process handles one event on a context that survives cancellation of ctx
// for at most the drain timeout.
func (d *Dispatcher) process(ctx context.Context, ev chat.Event) {
	d.received.Add(1)

	ectx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(d.drain)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-ectx.Done():
		}
	})
	defer stop()

	if err := d.Dispatch(ectx, ev); err != nil {
		d.failed.Add(1)
		d.logError(ev, err)
	}
}

// Dispatch routes one event to its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, ev chat.Event) error {
	switch e := ev.(type) {
	case chat.Message:
		outcome, err := d.coordinator.HandleMessage(ctx, e)
		switch outcome {
		case OutcomeIndexed:
			d.indexed.Add(1)
		case OutcomeSkipped:
			d.skipped.Add(1)
		case OutcomeUnmapped:
			d.unmapped.Add(1)
		}
		return err

	case chat.RoomName:
		if err := d.lifecycle.Rename(ctx, e); err != nil {
			return err
		}
		d.renamed.Add(1)
		return nil

	case chat.Tombstone:
		if err := d.lifecycle.Tombstone(ctx, e); err != nil {
			return err
		}
		d.migrated.Add(1)
		return nil

	case chat.MemberChange:
		if d.members != nil {
			d.members.InvalidateMember(e.Room, e.UserID)
		}
		return nil

	default:
		d.logger.Debug("event_ignored", slog.String("room_id", ev.RoomID()))
		return nil
	}
}

func (d *Dispatcher) logError(ev chat.Event, err error) {
	attrs := []any{
		slog.String("room_id", ev.RoomID()),
		slog.String("code", rxerrors.GetCode(err)),
		slog.Bool("retryable", rxerrors.IsRetryable(err)),
		slog.String("error", err.Error()),
	}
	switch e := ev.(type) {
	case chat.Message:
		d.logger.Warn("message_ingest_failed", append(attrs, slog.String("event_id", e.ID))...)
	case chat.Tombstone:
		d.logger.Error("tombstone_failed", append(attrs, slog.String("successor", e.Successor))...)
	default:
		d.logger.Warn("event_failed", attrs...)
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Received: d.received.Load(),
		Indexed:  d.indexed.Load(),
		Skipped:  d.skipped.Load(),
		Unmapped: d.unmapped.Load(),
		Failed:   d.failed.Load(),
		Renamed:  d.renamed.Load(),
		Migrated: d.migrated.Load(),
	}
}
