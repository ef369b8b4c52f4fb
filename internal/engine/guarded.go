package engine

import (
	"context"
	"errors"

	"github.com/Aman-CERP/roomdex/internal/document"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
)

// Guarded wraps an Engine with a circuit breaker so a dead engine fails fast
// instead of stalling every event and request on its timeout.
type Guarded struct {
	inner   Engine
	breaker *rxerrors.CircuitBreaker
}

var _ Engine = (*Guarded)(nil)

// NewGuarded wraps inner with breaker.
func NewGuarded(inner Engine, breaker *rxerrors.CircuitBreaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

// Breaker exposes the breaker state for health reporting.
func (g *Guarded) Breaker() *rxerrors.CircuitBreaker {
	return g.breaker
}

// tripping reports whether err says something about engine health.
// A missing index or a bad name is the caller's problem.
func tripping(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrIndexNotFound) &&
		!errors.Is(err, ErrInvalidIndexName) &&
		!errors.Is(err, context.Canceled)
}

func (g *Guarded) run(fn func() error) error {
	var callerErr error
	err := g.breaker.Execute(func() error {
		callerErr = fn()
		if tripping(callerErr) {
			return callerErr
		}
		return nil
	})
	if errors.Is(err, rxerrors.ErrCircuitOpen) {
		return rxerrors.New(rxerrors.ErrCodeEngineUnavailable, "search engine circuit open", err)
	}
	return callerErr
}

// EnsureIndex implements Engine.
func (g *Guarded) EnsureIndex(ctx context.Context, name string) error {
	return g.run(func() error { return g.inner.EnsureIndex(ctx, name) })
}

// Upsert implements Engine.
func (g *Guarded) Upsert(ctx context.Context, index string, docs ...document.SearchDocument) error {
	return g.run(func() error { return g.inner.Upsert(ctx, index, docs...) })
}

// Search implements Engine.
func (g *Guarded) Search(ctx context.Context, index string, q Query) (*Result, error) {
	var res *Result
	err := g.run(func() error {
		var err error
		res, err = g.inner.Search(ctx, index, q)
		return err
	})
	return res, err
}

// Close implements Engine.
func (g *Guarded) Close() error {
	return g.inner.Close()
}
