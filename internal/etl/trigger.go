// Package etl runs the engine's 60-second parse/identity-match cadence
// (spec.md §4.8): "invoke an opaque parse routine in the store, then an
// identity-match routine. Both are watermark-driven by the store; the
// engine provides only the cadence and logs per-invocation outcome." A
// missed tick is coalesced so only one call is ever in flight. Grounded on
// the teacher's internal/daemon/daemon.go runPruner periodic-ticker
// pattern.
package etl

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultInterval is spec.md §4.8's fixed 60-second cadence.
const DefaultInterval = 60 * time.Second

// Store is the opaque, watermark-driven routines the engine's store
// exposes. The engine supplies only cadence and logging; routine internals
// (including watermark bookkeeping) live entirely in the store.
type Store interface {
	ParseRaw(ctx context.Context) (int, error)
	MatchIdentity(ctx context.Context) (int, error)
}

// Trigger fires Store's parse/identity-match pair on a fixed cadence,
// coalescing any tick that lands while the previous invocation is still
// running (spec.md §4.8).
type Trigger struct {
	store    Store
	interval time.Duration
	inFlight atomic.Bool
}

// New creates a Trigger. interval <= 0 uses DefaultInterval.
func New(store Store, interval time.Duration) *Trigger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Trigger{store: store, interval: interval}
}

// Run ticks until ctx is done, invoking one parse+identity-match pass per
// tick unless the prior pass has not yet finished.
func (t *Trigger) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fireIfIdle(ctx)
		}
	}
}

func (t *Trigger) fireIfIdle(ctx context.Context) {
	if !t.inFlight.CompareAndSwap(false, true) {
		log.Warn().Msg("etl: previous tick still in flight, coalescing this one")
		return
	}
	defer t.inFlight.Store(false)

	t.runOnce(ctx)
}

func (t *Trigger) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("etl: tick panicked, recovering")
		}
	}()

	parsed, err := t.store.ParseRaw(ctx)
	if err != nil {
		log.Error().Err(err).Msg("etl: parse routine failed")
	} else {
		log.Info().Int("rows", parsed).Msg("etl: parse routine completed")
	}

	matched, err := t.store.MatchIdentity(ctx)
	if err != nil {
		log.Error().Err(err).Msg("etl: identity-match routine failed")
	} else {
		log.Info().Int("rows", matched).Msg("etl: identity-match routine completed")
	}
}
