// Package circuit implements the three-state circuit breaker guarding the
// bulk writer against a persistently failing store (spec.md §4.7).
package circuit

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker guards the bulk writer's SQL path. Unlike the teacher's
// per-provider registry, the bulk writer needs exactly one breaker instance
// guarding one store, so no registry wraps this type here.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMax      int

	state               State
	consecutiveFailures int
	halfOpenSuccesses   int
	lastFailureTime     time.Time

	now func() time.Time
}

// New creates a Breaker in the Closed state.
func New(failureThreshold int, resetTimeout time.Duration, halfOpenMax int) *Breaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	if halfOpenMax < 1 {
		halfOpenMax = 1
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMax:      halfOpenMax,
		state:            Closed,
		now:              time.Now,
	}
}

// Allow reports whether a write attempt may proceed. When the breaker is Open
// it lazily transitions to HalfOpen once the exponential-backoff reset window
// has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return b.halfOpenSuccesses < b.halfOpenMax
	case Open:
		if b.now().Sub(b.lastFailureTime) >= b.resetBackoff() {
			b.state = HalfOpen
			b.halfOpenSuccesses = 0
			return true
		}
		return false
	default:
		return false
	}
}

// resetBackoff returns 1<<min(failures,14) seconds capped at 30s, per
// spec.md §4.7's formula; a positive resetTimeout shorter than that value is
// returned instead. Caller must hold b.mu.
func (b *Breaker) resetBackoff() time.Duration {
	n := b.consecutiveFailures
	if n > 14 {
		n = 14
	}
	d := time.Duration(1<<uint(n)) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	if b.resetTimeout > 0 && b.resetTimeout < d {
		return b.resetTimeout
	}
	return d
}

// RecordSuccess reports a successful write. In HalfOpen, success closes the
// circuit and resets all counters (spec.md §8.1 circuit idempotence).
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.halfOpenMax {
			b.state = Closed
			b.consecutiveFailures = 0
			b.halfOpenSuccesses = 0
		}
	case Closed:
		b.consecutiveFailures = 0
	}
}

// RecordFailure reports a failed write. From HalfOpen it re-opens
// immediately; from Closed it opens once consecutiveFailures reaches the
// threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailureTime = b.now()

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.halfOpenSuccesses = 0
	case Closed:
		if b.consecutiveFailures >= b.failureThreshold {
			b.state = Open
		}
	}
}

// Trip forces the breaker directly to Open, bypassing the failure threshold.
// Used when the bulk writer classifies an error as immediately fatal
// ("filegroup full", spec.md §4.7).
func (b *Breaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Open
	b.lastFailureTime = b.now()
}

// Reset forces the breaker back to Closed, resetting all counters. Bound to
// the engine's /internal/circuit-reset endpoint (spec.md §4.7).
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutiveFailures = 0
	b.halfOpenSuccesses = 0
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
