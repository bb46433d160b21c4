// Package ratelimit provides a simple token-bucket limiter, used by the
// engine's online-geo tier to respect an upstream provider's rate limit
// (spec.md §4.6). Grounded 1:1 on the teacher's internal/security/ratelimit.go
// tokenBucket.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a single-provider token-bucket rate limiter.
type Bucket struct {
	rate       float64
	burst      int
	tokens     float64
	lastRefill time.Time
	mu         sync.Mutex
	now        func() time.Time
}

// New creates a Bucket with the given tokens-per-second rate and burst size.
func New(rate float64, burst int) *Bucket {
	return &Bucket{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow attempts to consume one token, returning false if the bucket is
// currently empty.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.tokens += elapsed * b.rate
	if b.tokens > float64(b.burst) {
		b.tokens = float64(b.burst)
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
