// Package geocache implements the edge's two-tier geo cache (spec.md §3.2):
// a hot in-process map and a warm sliding-expiry LRU, backed by a single
// background worker that resolves cache misses against the relational geo
// lookup table. Grounded on the teacher's internal/cache/cache.go two-tier
// memory+store shape and its StartPurger sweep goroutine.
package geocache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

// Result is the enrichment payload looked up by IP (spec.md §4.2 analyzer 6).
type Result struct {
	CountryCode string
	Region      string
	City        string
	Timezone    string
	ISP         string
	IsProxy     bool
	IsMobile    bool
}

// Resolver performs the actual (potentially slow) lookup against the
// relational geo table. A concrete implementation lives in internal/enginestore
// for the engine side; on the edge it is typically backed by a lightweight
// read-only query against the same store, kept behind this interface so the
// cache has no direct store dependency.
type Resolver interface {
	ResolveGeo(ctx context.Context, ip string) (Result, bool, error)
}

// Cache is the two-tier geo cache. The hot tier is an unbounded process-wide
// map (spec.md calls it "process-wide map IP→result" with no eviction named);
// the warm tier is a bounded, sliding-expiry LRU.
type Cache struct {
	hotMu sync.RWMutex
	hot   map[string]Result

	warm *lru.Cache[string, warmEntry]
	ttl  time.Duration

	missCh chan string
	seen   sync.Map // in-flight/recently-enqueued misses, avoids duplicate worker queries

	resolver Resolver
	now      func() time.Time
}

type warmEntry struct {
	result    Result
	expiresAt time.Time
}

// New creates a Cache with the given warm-tier capacity, sliding TTL, and
// bounded miss-queue capacity served by a single background worker.
func New(resolver Resolver, warmCapacity int, ttl time.Duration, missQueueCapacity int) (*Cache, error) {
	warm, err := lru.New[string, warmEntry](warmCapacity)
	if err != nil {
		return nil, err
	}
	return &Cache{
		hot:      make(map[string]Result),
		warm:     warm,
		ttl:      ttl,
		missCh:   make(chan string, missQueueCapacity),
		resolver: resolver,
		now:      time.Now,
	}, nil
}

// Lookup returns the cached geo result for ip. A miss enqueues a
// non-blocking resolution request (dropped silently if the miss queue is
// full — the cache prioritizes never blocking the caller) and returns
// (Result{}, false): "first hit for a new IP is never enriched" per
// spec.md §3.2/§9.
func (c *Cache) Lookup(ip string) (Result, bool) {
	c.hotMu.RLock()
	if r, ok := c.hot[ip]; ok {
		c.hotMu.RUnlock()
		return r, true
	}
	c.hotMu.RUnlock()

	if e, ok := c.warm.Get(ip); ok {
		if c.now().Before(e.expiresAt) {
			c.promote(ip, e.result)
			return e.result, true
		}
		c.warm.Remove(ip)
	}

	c.enqueueMiss(ip)
	return Result{}, false
}

func (c *Cache) enqueueMiss(ip string) {
	if _, loaded := c.seen.LoadOrStore(ip, struct{}{}); loaded {
		return
	}
	select {
	case c.missCh <- ip:
	default:
		// Miss queue full: drop. The cache never blocks the hot path.
		c.seen.Delete(ip)
	}
}

func (c *Cache) promote(ip string, r Result) {
	c.hotMu.Lock()
	c.hot[ip] = r
	c.hotMu.Unlock()
}

// RunMissWorker is the single background consumer of the miss queue. It
// blocks until ctx is cancelled.
func (c *Cache) RunMissWorker(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("geocache: miss worker panicked, exiting")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ip := <-c.missCh:
			c.resolveOne(ctx, ip)
			c.seen.Delete(ip)
		}
	}
}

func (c *Cache) resolveOne(ctx context.Context, ip string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("ip", ip).Msg("geocache: resolve panicked")
		}
	}()

	result, found, err := c.resolver.ResolveGeo(ctx, ip)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("geocache: resolve failed")
		return
	}
	if !found {
		return
	}

	c.promote(ip, result)
	c.warm.Add(ip, warmEntry{result: result, expiresAt: c.now().Add(c.ttl)})
}
