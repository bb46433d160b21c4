// Package tier2 implements the engine's cross-request-state analyzers
// (spec.md §4.6 tier 2, §3.3): cross-customer witness, session stitching,
// lead-quality scoring, and device-affluence classification. Grounded on the
// teacher's internal/cache/cache.go bounded-map-with-background-sweep shape.
package tier2

import (
	"sync"
	"time"
)

type customerHit struct {
	companyID string
	at        time.Time
}

type witnessEntry struct {
	hits     []customerHit
	lastSeen time.Time
}

// CrossCustomerWitness tracks, per (IP, canvasFP) key, the companies that
// have touched that fingerprint (spec.md §3.3). Entries expire 2h after
// last touch.
type CrossCustomerWitness struct {
	mu      sync.Mutex
	entries map[string]*witnessEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCrossCustomerWitness creates the witness table.
func NewCrossCustomerWitness(ttl time.Duration) *CrossCustomerWitness {
	return &CrossCustomerWitness{entries: make(map[string]*witnessEntry), ttl: ttl, now: time.Now}
}

// Touch records a hit from companyID against key and returns the distinct
// company count within the last 5 minutes and the last hour.
func (w *CrossCustomerWitness) Touch(key, companyID string) (hits5m, hits1h int) {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries[key]
	if !ok {
		e = &witnessEntry{}
		w.entries[key] = e
	}
	e.hits = append(e.hits, customerHit{companyID: companyID, at: now})
	e.lastSeen = now

	cutoff1h := now.Add(-time.Hour)
	kept := e.hits[:0]
	for _, h := range e.hits {
		if h.at.After(cutoff1h) {
			kept = append(kept, h)
		}
	}
	e.hits = kept

	cutoff5m := now.Add(-5 * time.Minute)
	distinct5m := make(map[string]struct{})
	distinct1h := make(map[string]struct{})
	for _, h := range e.hits {
		distinct1h[h.companyID] = struct{}{}
		if h.at.After(cutoff5m) {
			distinct5m[h.companyID] = struct{}{}
		}
	}
	return len(distinct5m), len(distinct1h)
}

// Sweep evicts entries idle for longer than ttl.
func (w *CrossCustomerWitness) Sweep() {
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, e := range w.entries {
		if now.Sub(e.lastSeen) > w.ttl {
			delete(w.entries, k)
		}
	}
}

type sessionEntry struct {
	id        string
	start     time.Time
	lastTouch time.Time
	hitCount  int
	pages     []string
}

// SessionRegistry stitches requests into sessions keyed by a composite
// device hash (spec.md §3.3, §4.6 tier 2).
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	idleMax  time.Duration
	now      func() time.Time
	newID    func() string
}

// NewSessionRegistry creates a registry with the 30-minute idle cutoff named
// in spec.md §3.3.
func NewSessionRegistry(idleMax time.Duration, newID func() string) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*sessionEntry),
		idleMax:  idleMax,
		now:      time.Now,
		newID:    newID,
	}
}

// Touch records a hit for deviceHash on page, starting a new session if none
// exists or the prior one has gone idle. Returns the session id, this hit's
// ordinal within the session, and the session's duration so far in seconds.
func (r *SessionRegistry) Touch(deviceHash, page string) (sessionID string, hitNum int, durationSec int64) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[deviceHash]
	if !ok || now.Sub(e.lastTouch) > r.idleMax {
		e = &sessionEntry{id: r.newID(), start: now}
		r.sessions[deviceHash] = e
	}
	e.lastTouch = now
	e.hitCount++
	if page != "" {
		e.pages = append(e.pages, page)
	}
	return e.id, e.hitCount, int64(now.Sub(e.start).Seconds())
}

// Pages returns the ordered page list recorded so far for deviceHash's
// current session.
func (r *SessionRegistry) Pages(deviceHash string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[deviceHash]
	if !ok {
		return nil
	}
	out := make([]string, len(e.pages))
	copy(out, e.pages)
	return out
}

// Sweep detaches sessions idle for longer than idleMax.
func (r *SessionRegistry) Sweep() {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.sessions {
		if now.Sub(e.lastTouch) > r.idleMax {
			delete(r.sessions, k)
		}
	}
}
