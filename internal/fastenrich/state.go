// Package fastenrich implements the edge's seven fixed-order in-memory
// analyzers (spec.md §4.2) and the per-IP/per-subnet state they read and
// update (spec.md §3.2). Analyzers never block and never perform I/O; the
// composition is grounded on the teacher's internal/pipeline/chain.go
// Middleware-chain shape, generalized to continue unconditionally (there is
// no failure path here, only panic-recovery, since in-memory analyzers
// cannot return an application error).
package fastenrich

import (
	"net/netip"
	"sync"
	"time"
)

// fingerprintEntry tracks the distinct canvas|webgl|audio composite
// fingerprints observed from one client IP (spec.md §3.2).
type fingerprintEntry struct {
	composites map[string]struct{}
	firstSeen  time.Time
	lastSeen   time.Time
	count      int
	// recent holds up to historySize timestamps for the rate-per-5m check.
	recent []time.Time
}

// subnetEntry tracks distinct source IPs observed from one /24 in the
// velocity window (spec.md §3.2).
type subnetEntry struct {
	ips      map[string]time.Time
	lastSeen time.Time
}

// ipHitEntry tracks the last N hit timestamps from one IP, for rapid-fire and
// sub-second duplicate detection (spec.md §3.2, §4.2 analyzer 3).
type ipHitEntry struct {
	hits     []time.Time
	lastSeen time.Time
}

const historySize = 32

// State holds all fast-enrichment in-memory state for one edge process. Every
// map is a plain Go map guarded by its own mutex; Sweep evicts TTL-expired
// entries under each map's mutex and does no further coordination with
// readers, so a reader can observe an about-to-be-evicted entry (spec.md §9).
type State struct {
	fpMu sync.Mutex
	fp   map[string]*fingerprintEntry
	fpTTL time.Duration

	subnetMu  sync.Mutex
	subnet    map[string]*subnetEntry
	subnetTTL time.Duration

	hitMu sync.Mutex
	hit   map[string]*ipHitEntry

	now func() time.Time
}

// NewState creates fast-enrichment state with the given TTLs.
func NewState(fingerprintTTL, subnetTTL time.Duration) *State {
	return &State{
		fp:        make(map[string]*fingerprintEntry),
		fpTTL:     fingerprintTTL,
		subnet:    make(map[string]*subnetEntry),
		subnetTTL: subnetTTL,
		hit:       make(map[string]*ipHitEntry),
		now:       time.Now,
	}
}

// Sweep evicts TTL-expired entries from all three maps. Intended to be run
// periodically by a single background worker (spec.md §9).
func (s *State) Sweep() {
	now := s.now()

	s.fpMu.Lock()
	for ip, e := range s.fp {
		if now.Sub(e.lastSeen) > s.fpTTL {
			delete(s.fp, ip)
		}
	}
	s.fpMu.Unlock()

	s.subnetMu.Lock()
	for subnet, e := range s.subnet {
		if now.Sub(e.lastSeen) > s.subnetTTL {
			delete(s.subnet, subnet)
			continue
		}
		for ip, t := range e.ips {
			if now.Sub(t) > s.subnetTTL {
				delete(e.ips, ip)
			}
		}
	}
	s.subnetMu.Unlock()

	// ipHit entries are naturally bounded by historySize and self-prune on
	// insert; a coarse idle-eviction keeps long-dead IPs from accumulating.
	s.hitMu.Lock()
	for ip, e := range s.hit {
		if now.Sub(e.lastSeen) > s.subnetTTL*6 {
			delete(s.hit, ip)
		}
	}
	s.hitMu.Unlock()
}

func subnet24(addr netip.Addr) (string, bool) {
	if !addr.Is4() {
		return "", false
	}
	b := addr.As4()
	return netip.AddrFrom4([4]byte{b[0], b[1], b[2], 0}).String(), true
}
