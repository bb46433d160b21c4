package fastenrich

import (
	"time"

	"github.com/smartpixl/smartpixl/internal/dctrie"
	"github.com/smartpixl/smartpixl/internal/geocache"
)

// Engine is the edge-side fast-enrichment entry point: shared state, the
// analyzer bank, and the periodic sweeper, bundled for a single capture
// process (spec.md §3.2, §4.2).
type Engine struct {
	State *State
	Bank  *Bank
}

// New wires fast-enrichment state to the seven analyzers. trie and geo may be
// nil in tests that only exercise the IP-velocity/fingerprint analyzers.
func New(fingerprintTTL, subnetTTL time.Duration, trie *dctrie.Publisher, geo *geocache.Cache) *Engine {
	state := NewState(fingerprintTTL, subnetTTL)
	return &Engine{
		State: state,
		Bank:  NewBank(state, trie, geo, DefaultThresholds()),
	}
}

// RunSweeper periodically evicts TTL-expired state until stop is closed.
func (e *Engine) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.State.Sweep()
		}
	}
}
