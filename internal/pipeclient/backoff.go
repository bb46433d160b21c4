package pipeclient

import (
	"context"
	"time"
)

// backoffTable is the fixed reconnection schedule (spec.md §4.3): 1s, 2s,
// 4s, 8s, 16s, 30s (cap). Run resets it on a successful dial, before any
// record is written, so a connection whose first write fails still restarts
// the schedule at 1s. Grounded on the
// teacher's internal/proxy/retry.go backoffDelay, but the spec names an
// explicit table rather than an exponential formula, so the table is used
// verbatim instead of being derived.
var backoffTable = []time.Duration{
	time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

func backoffFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(backoffTable) {
		return backoffTable[len(backoffTable)-1]
	}
	return backoffTable[attempt]
}

// sleepWithContext sleeps for d, returning early with ctx.Err() if ctx is
// cancelled first. Grounded on the teacher's internal/proxy/retry.go helper
// of the same name.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
