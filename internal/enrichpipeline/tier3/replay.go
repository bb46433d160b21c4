package tier3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/smartpixl/smartpixl/internal/record"
)

// BehavioralReplay builds the tier3 behavioral-replay analyzer bound to
// index (spec.md §3.3, §4.6).
func BehavioralReplay(index *ReplayIndex) func(context.Context, record.Record) (record.Record, error) {
	return func(ctx context.Context, rec record.Record) (record.Record, error) {
		mousePath, _ := rec.RawQueryParam("mousePath")
		if mousePath == "" {
			return rec, nil
		}
		canvasFP, _ := rec.RawQueryParam("canvasFP")
		if canvasFP == "" {
			return rec, nil
		}

		sum := sha256.Sum256([]byte(mousePath))
		pathHash := hex.EncodeToString(sum[:16])

		replayed, originalFP := index.Check(pathHash, canvasFP)
		if !replayed {
			return rec, nil
		}
		return rec.WithQueryParams(
			record.Pair{Name: "replayDetected", Value: "1"},
			record.Pair{Name: "replayMatchFP", Value: originalFP},
		), nil
	}
}
