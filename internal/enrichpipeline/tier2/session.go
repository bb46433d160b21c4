package tier2

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/smartpixl/smartpixl/internal/record"
)

// Session builds the tier2 session-stitcher analyzer bound to registry
// (spec.md §3.3, §4.6).
func Session(registry *SessionRegistry) func(context.Context, record.Record) (record.Record, error) {
	return func(ctx context.Context, rec record.Record) (record.Record, error) {
		hash := deviceHash(rec)
		if hash == "" {
			return rec, nil
		}
		id, hitNum, durationSec := registry.Touch(hash, rec.RequestPath)

		rec = rec.WithQueryParams(
			record.Pair{Name: "sessionId", Value: id},
			record.Pair{Name: "sessionHitNum", Value: strconv.Itoa(hitNum)},
			record.Pair{Name: "sessionDurationSec", Value: strconv.FormatInt(durationSec, 10)},
			record.Pair{Name: "sessionPages", Value: strconv.Itoa(len(registry.Pages(hash)))},
		)
		return rec, nil
	}
}

// deviceHash computes the composite device hash session identity is keyed
// on: remote address plus the browser-reported fingerprint components.
func deviceHash(rec record.Record) string {
	canvas, _ := rec.RawQueryParam("canvasFP")
	webgl, _ := rec.RawQueryParam("webglFP")
	if canvas == "" && webgl == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(rec.RemoteAddress + "|" + canvas + "|" + webgl))
	return hex.EncodeToString(sum[:16])
}
