// Package tier1 implements the engine's library-backed lookup analyzers
// (spec.md §4.6 tier 1): bot/UA detection, reverse DNS, offline/online geo,
// and WHOIS/ASN, all best-effort and never retried within a single pass.
package tier1

import (
	"context"
	"strings"

	"github.com/mssola/useragent"

	"github.com/smartpixl/smartpixl/internal/record"
)

// BotUA classifies the User-Agent as a known bot (spec.md §4.6). Grounded on
// github.com/mssola/useragent's Bot() classifier, one of the pack's two
// UA-parsing libraries — kept alongside uasurfer (tier1/uaparse.go) because
// each covers a distinct output: mssola/useragent names the bot, uasurfer
// gives structured browser/OS/device fields.
func BotUA(ctx context.Context, rec record.Record) (record.Record, error) {
	if rec.UserAgent == "" {
		return rec, nil
	}
	ua := useragent.New(rec.UserAgent)
	if !ua.Bot() {
		return rec, nil
	}
	name, _ := ua.Browser()
	if name == "" {
		name = strings.TrimSpace(rec.UserAgent)
	}
	rec = rec.WithQueryParams(
		record.Pair{Name: "knownBot", Value: "1"},
		record.Pair{Name: "botName", Value: name},
	)
	return rec, nil
}
