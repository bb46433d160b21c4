package tier2

import (
	"context"
	"strconv"

	"github.com/smartpixl/smartpixl/internal/record"
)

// leadScoreWeights assigns points for each positive signal named in
// spec.md §4.6 tier 2 ("weighted sum of positive signals"). The total caps
// at 100.
var leadScoreWeights = map[string]int{
	"residentialIP":    20,
	"stableFingerprint": 20,
	"mouseEntropy":      15,
	"multipleFonts":     15,
	"cleanCanvas":       10,
	"matchingTimezone":  10,
	"multiPageSession":  10,
}

// LeadScore implements the tier2 lead-quality scoring analyzer (spec.md
// §4.6). It reads pairs appended by earlier tiers/analyzers rather than
// performing its own lookups.
func LeadScore(ctx context.Context, rec record.Record) (record.Record, error) {
	score := 0

	if !hasAnyMarker(rec, "ipType", "geoProxy") {
		score += leadScoreWeights["residentialIP"]
	}
	if v, ok := rec.QueryParam("fpAlert"); !ok || v != "1" {
		score += leadScoreWeights["stableFingerprint"]
	}
	if _, ok := rec.RawQueryParam("mouseEntropy"); ok {
		score += leadScoreWeights["mouseEntropy"]
	}
	if fonts, ok := rec.RawQueryParam("fontsCount"); ok {
		if n, err := strconv.Atoi(fonts); err == nil && n > 3 {
			score += leadScoreWeights["multipleFonts"]
		}
	}
	if _, ok := rec.RawQueryParam("canvasFP"); ok {
		if v, mismatch := rec.QueryParam("fpAlert"); !mismatch || v != "1" {
			score += leadScoreWeights["cleanCanvas"]
		}
	}
	if v, ok := rec.QueryParam("geoTzMismatch"); !ok || v != "1" {
		score += leadScoreWeights["matchingTimezone"]
	}
	if pages, ok := rec.QueryParam("sessionPages"); ok {
		if n, err := strconv.Atoi(pages); err == nil && n > 1 {
			score += leadScoreWeights["multiPageSession"]
		}
	}

	if score > 100 {
		score = 100
	}
	return rec.WithQueryParam("leadScore", strconv.Itoa(score)), nil
}

func hasAnyMarker(rec record.Record, names ...string) bool {
	for _, n := range names {
		if v, ok := rec.QueryParam(n); ok && v != "" {
			return true
		}
	}
	return false
}
