package tier3

import (
	"context"
	"strconv"

	"github.com/smartpixl/smartpixl/internal/record"
)

// anomalySignals are the pairs that, if present and truthy, mark a record as
// non-human for the purposes of the dead-internet index (spec.md §4.6
// tier 3).
var anomalySignals = []string{
	"botTrap", "knownBot", "rapidFire", "subSecDupe", "subnetAlert",
	"deviceAgeAnomaly", "replayDetected",
}

// DeadInternet builds the tier3 dead-internet-index analyzer bound to index
// (spec.md §4.6 tier 3: "publishes ... on every record of that company").
func DeadInternet(index *DeadInternetIndex) func(context.Context, record.Record) (record.Record, error) {
	return func(ctx context.Context, rec record.Record) (record.Record, error) {
		anomalous := false
		for _, name := range anomalySignals {
			if v, ok := rec.QueryParam(name); ok && v == "1" {
				anomalous = true
				break
			}
		}
		if contradictions, ok := rec.QueryParam("contradictions"); ok {
			if n, err := strconv.Atoi(contradictions); err == nil && n > 0 {
				anomalous = true
			}
		}

		idx := index.Observe(rec.CompanyID, anomalous)
		return rec.WithQueryParam("deadInternetIdx", strconv.Itoa(idx)), nil
	}
}
