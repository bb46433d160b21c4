package tier2

import (
	"context"
	"strconv"

	"github.com/smartpixl/smartpixl/internal/record"
)

// crossCustAlert5mThreshold and crossCustAlert1hThreshold are the distinct-
// company thresholds named in spec.md §4.6 tier 2.
const (
	crossCustAlert5mThreshold = 3
	crossCustAlert1hThreshold = 10
)

// CrossCustomer builds the tier2 cross-customer-witness analyzer bound to
// witness (spec.md §3.3, §4.6).
func CrossCustomer(witness *CrossCustomerWitness) func(context.Context, record.Record) (record.Record, error) {
	return func(ctx context.Context, rec record.Record) (record.Record, error) {
		canvasFP, _ := rec.RawQueryParam("canvasFP")
		if canvasFP == "" || rec.RemoteAddress == "" || rec.CompanyID == "" {
			return rec, nil
		}
		key := rec.RemoteAddress + "|" + canvasFP

		hits5m, hits1h := witness.Touch(key, rec.CompanyID)

		rec = rec.WithQueryParams(
			record.Pair{Name: "crossCustHits", Value: strconv.Itoa(hits5m)},
			record.Pair{Name: "crossCustWindow", Value: strconv.Itoa(hits1h)},
		)
		if hits5m >= crossCustAlert5mThreshold || hits1h >= crossCustAlert1hThreshold {
			rec = rec.WithQueryParam("crossCustAlert", "1")
		}
		return rec, nil
	}
}
