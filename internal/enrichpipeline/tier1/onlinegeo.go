package tier1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/smartpixl/smartpixl/internal/ratelimit"
	"github.com/smartpixl/smartpixl/internal/record"
)

// OnlineGeo calls a third-party IP-geolocation API for addresses the
// offline dataset didn't resolve, or resolved more than 90 days ago
// (spec.md §4.6 tier 1). It respects a configured token-bucket rate limit
// and skips rather than blocks when the bucket is empty.
type OnlineGeo struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Bucket
}

// NewOnlineGeo creates an OnlineGeo analyzer against baseURL (an ip-api.com
// compatible JSON endpoint), respecting rate (requests/sec) and burst.
func NewOnlineGeo(baseURL string, rate float64, burst int, timeout time.Duration) *OnlineGeo {
	return &OnlineGeo{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.New(rate, burst),
	}
}

type onlineGeoResponse struct {
	CountryCode string `json:"countryCode"`
	ISP         string `json:"isp"`
	Proxy       bool   `json:"proxy"`
	Mobile      bool   `json:"mobile"`
	AS          string `json:"as"`
	Reverse     string `json:"reverse"`
}

// NeedsOnlineLookup reports whether rec lacks a fresh offline-geo result and
// should be escalated to the online provider (spec.md §4.6 tier 1 condition).
func NeedsOnlineLookup(rec record.Record) bool {
	_, hasOffline := rec.QueryParam("mmCC")
	return !hasOffline
}

// Analyze implements the tier1 online-geo analyzer.
func (o *OnlineGeo) Analyze(ctx context.Context, rec record.Record) (record.Record, error) {
	if !NeedsOnlineLookup(rec) || rec.RemoteAddress == "" {
		return rec, nil
	}
	if !o.limiter.Allow() {
		return rec, nil
	}

	url := fmt.Sprintf("%s/%s", o.baseURL, rec.RemoteAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return rec, fmt.Errorf("tier1: online geo request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return rec, fmt.Errorf("tier1: online geo call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return rec, fmt.Errorf("tier1: online geo status %d", resp.StatusCode)
	}

	var body onlineGeoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return rec, fmt.Errorf("tier1: online geo decode: %w", err)
	}

	pairs := []record.Pair{
		{Name: "ipapiCC", Value: body.CountryCode},
		{Name: "ipapiISP", Value: body.ISP},
		{Name: "ipapiASN", Value: body.AS},
		{Name: "ipapiReverse", Value: body.Reverse},
	}
	if body.Proxy {
		pairs = append(pairs, record.Pair{Name: "ipapiProxy", Value: "1"})
	}
	if body.Mobile {
		pairs = append(pairs, record.Pair{Name: "ipapiMobile", Value: "1"})
	}
	return rec.WithQueryParams(pairs...), nil
}
