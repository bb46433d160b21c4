package tier1

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/smartpixl/smartpixl/internal/record"
)

// OfflineGeo looks up the capture IP against local MaxMind GeoLite2-style
// databases (spec.md §4.6 tier 1). NewOfflineGeo opens the databases; this
// package does not reopen them on a schedule. A nil or stale reader causes
// this analyzer to skip rather than fail.
type OfflineGeo struct {
	mu        sync.RWMutex
	city      *geoip2.Reader
	asn       *geoip2.Reader
	updatedAt time.Time
	maxAge    time.Duration
}

// NewOfflineGeo opens the city and ASN databases at the given paths.
func NewOfflineGeo(cityDBPath, asnDBPath string, maxAge time.Duration) (*OfflineGeo, error) {
	o := &OfflineGeo{maxAge: maxAge}
	if err := o.reload(cityDBPath, asnDBPath); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *OfflineGeo) reload(cityDBPath, asnDBPath string) error {
	city, err := geoip2.Open(cityDBPath)
	if err != nil {
		return fmt.Errorf("tier1: opening city db: %w", err)
	}
	asn, err := geoip2.Open(asnDBPath)
	if err != nil {
		city.Close()
		return fmt.Errorf("tier1: opening asn db: %w", err)
	}

	o.mu.Lock()
	if o.city != nil {
		o.city.Close()
	}
	if o.asn != nil {
		o.asn.Close()
	}
	o.city = city
	o.asn = asn
	o.updatedAt = time.Now()
	o.mu.Unlock()
	return nil
}

// Reload re-opens the databases from disk, intended to be called on the
// weekly refresh cadence named in spec.md §4.6.
func (o *OfflineGeo) Reload(cityDBPath, asnDBPath string) error {
	return o.reload(cityDBPath, asnDBPath)
}

// Analyze implements the tier1 offline-geo analyzer.
func (o *OfflineGeo) Analyze(ctx context.Context, rec record.Record) (record.Record, error) {
	o.mu.RLock()
	city, asn, stale := o.city, o.asn, o.maxAge > 0 && time.Since(o.updatedAt) > o.maxAge
	o.mu.RUnlock()

	if city == nil || asn == nil || stale || rec.RemoteAddress == "" {
		return rec, nil
	}
	ip := net.ParseIP(rec.RemoteAddress)
	if ip == nil {
		return rec, nil
	}

	pairs := make([]record.Pair, 0, 7)
	if c, err := city.City(ip); err == nil && c != nil {
		pairs = append(pairs,
			record.Pair{Name: "mmCC", Value: c.Country.IsoCode},
			record.Pair{Name: "mmCity", Value: c.City.Names["en"]},
			record.Pair{Name: "mmLat", Value: strconv.FormatFloat(c.Location.Latitude, 'f', 4, 64)},
			record.Pair{Name: "mmLon", Value: strconv.FormatFloat(c.Location.Longitude, 'f', 4, 64)},
		)
		if len(c.Subdivisions) > 0 {
			pairs = append(pairs, record.Pair{Name: "mmReg", Value: c.Subdivisions[0].IsoCode})
		}
	}
	if a, err := asn.ASN(ip); err == nil && a != nil {
		pairs = append(pairs,
			record.Pair{Name: "mmASN", Value: strconv.FormatUint(uint64(a.AutonomousSystemNumber), 10)},
			record.Pair{Name: "mmASNOrg", Value: a.AutonomousSystemOrganization},
		)
	}
	if len(pairs) == 0 {
		return rec, nil
	}
	return rec.WithQueryParams(pairs...), nil
}
