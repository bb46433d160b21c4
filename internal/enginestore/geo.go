package enginestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GeoLookup is a cached result from the rate-limited online geo API,
// persisted so a restart does not re-spend the rate-limit budget on
// addresses already resolved (spec.md §4.6 tier1 onlinegeo).
type GeoLookup struct {
	Country    string
	Region     string
	City       string
	Timezone   string
	LookedUpAt time.Time
}

// GetGeoLookup returns a cached lookup for ipKey, or ok=false if absent.
func (s *Store) GetGeoLookup(ctx context.Context, ipKey string) (GeoLookup, bool, error) {
	var g GeoLookup
	var lookedUpAt string
	err := s.reader.QueryRowContext(ctx,
		`SELECT country, region, city, timezone, looked_up_at FROM geo_lookup WHERE ip_key = ?`,
		ipKey,
	).Scan(&g.Country, &g.Region, &g.City, &g.Timezone, &lookedUpAt)
	if errors.Is(err, sql.ErrNoRows) {
		return GeoLookup{}, false, nil
	}
	if err != nil {
		return GeoLookup{}, false, fmt.Errorf("enginestore: get geo lookup: %w", err)
	}
	g.LookedUpAt, _ = time.Parse(time.RFC3339, lookedUpAt)
	return g, true, nil
}

// PutGeoLookup upserts a geo lookup result.
func (s *Store) PutGeoLookup(ctx context.Context, ipKey string, g GeoLookup) error {
	_, err := s.writer.ExecContext(ctx, `
		INSERT INTO geo_lookup (ip_key, country, region, city, timezone, looked_up_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ip_key) DO UPDATE SET
			country = excluded.country, region = excluded.region, city = excluded.city,
			timezone = excluded.timezone, looked_up_at = excluded.looked_up_at`,
		ipKey, g.Country, g.Region, g.City, g.Timezone, g.LookedUpAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("enginestore: put geo lookup: %w", err)
	}
	return nil
}
