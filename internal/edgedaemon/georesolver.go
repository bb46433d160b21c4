package edgedaemon

import (
	"context"

	"github.com/smartpixl/smartpixl/internal/enginestore"
	"github.com/smartpixl/smartpixl/internal/geocache"
)

// storeResolver adapts enginestore.Store's geo lookup table to
// geocache.Resolver. The edge opens the same SQLite file the engine writes
// to and only ever reads from it (geocache.Resolver has no write method),
// matching geocache.go's doc comment that the edge-side resolver is "a
// lightweight read-only query against the same store".
type storeResolver struct {
	store *enginestore.Store
}

func (r *storeResolver) ResolveGeo(ctx context.Context, ip string) (geocache.Result, bool, error) {
	g, ok, err := r.store.GetGeoLookup(ctx, ip)
	if err != nil || !ok {
		return geocache.Result{}, ok, err
	}
	return geocache.Result{
		CountryCode: g.Country,
		Region:      g.Region,
		City:        g.City,
		Timezone:    g.Timezone,
	}, true, nil
}
