package geocode

import (
	"context"

	"go.uber.org/zap"
)

// checkCache looks up a cached result for the verbatim address. Returns
// (nil, nil-ish) semantics through the error: any miss or failure simply
// means the providers get called.
func (g *geocoder) checkCache(ctx context.Context, address string) (*Result, error) {
	if g.pool == nil {
		return nil, nil
	}

	var lat, lng float64
	row := g.pool.QueryRow(ctx,
		"SELECT lat, lng FROM omi.geocode_cache WHERE address = $1", address)
	if err := row.Scan(&lat, &lng); err != nil {
		return nil, err
	}

	zap.L().Debug("geocode cache hit",
		zap.String("component", "geocode"),
		zap.String("address", address))
	return &Result{Latitude: lat, Longitude: lng, Source: "cache", Matched: true}, nil
}

// storeCache persists a successful result. Cache entries never expire;
// street addresses do not move. Write failures are logged, not returned:
// the caller already has the coordinates.
func (g *geocoder) storeCache(ctx context.Context, address string, result *Result) {
	if g.pool == nil {
		return
	}

	_, err := g.pool.Exec(ctx, `
		INSERT INTO omi.geocode_cache (address, lat, lng, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO NOTHING`,
		address, result.Latitude, result.Longitude, result.Source)
	if err != nil {
		zap.L().Warn("geocode cache store failed",
			zap.String("component", "geocode"),
			zap.String("address", address),
			zap.Error(err))
	}
}
