package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vendocasa/omi-cli/internal/db"
	"github.com/vendocasa/omi-cli/internal/omi"
	"github.com/vendocasa/omi-cli/internal/valuation"
	"github.com/vendocasa/omi-cli/pkg/geocode"
)

// env holds the shared runtime wiring: the pool, the OMI store, the
// geocoding chain and the valuation service.
type env struct {
	Pool     db.Pool
	Store    *omi.Store
	Geocoder geocode.Client
	Service  *valuation.Service
}

func initEnv(ctx context.Context) (*env, error) {
	pool, err := db.Connect(ctx, cfg.Database.URL, &cfg.Database.Pool)
	if err != nil {
		return nil, eris.Wrap(err, "connect database")
	}

	store := omi.NewStore(pool, omi.WithFallbackRadius(cfg.Valuation.FallbackRadiusM))

	geocoder := geocode.NewClient(pool,
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithBaseURL(cfg.Geocode.NominatimBaseURL),
		geocode.WithRateLimit(cfg.Geocode.NominatimRPS),
		geocode.WithGoogleAPIKey(cfg.Geocode.GoogleAPIKey),
		geocode.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Geocode.TimeoutSecs) * time.Second,
		}),
	)

	service := valuation.NewService(store, geocoder,
		valuation.WithComparableLimit(cfg.Valuation.ComparableLimit))

	return &env{
		Pool:     pool,
		Store:    store,
		Geocoder: geocoder,
		Service:  service,
	}, nil
}

func (e *env) Close() {
	e.Pool.Close()
}
