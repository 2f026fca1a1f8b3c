// Package geocode resolves Italian street addresses to coordinates via
// Nominatim (primary) and the Google Geocoding API (fallback), with a
// permanent Postgres cache in front of both.
package geocode

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vendocasa/omi-cli/internal/db"
)

const defaultNominatimURL = "https://nominatim.openstreetmap.org"

// Client geocodes a single free-form address.
type Client interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Result holds the geocoding output for an address. Matched is false when
// no provider could place the address; that is an outcome, not an error.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "cache", "nominatim" or "google"
	Matched   bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables the Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for all provider requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for Nominatim calls.
// The public instance requires at most 1 req/s.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithBaseURL points Nominatim requests at a different instance.
func WithBaseURL(base string) Option {
	return func(g *geocoder) {
		g.nominatimURL = base
	}
}

// WithGoogleBaseURL overrides the Google endpoint, for tests.
func WithGoogleBaseURL(base string) Option {
	return func(g *geocoder) {
		g.googleBaseURL = base
	}
}

// WithUserAgent sets the User-Agent header sent to Nominatim, which the
// public instance requires to identify the application.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

type geocoder struct {
	pool          db.Pool
	httpClient    *http.Client
	limiter       *rate.Limiter
	nominatimURL  string
	userAgent     string
	googleKey     string
	googleBaseURL string
}

// NewClient creates a geocoding Client backed by the given pool for the
// cache. A nil pool disables caching.
func NewClient(pool db.Pool, opts ...Option) Client {
	g := &geocoder{
		pool:         pool,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(1, 1),
		nominatimURL: defaultNominatimURL,
		userAgent:    "vendocasa_personal/1.0",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode resolves an address through the chain: cache, then Nominatim,
// then Google when a key is configured. Provider failures are logged and
// fall through; only a full chain miss yields Matched=false.
func (g *geocoder) Geocode(ctx context.Context, address string) (*Result, error) {
	if cached, err := g.checkCache(ctx, address); err == nil && cached != nil {
		return cached, nil
	}

	result, err := g.geocodeNominatim(ctx, address)
	if err != nil {
		zap.L().Warn("nominatim geocode failed",
			zap.String("component", "geocode"),
			zap.Error(err))
	} else if result.Matched {
		g.storeCache(ctx, address, result)
		return result, nil
	}

	if g.googleKey != "" {
		result, err = g.geocodeGoogle(ctx, address)
		if err != nil {
			zap.L().Warn("google geocode failed",
				zap.String("component", "geocode"),
				zap.Error(err))
		} else if result.Matched {
			g.storeCache(ctx, address, result)
			return result, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{Matched: false}, nil
}
