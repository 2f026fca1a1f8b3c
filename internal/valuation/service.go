// Package valuation orchestrates the two valuation pipelines: the basic
// one returning raw OMI bands with an optional linear estimate, and the
// enhanced one applying correction coefficients and a benchmark
// comparison against real transactions.
package valuation

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vendocasa/omi-cli/internal/coeff"
	"github.com/vendocasa/omi-cli/internal/omi"
	"github.com/vendocasa/omi-cli/pkg/geocode"
)

// DefaultComparableLimit caps the comparable transactions fetched per
// valuation.
const DefaultComparableLimit = 20

// Store is the OMI data surface the orchestrator needs. *omi.Store
// satisfies it.
type Store interface {
	FindZone(ctx context.Context, lat, lng float64, semester string) (*omi.ZoneMatch, error)
	SemesterHasZones(ctx context.Context, semester string) (bool, error)
	LatestSemester(ctx context.Context) (string, error)
	QuotationsFor(ctx context.Context, linkZona, semester string, propertyType int) ([]omi.Quotation, error)
	RecentComparables(ctx context.Context, linkZona, zoneCode string, limit int) ([]omi.Transaction, error)
}

// Service composes geocoding, zone resolution, quotation lookup and the
// coefficient engine into the valuation pipelines.
type Service struct {
	store           Store
	geocoder        geocode.Client
	engine          *coeff.Engine
	comparableLimit int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithEngine replaces the default coefficient engine.
func WithEngine(e *coeff.Engine) ServiceOption {
	return func(s *Service) { s.engine = e }
}

// WithComparableLimit caps how many comparable transactions are fetched.
func WithComparableLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.comparableLimit = n
		}
	}
}

// NewService creates the valuation orchestrator.
func NewService(store Store, geocoder geocode.Client, opts ...ServiceOption) *Service {
	s := &Service{
		store:           store,
		geocoder:        geocoder,
		engine:          coeff.NewEngine(nil),
		comparableLimit: DefaultComparableLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request is a basic valuation request. Semester empty means the latest
// imported one; PropertyTypeCode zero means residential; SurfaceM2 zero
// means not provided.
type Request struct {
	Address          string  `json:"address"`
	Semester         string  `json:"semester,omitempty"`
	PropertyTypeCode int     `json:"property_type_code,omitempty"`
	SurfaceM2        float64 `json:"surface_m2,omitempty"`
}

// EnhancedRequest adds the property details for the coefficient engine.
// The conservation_state key, when present, selects the base price band
// and is not a coefficient.
type EnhancedRequest struct {
	Request
	Details map[string]string `json:"details,omitempty"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Estimate is the basic linear estimate over the selected band.
type Estimate struct {
	SurfaceM2     float64 `json:"surface_m2"`
	PriceMinEURm2 float64 `json:"price_min_eur_m2"`
	PriceMaxEURm2 float64 `json:"price_max_eur_m2"`
	ValueMin      float64 `json:"value_min"`
	ValueMax      float64 `json:"value_max"`
	ValueMid      float64 `json:"value_mid"`
}

// Result is the basic pipeline output.
type Result struct {
	Address       string            `json:"address"`
	Coordinates   Coordinates       `json:"coordinates"`
	GeocodeSource string            `json:"geocode_source"`
	Zone          omi.ZoneMatch     `json:"zone"`
	Semester      string            `json:"semester"`
	Quotations    []omi.Quotation   `json:"quotations"`
	Estimate      *Estimate         `json:"estimate,omitempty"`
	Comparables   []omi.Transaction `json:"comparables"`
}

// EnhancedResult is the enhanced pipeline output. States preserves the
// store's row order so the base-band fallback is deterministic.
type EnhancedResult struct {
	Address           string                   `json:"address"`
	Coordinates       Coordinates              `json:"coordinates"`
	GeocodeSource     string                   `json:"geocode_source"`
	Zone              omi.ZoneMatch            `json:"zone"`
	Semester          string                   `json:"semester"`
	States            []string                 `json:"states"`
	QuotationsByState map[string]omi.StateBand `json:"quotations_by_state"`
	Estimate          *coeff.AdjustedEstimate  `json:"estimate"`
	Comparables       []omi.Transaction        `json:"comparables"`
}

// resolvedZone carries the resolution outcome shared by both pipelines.
type resolvedZone struct {
	coords   Coordinates
	source   string
	zone     omi.ZoneMatch
	semester string
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Address) == "" {
		return eris.Wrap(ErrAddressNotFound, "empty address")
	}
	if r.PropertyTypeCode < 0 {
		return ErrInvalidPropertyType
	}
	if r.SurfaceM2 < 0 {
		return ErrInvalidSurface
	}
	if r.Semester != "" && !omi.ValidSemester(r.Semester) {
		return ErrInvalidSemester
	}
	return nil
}

func (r Request) propertyType() int {
	if r.PropertyTypeCode == 0 {
		return omi.ResidentialTypeCode
	}
	return r.PropertyTypeCode
}

// resolveZone geocodes the address and resolves the zone for the
// semester, distinguishing "semester has no data at all" from "point is
// outside every zone".
func (s *Service) resolveZone(ctx context.Context, address, semester string) (*resolvedZone, error) {
	loc, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		return nil, eris.Wrap(err, "valuation: geocode")
	}
	if !loc.Matched {
		return nil, eris.Wrapf(ErrAddressNotFound, "address %q", address)
	}

	if semester == "" {
		semester, err = s.store.LatestSemester(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "valuation: latest semester")
		}
		if semester == "" {
			return nil, eris.Wrap(ErrNoSemesterData, "no semesters imported")
		}
	}

	match, err := s.store.FindZone(ctx, loc.Latitude, loc.Longitude, semester)
	if err != nil {
		return nil, eris.Wrap(err, "valuation: find zone")
	}
	if match == nil {
		hasZones, err := s.store.SemesterHasZones(ctx, semester)
		if err != nil {
			return nil, eris.Wrap(err, "valuation: check semester")
		}
		if !hasZones {
			return nil, eris.Wrapf(ErrNoSemesterData, "semester %s", semester)
		}
		return nil, eris.Wrapf(ErrZoneNotFound, "lat=%.6f lng=%.6f semester=%s",
			loc.Latitude, loc.Longitude, semester)
	}

	return &resolvedZone{
		coords:   Coordinates{Lat: loc.Latitude, Lng: loc.Longitude},
		source:   loc.Source,
		zone:     *match,
		semester: semester,
	}, nil
}

// fetchZoneData loads quotations and comparables concurrently. Either
// failure abandons the sibling fetch.
func (s *Service) fetchZoneData(ctx context.Context, rz *resolvedZone, propertyType int) ([]omi.Quotation, []omi.Transaction, error) {
	var (
		quotations  []omi.Quotation
		comparables []omi.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		quotations, err = s.store.QuotationsFor(gctx, rz.zone.LinkZona, rz.semester, propertyType)
		if err != nil {
			return eris.Wrap(err, "valuation: fetch quotations")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		comparables, err = s.store.RecentComparables(gctx, rz.zone.LinkZona, rz.zone.ZoneCode, s.comparableLimit)
		if err != nil {
			return eris.Wrap(err, "valuation: fetch comparables")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return quotations, comparables, nil
}

// Valuate runs the basic pipeline: resolve the zone, return its raw
// price bands, and attach a linear estimate when a surface was given and
// the selected band has both ends.
func (s *Service) Valuate(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	rz, err := s.resolveZone(ctx, req.Address, req.Semester)
	if err != nil {
		return nil, err
	}

	quotations, comparables, err := s.fetchZoneData(ctx, rz, req.propertyType())
	if err != nil {
		return nil, err
	}

	result := &Result{
		Address:       req.Address,
		Coordinates:   rz.coords,
		GeocodeSource: rz.source,
		Zone:          rz.zone,
		Semester:      rz.semester,
		Quotations:    quotations,
		Comparables:   comparables,
	}

	if req.SurfaceM2 > 0 {
		if q := selectQuotation(quotations); q != nil &&
			q.PriceMin != nil && q.PriceMax != nil && *q.PriceMin > 0 && *q.PriceMax > 0 {
			minV := *q.PriceMin * req.SurfaceM2
			maxV := *q.PriceMax * req.SurfaceM2
			result.Estimate = &Estimate{
				SurfaceM2:     req.SurfaceM2,
				PriceMinEURm2: *q.PriceMin,
				PriceMaxEURm2: *q.PriceMax,
				ValueMin:      minV,
				ValueMax:      maxV,
				ValueMid:      (minV + maxV) / 2,
			}
		}
	}

	zap.L().Info("valuation completed",
		zap.String("component", "valuation"),
		zap.String("link_zona", rz.zone.LinkZona),
		zap.String("semester", rz.semester),
		zap.Int("quotations", len(quotations)),
		zap.Int("comparables", len(comparables)),
		zap.Bool("estimated", result.Estimate != nil))
	return result, nil
}

// EnhancedValuate runs the enhanced pipeline: coefficient-adjusted
// estimate over a conservation-state base band, plus a benchmark
// comparison against real transactions.
func (s *Service) EnhancedValuate(ctx context.Context, req EnhancedRequest) (*EnhancedResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.SurfaceM2 <= 0 {
		return nil, ErrInvalidSurface
	}

	rz, err := s.resolveZone(ctx, req.Address, req.Semester)
	if err != nil {
		return nil, err
	}

	quotations, comparables, err := s.fetchZoneData(ctx, rz, req.propertyType())
	if err != nil {
		return nil, err
	}
	if len(quotations) == 0 {
		return nil, eris.Wrapf(ErrNoQuotationData, "zone %s semester %s", rz.zone.LinkZona, rz.semester)
	}

	states, byState := groupByState(quotations)
	if len(states) == 0 {
		return nil, eris.Wrapf(ErrNoQuotationData, "zone %s has no complete price bands", rz.zone.LinkZona)
	}

	baseState := selectBaseState(states, byState, req.Details["conservation_state"])
	band := byState[baseState]

	details := make(map[string]string, len(req.Details))
	for k, v := range req.Details {
		if k == "conservation_state" {
			continue
		}
		details[k] = v
	}

	estimate, err := s.engine.Adjust(
		coeff.PriceBand{Min: band.PriceMin, Max: band.PriceMax},
		req.SurfaceM2, details)
	if err != nil {
		return nil, eris.Wrap(err, "valuation: adjust")
	}
	estimate.BaseConservationState = baseState

	benchmark := coeff.CompareBenchmarks(estimate.AdjustedMid, comparables)
	estimate.BenchmarkComparison = &benchmark

	zap.L().Info("enhanced valuation completed",
		zap.String("component", "valuation"),
		zap.String("link_zona", rz.zone.LinkZona),
		zap.String("base_state", baseState),
		zap.Float64("total_coefficient", estimate.TotalCoefficient),
		zap.String("benchmark_confidence", benchmark.Confidence))
	return &EnhancedResult{
		Address:           req.Address,
		Coordinates:       rz.coords,
		GeocodeSource:     rz.source,
		Zone:              rz.zone,
		Semester:          rz.semester,
		States:            states,
		QuotationsByState: byState,
		Estimate:          estimate,
		Comparables:       comparables,
	}, nil
}

// selectQuotation returns the prevalent quotation, else the first one.
func selectQuotation(quotations []omi.Quotation) *omi.Quotation {
	for i := range quotations {
		if quotations[i].IsPrevalent {
			return &quotations[i]
		}
	}
	if len(quotations) > 0 {
		return &quotations[0]
	}
	return nil
}

// groupByState keys quotations by conservation state, keeping only rows
// with both band ends present and positive. The returned slice preserves
// first-seen row order for deterministic fallback selection.
func groupByState(quotations []omi.Quotation) ([]string, map[string]omi.StateBand) {
	var states []string
	byState := make(map[string]omi.StateBand)
	for _, q := range quotations {
		if q.PriceMin == nil || q.PriceMax == nil || *q.PriceMin <= 0 || *q.PriceMax <= 0 {
			continue
		}
		state := q.ConservationState
		if state == "" {
			state = "NORMALE"
		}
		if _, seen := byState[state]; seen {
			continue
		}
		states = append(states, state)
		byState[state] = omi.StateBand{
			PriceMin:        *q.PriceMin,
			PriceMax:        *q.PriceMax,
			IsPrevalent:     q.IsPrevalent,
			SurfaceTypeSale: q.SurfaceTypeSale,
		}
	}
	return states, byState
}

// selectBaseState picks the base band: the requested conservation state
// when it has data, else the prevalent state, else the first grouped one.
func selectBaseState(states []string, byState map[string]omi.StateBand, requested string) string {
	if requested != "" {
		for _, state := range states {
			if strings.EqualFold(state, requested) {
				return state
			}
		}
	}
	for _, state := range states {
		if byState[state].IsPrevalent {
			return state
		}
	}
	return states[0]
}
