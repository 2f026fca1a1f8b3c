package coeff

import (
	"math"

	"github.com/rotisserie/eris"
)

// PriceBand is a EUR/m2 range from a selected quotation.
type PriceBand struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// BreakdownItem explains one applied factor. ImpactEURm2 is measured
// against the unadjusted midpoint, so the items are independent of
// application order and sum exactly to the total delta.
type BreakdownItem struct {
	Factor        string  `json:"factor"`
	FactorLabel   string  `json:"factor_label"`
	SelectedKey   string  `json:"selected_key"`
	SelectedLabel string  `json:"selected_label"`
	Coefficient   float64 `json:"coefficient"`
	ImpactEURm2   float64 `json:"impact_eur_m2"`
}

// AdjustedEstimate is the coefficient engine output: the adjusted EUR/m2
// band, the totals over the surface area, and the per-factor breakdown.
type AdjustedEstimate struct {
	BasePriceMin          float64              `json:"base_price_min"`
	BasePriceMax          float64              `json:"base_price_max"`
	BaseConservationState string               `json:"base_conservation_state"`
	TotalCoefficient      float64              `json:"total_coefficient"`
	AdjustedPriceMin      float64              `json:"adjusted_price_min"`
	AdjustedPriceMax      float64              `json:"adjusted_price_max"`
	AdjustedMid           float64              `json:"adjusted_mid"`
	TotalMin              float64              `json:"total_min"`
	TotalMax              float64              `json:"total_max"`
	TotalMid              float64              `json:"total_mid"`
	SurfaceM2             float64              `json:"surface_m2"`
	Breakdown             []BreakdownItem      `json:"breakdown"`
	BenchmarkComparison   *BenchmarkComparison `json:"benchmark_comparison,omitempty"`
}

// Engine applies a coefficient table to base price bands. It is a pure
// transform: the same inputs always yield the same estimate.
type Engine struct {
	table *Table
}

// NewEngine creates an Engine over the given table. A nil table uses the
// embedded default.
func NewEngine(table *Table) *Engine {
	if table == nil {
		table = Default()
	}
	return &Engine{table: table}
}

// Adjust applies the correction coefficients selected in details to the
// base band. Factor names or option keys the table does not recognize are
// silently skipped: the caller's form may simply not have been answered
// yet. Percentages are additive, not compounded, so the breakdown sums
// exactly to the total monetary delta.
func (e *Engine) Adjust(base PriceBand, surfaceM2 float64, details map[string]string) (*AdjustedEstimate, error) {
	if surfaceM2 <= 0 {
		return nil, eris.Errorf("coeff: surface must be positive, got %v", surfaceM2)
	}

	baseMid := (base.Min + base.Max) / 2

	var breakdown []BreakdownItem
	totalPct := 0.0

	for _, factor := range e.table.Factors() {
		selectedKey, ok := details[factor.Name]
		if !ok || selectedKey == "" {
			continue
		}
		option, ok := factor.Option(selectedKey)
		if !ok {
			continue
		}

		totalPct += option.Pct
		breakdown = append(breakdown, BreakdownItem{
			Factor:        factor.Name,
			FactorLabel:   factor.Label,
			SelectedKey:   selectedKey,
			SelectedLabel: option.Label,
			Coefficient:   option.Pct,
			ImpactEURm2:   round2(baseMid * option.Pct),
		})
	}

	multiplier := 1.0 + totalPct
	adjMin := round2(base.Min * multiplier)
	adjMax := round2(base.Max * multiplier)
	adjMid := round2(baseMid * multiplier)

	return &AdjustedEstimate{
		BasePriceMin:     base.Min,
		BasePriceMax:     base.Max,
		TotalCoefficient: round4(totalPct),
		AdjustedPriceMin: adjMin,
		AdjustedPriceMax: adjMax,
		AdjustedMid:      adjMid,
		TotalMin:         round2(adjMin * surfaceM2),
		TotalMax:         round2(adjMax * surfaceM2),
		TotalMid:         round2(adjMid * surfaceM2),
		SurfaceM2:        surfaceM2,
		Breakdown:        breakdown,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
