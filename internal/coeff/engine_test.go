package coeff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjust_SingleFactor(t *testing.T) {
	engine := NewEngine(nil)

	est, err := engine.Adjust(PriceBand{Min: 3000, Max: 4000}, 100, map[string]string{
		"renovation": "premium_post_2015",
	})
	require.NoError(t, err)

	// base_mid 3500, +10%
	assert.InDelta(t, 0.10, est.TotalCoefficient, 1e-9)
	assert.InDelta(t, 3300, est.AdjustedPriceMin, 0.001)
	assert.InDelta(t, 4400, est.AdjustedPriceMax, 0.001)
	assert.InDelta(t, 3850, est.AdjustedMid, 0.001)
	assert.InDelta(t, 330000, est.TotalMin, 0.001)
	assert.InDelta(t, 440000, est.TotalMax, 0.001)
	assert.InDelta(t, 385000, est.TotalMid, 0.001)

	require.Len(t, est.Breakdown, 1)
	assert.Equal(t, "renovation", est.Breakdown[0].Factor)
	assert.Equal(t, "Ristrutturazione", est.Breakdown[0].FactorLabel)
	assert.Equal(t, "premium_post_2015", est.Breakdown[0].SelectedKey)
	assert.InDelta(t, 350, est.Breakdown[0].ImpactEURm2, 0.001)
}

func TestAdjust_AdditiveBreakdown(t *testing.T) {
	engine := NewEngine(nil)

	details := map[string]string{
		"renovation":   "premium_post_2015", // +0.10
		"floor":        "penthouse",         // +0.08
		"exposure":     "north_only",        // -0.05
		"noise":        "busy_street",       // -0.05
		"energy_class": "F_G",               // -0.05
		"elevator":     "no_high_floor",     // -0.05
	}

	est, err := engine.Adjust(PriceBand{Min: 2400, Max: 3600}, 80, details)
	require.NoError(t, err)

	assert.InDelta(t, -0.02, est.TotalCoefficient, 1e-9)
	require.Len(t, est.Breakdown, 6)

	// The breakdown impacts sum exactly to the total delta against the
	// unadjusted midpoint, because impacts are additive, not compounded.
	baseMid := 3000.0
	sum := 0.0
	for _, item := range est.Breakdown {
		sum += item.ImpactEURm2
	}
	assert.InDelta(t, baseMid*est.TotalCoefficient, sum, 0.01)
	assert.InDelta(t, baseMid*(1+est.TotalCoefficient), est.AdjustedMid, 0.01)
}

func TestAdjust_BreakdownFollowsTableOrder(t *testing.T) {
	engine := NewEngine(nil)

	est, err := engine.Adjust(PriceBand{Min: 1000, Max: 2000}, 50, map[string]string{
		"elevator":   "no_high_floor",
		"renovation": "needs_work",
		"floor":      "first",
	})
	require.NoError(t, err)

	require.Len(t, est.Breakdown, 3)
	assert.Equal(t, "renovation", est.Breakdown[0].Factor)
	assert.Equal(t, "floor", est.Breakdown[1].Factor)
	assert.Equal(t, "elevator", est.Breakdown[2].Factor)
}

func TestAdjust_UnrecognizedSkipped(t *testing.T) {
	engine := NewEngine(nil)

	est, err := engine.Adjust(PriceBand{Min: 3000, Max: 4000}, 100, map[string]string{
		"renovation":   "not-a-key",
		"made_up":      "whatever",
		"floor":        "",
		"energy_class": "A_B",
	})
	require.NoError(t, err)

	require.Len(t, est.Breakdown, 1)
	assert.Equal(t, "energy_class", est.Breakdown[0].Factor)
	assert.InDelta(t, 0.05, est.TotalCoefficient, 1e-9)
}

func TestAdjust_NoFactorsIdentity(t *testing.T) {
	engine := NewEngine(nil)

	est, err := engine.Adjust(PriceBand{Min: 3000, Max: 4000}, 100, nil)
	require.NoError(t, err)

	assert.Zero(t, est.TotalCoefficient)
	assert.InDelta(t, 3000, est.AdjustedPriceMin, 0.001)
	assert.InDelta(t, 4000, est.AdjustedPriceMax, 0.001)
	assert.InDelta(t, 3500, est.AdjustedMid, 0.001)
	assert.Empty(t, est.Breakdown)
}

func TestAdjust_InvalidSurface(t *testing.T) {
	engine := NewEngine(nil)

	for _, surface := range []float64{0, -10} {
		_, err := engine.Adjust(PriceBand{Min: 3000, Max: 4000}, surface, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "surface must be positive")
	}
}

func TestAdjust_Rounding(t *testing.T) {
	engine := NewEngine(nil)

	// base_mid = 1001.115; odd numbers exercise the 2-decimal rounding.
	est, err := engine.Adjust(PriceBand{Min: 1000.11, Max: 1002.12}, 33.3, map[string]string{
		"noise": "very_silent", // +0.03
	})
	require.NoError(t, err)

	assert.InDelta(t, 1030.11, est.AdjustedPriceMin, 0.001)
	assert.InDelta(t, 1032.18, est.AdjustedPriceMax, 0.001)
	assert.InDelta(t, est.AdjustedMid*33.3, est.TotalMid, 0.01)
}
