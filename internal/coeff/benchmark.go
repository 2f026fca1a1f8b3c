package coeff

import (
	"fmt"
	"math"

	"github.com/vendocasa/omi-cli/internal/omi"
)

// VanoM2 converts cadastral vani (room-equivalent units) to square
// meters. Empirical average for category A dwellings.
const VanoM2 = 17.0

// Confidence grades for the benchmark comparison.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// BenchmarkComparison grades an adjusted estimate against real
// transaction prices. ClosestEURm2 and DifferencePct are nil when no
// comparable yields a usable price per square meter.
type BenchmarkComparison struct {
	HasComparables bool     `json:"has_comparables"`
	ClosestEURm2   *float64 `json:"closest_eur_m2,omitempty"`
	DifferencePct  *float64 `json:"difference_pct,omitempty"`
	Confidence     string   `json:"confidence"`
	Note           string   `json:"note"`
}

// PricePerM2 derives a transaction's EUR/m2: declared price over surface
// when the cadastral surface is known, else over vani converted at
// VanoM2. Returns false when no surface measure is usable.
func PricePerM2(t omi.Transaction) (float64, bool) {
	if t.DeclaredPrice == nil || *t.DeclaredPrice <= 0 {
		return 0, false
	}
	if t.CadastralMq != nil && *t.CadastralMq > 0 {
		return *t.DeclaredPrice / *t.CadastralMq, true
	}
	if t.CadastralVani != nil && *t.CadastralVani > 0 {
		return *t.DeclaredPrice / (*t.CadastralVani * VanoM2), true
	}
	return 0, false
}

// CompareBenchmarks grades adjustedEURm2 against the comparables. The
// closest derivable price per square meter wins (first encountered on
// ties); confidence follows the absolute percentage difference: within 5%
// high, within 15% medium, beyond low.
func CompareBenchmarks(adjustedEURm2 float64, comparables []omi.Transaction) BenchmarkComparison {
	if len(comparables) == 0 {
		return BenchmarkComparison{
			HasComparables: false,
			Confidence:     ConfidenceLow,
			Note: "Nessuna transazione comparabile disponibile nella zona. " +
				"L'aggiunta di dati reali di vendita migliorerebbe significativamente l'accuratezza.",
		}
	}

	closest := 0.0
	found := false
	for _, comp := range comparables {
		eurM2, ok := PricePerM2(comp)
		if !ok {
			continue
		}
		if !found || math.Abs(eurM2-adjustedEURm2) < math.Abs(closest-adjustedEURm2) {
			closest = eurM2
			found = true
		}
	}

	if !found {
		return BenchmarkComparison{
			HasComparables: true,
			Confidence:     ConfidenceLow,
			Note:           "Transazioni disponibili ma senza dati di superficie sufficienti per calcolare EUR/m2.",
		}
	}

	diffPct := round1((adjustedEURm2 - closest) / closest * 100)
	absDiff := math.Abs(diffPct)

	var confidence, note string
	switch {
	case absDiff <= 5:
		confidence = ConfidenceHigh
		note = fmt.Sprintf(
			"La stima corretta (%.0f EUR/m2) e entro il 5%% dalla transazione reale piu vicina (%.0f EUR/m2). Ottima coerenza.",
			adjustedEURm2, closest)
	case absDiff <= 15:
		confidence = ConfidenceMedium
		note = fmt.Sprintf(
			"La stima corretta (%.0f EUR/m2) differisce del %+.1f%% dalla transazione reale piu vicina (%.0f EUR/m2). "+
				"Differenza ragionevole, verificare i coefficienti applicati.",
			adjustedEURm2, diffPct, closest)
	default:
		confidence = ConfidenceLow
		note = fmt.Sprintf(
			"La stima corretta (%.0f EUR/m2) differisce del %+.1f%% dalla transazione reale piu vicina (%.0f EUR/m2). "+
				"Differenza significativa: rivedere i coefficienti o considerare fattori non inclusi.",
			adjustedEURm2, diffPct, closest)
	}

	closestRounded := round2(closest)
	return BenchmarkComparison{
		HasComparables: true,
		ClosestEURm2:   &closestRounded,
		DifferencePct:  &diffPct,
		Confidence:     confidence,
		Note:           note,
	}
}
