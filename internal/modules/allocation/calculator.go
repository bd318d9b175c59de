// Package allocation computes a portfolio's asset-class allocation and the
// drift against a target model portfolio.
package allocation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/steward-fi/steward/internal/domain"
)

// ClassAllocation represents one asset class's share of a portfolio
type ClassAllocation struct {
	AssetClass domain.AssetClass `json:"asset_class"`
	Value      float64           `json:"value"`
	Percentage float64           `json:"percentage"`
}

// Calculate aggregates holdings into percentage-of-portfolio by asset class.
// Cash is counted as a synthetic CASH bucket. Holdings referencing an unknown
// instrument are skipped (the instrument was removed from the catalog; its
// value cannot be priced).
//
// Percentages sum to 100 within floating-point tolerance for any portfolio
// with positive total value. The result is ordered by value, largest first.
func Calculate(
	holdings []domain.Holding,
	instruments map[string]domain.Instrument,
	cash float64,
) []ClassAllocation {
	classValues := make(map[domain.AssetClass]float64)

	for _, holding := range holdings {
		inst, ok := instruments[holding.InstrumentID]
		if !ok {
			continue
		}
		classValues[inst.AssetClass] += holding.MarketValue(inst.CurrentPrice)
	}

	if cash > 0 {
		classValues[domain.AssetClassCash] += cash
	}

	values := make([]float64, 0, len(classValues))
	for _, value := range classValues {
		values = append(values, value)
	}
	totalValue := floats.Sum(values)

	allocations := make([]ClassAllocation, 0, len(classValues))
	for class, value := range classValues {
		var pct float64
		if totalValue > 0 {
			pct = value / totalValue * 100
		}
		allocations = append(allocations, ClassAllocation{
			AssetClass: class,
			Value:      round(value, 2),
			Percentage: pct,
		})
	}

	// Largest first; tie-break by name for stable output
	sort.Slice(allocations, func(i, j int) bool {
		if allocations[i].Value != allocations[j].Value {
			return allocations[i].Value > allocations[j].Value
		}
		return allocations[i].AssetClass < allocations[j].AssetClass
	})

	return allocations
}

// Drift returns the halved sum of absolute differences between the current
// allocation and the model targets, taken over the union of asset classes
// (classes absent from one side count as 0%). The result is bounded in
// [0, 100]; drift(A, A) = 0 and drift is symmetric in its arguments.
func Drift(current []ClassAllocation, targets map[domain.AssetClass]float64) float64 {
	currentPct := make(map[domain.AssetClass]float64, len(current))
	for _, alloc := range current {
		currentPct[alloc.AssetClass] = alloc.Percentage
	}

	union := make(map[domain.AssetClass]bool, len(currentPct)+len(targets))
	for class := range currentPct {
		union[class] = true
	}
	for class := range targets {
		union[class] = true
	}

	diffs := make([]float64, 0, len(union))
	for class := range union {
		diffs = append(diffs, math.Abs(currentPct[class]-targets[class]))
	}

	return floats.Sum(diffs) / 2
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
