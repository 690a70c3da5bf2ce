package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// round2 rounds a stock figure to two decimal places, half away from zero.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// BoxesFor returns the whole boxes needed to cover units. Units are taken
// at stock resolution (two decimals) and any remainder above that costs a
// full box.
func BoxesFor(units, unitsPerBox float64) int {
	if units <= 0 {
		return 0
	}
	if unitsPerBox <= 0 {
		unitsPerBox = 1
	}
	need := decimal.NewFromFloat(round2(units))
	return int(need.Div(decimal.NewFromFloat(unitsPerBox)).Ceil().IntPart())
}
