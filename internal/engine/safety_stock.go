package engine

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ZFactor is the inverse standard normal CDF at p, for p in (0, 1).
func ZFactor(p float64) float64 {
	return distuv.UnitNormal.Quantile(p)
}

// DynamicSafetyStock computes z(serviceLevel/100) * sigmaD * sqrt(leadTimeDays).
// serviceLevel is a percentage. A zero sigmaD yields zero; service levels
// under 50% would give a negative buffer and are floored at zero.
func DynamicSafetyStock(serviceLevel, sigmaD float64, leadTimeDays int) float64 {
	if sigmaD <= 0 || leadTimeDays <= 0 {
		return 0
	}
	if serviceLevel <= 0 || serviceLevel >= 100 {
		serviceLevel = DefaultServiceLevel
	}
	ss := ZFactor(serviceLevel/100) * sigmaD * math.Sqrt(float64(leadTimeDays))
	return math.Max(ss, 0)
}
