package engine

import (
	"math"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// EffectiveLeadTime resolves the lead time in force for monthKey:
// a per-month override, else the product configuration, else the engine
// default. An empty monthKey skips the override lookup.
func (e *Engine) EffectiveLeadTime(p *domain.Product, monthKey string) int {
	if monthKey != "" {
		if days, ok := p.Config.Overrides.LeadTimeDays[monthKey]; ok && days > 0 {
			return days
		}
	}
	if p.Config.LeadTimeDays > 0 {
		return p.Config.LeadTimeDays
	}
	return e.opts.DefaultLeadTimeDays
}

// EffectiveSafetyStock resolves the safety stock in force for monthKey and
// reports where it came from: a per-month override, else a manual product
// value, else the dynamic calculation.
func (e *Engine) EffectiveSafetyStock(p *domain.Product, monthKey string) (float64, string) {
	if monthKey != "" {
		if v, ok := p.Config.Overrides.SafetyStock[monthKey]; ok {
			return v, domain.SourceManual
		}
	}
	if p.Config.SafetyStockSource == domain.SourceManual && p.Config.SafetyStock != nil {
		return *p.Config.SafetyStock, domain.SourceManual
	}

	if p.SigmaD == 0 {
		ev := e.log.Debug()
		if monthKey == "" {
			ev = e.log.Warn()
		}
		ev.Str("product", p.Code).Str("month", monthKey).Msg("demand standard deviation is zero, safety stock is zero")
	}
	return DynamicSafetyStock(e.serviceLevel(p), p.SigmaD, e.EffectiveLeadTime(p, monthKey)), domain.SourceCalculated
}

func (e *Engine) serviceLevel(p *domain.Product) float64 {
	if sl := p.Config.ServiceLevel; sl > 0 && sl < 100 {
		return sl
	}
	return e.opts.DefaultServiceLevel
}

// UnitsPerBox is the box size orders are rounded to. It never returns less
// than one unit or the configured minimum.
func (e *Engine) UnitsPerBox(p *domain.Product) float64 {
	upb := p.UnitsPerBox
	if upb <= 0 {
		upb = 1
	}
	return maxFloat(upb, p.Config.MinUnitsPerBox, e.opts.MinUnitsPerBox)
}

// dailyConsumption is the rounded consumption rate used for a month.
func (e *Engine) dailyConsumption(p *domain.Product, proj *domain.Projection) float64 {
	switch {
	case proj.DailyConsumption > 0:
		return round2(proj.DailyConsumption)
	case proj.MonthlyConsumption > 0 && p.Config.MonthlyConsumptionDays > 0:
		return round2(proj.MonthlyConsumption / float64(p.Config.MonthlyConsumptionDays))
	default:
		return round2(math.Max(p.DailyConsumption, 0))
	}
}

func riskLevel(endingStock, reorderPoint, safetyStock float64) domain.RiskLevel {
	switch {
	case endingStock > reorderPoint:
		return domain.RiskLow
	case endingStock > safetyStock:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}
