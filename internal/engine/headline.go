package engine

import (
	"math"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// RecomputeHeadline refreshes the product-level safety stock, reorder
// point, deficit and order quantity from the parameters in force outside
// any month override.
func (e *Engine) RecomputeHeadline(p *domain.Product) {
	lt := e.EffectiveLeadTime(p, "")
	ss, source := e.EffectiveSafetyStock(p, "")
	ss = round2(ss)
	daily := math.Max(p.DailyConsumption, 0)

	rop := round2(daily*float64(lt) + ss)
	deficit := round2(math.Max(rop-p.TotalStock, 0))
	upb := e.UnitsPerBox(p)
	boxes := BoxesFor(deficit, upb)

	p.SafetyStock = ss
	p.SafetyStockSource = source
	p.ReorderPoint = rop
	p.Deficit = deficit
	p.BoxesToOrder = boxes
	p.UnitsToOrder = round2(float64(boxes) * upb)
	p.CoverageDays = 0
	if daily > 0 {
		p.CoverageDays = round2(p.TotalStock / daily)
	}
}
