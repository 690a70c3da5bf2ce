package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// Normalize fills the gaps of a product freshly decoded from the forecast
// output: missing configuration falls back to the engine defaults, months
// are put in calendar order, alerts and manual orders get IDs, and the
// safety stock source is inferred.
func (e *Engine) Normalize(p *domain.Product) {
	p.Code = strings.TrimSpace(p.Code)
	p.UnitsPerBox = e.UnitsPerBox(p)

	cfg := &p.Config
	if cfg.ServiceLevel <= 0 || cfg.ServiceLevel >= 100 {
		cfg.ServiceLevel = e.opts.DefaultServiceLevel
	}
	if cfg.LeadTimeDays <= 0 {
		cfg.LeadTimeDays = e.opts.DefaultLeadTimeDays
	}
	if cfg.MinUnitsPerBox <= 0 {
		cfg.MinUnitsPerBox = e.opts.MinUnitsPerBox
	}
	switch cfg.SafetyStockSource {
	case domain.SourceManual, domain.SourceCalculated:
	default:
		if cfg.SafetyStock != nil {
			cfg.SafetyStockSource = domain.SourceManual
		} else {
			cfg.SafetyStockSource = domain.SourceCalculated
		}
	}

	sortProjections(p.Projections)
	if p.StartDate == "" && len(p.Projections) > 0 {
		p.StartDate = p.Projections[0].MonthStart
	}

	seq := 0
	for i := range p.Projections {
		for j := range p.Projections[i].Alerts {
			a := &p.Projections[i].Alerts[j]
			if a.ID == "" {
				a.ID = AlertID(p.Code, a.AlertDate, seq)
			}
			seq++
		}
	}
	for i := range p.PendingOrders {
		if p.PendingOrders[i].Manual && p.PendingOrders[i].ID == "" {
			p.PendingOrders[i].ID = uuid.NewString()
		}
	}
}

// sortProjections orders months by their first day. Months without usable
// dates keep their relative order after the dated ones.
func sortProjections(projections []domain.Projection) {
	type keyed struct {
		start time.Time
		dated bool
		proj  domain.Projection
	}
	months := make([]keyed, len(projections))
	for i := range projections {
		start, _, err := monthRange(&projections[i])
		months[i] = keyed{start: start, dated: err == nil, proj: projections[i]}
	}
	sort.SliceStable(months, func(i, j int) bool {
		if months[i].dated != months[j].dated {
			return months[i].dated
		}
		return months[i].dated && months[i].start.Before(months[j].start)
	})
	for i := range months {
		projections[i] = months[i].proj
	}
}
