package engine

import (
	"math"
	"sort"
	"time"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// order is a pending receipt normalized for simulation. It counts as in
// transit on days in [start, arrival) and is received on arrival.
type order struct {
	start   time.Time
	arrival time.Time
	units   float64
	alertID string
	manual  bool
}

// monthRange returns the first and last simulated day of a projection.
// Explicit bounds win; otherwise the calendar month of the key is used.
func monthRange(proj *domain.Projection) (time.Time, time.Time, error) {
	start, errStart := domain.ParseDate(proj.MonthStart)
	end, errEnd := domain.ParseDate(proj.MonthEnd)
	if errStart == nil && errEnd == nil && !end.Before(start) {
		return start, end, nil
	}
	first, err := domain.ParseMonthKey(proj.Month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end = domain.MonthBounds(first)
	return start, end, nil
}

// simulationStart is the product start date, or the first month start when
// the product does not carry a usable one.
func simulationStart(p *domain.Product, fallback time.Time) time.Time {
	if start, err := domain.ParseDate(p.StartDate); err == nil {
		return start
	}
	return fallback
}

// Simulate recomputes the daily trajectory of every projection month from
// the product stock, its pending orders and the alerts already attached,
// then refreshes the derived month figures and the pending order list.
//
// Month ending stock carries forward as the next month starting stock.
// Orders due on or before a day are received before that day consumes.
func (e *Engine) Simulate(p *domain.Product) {
	if len(p.Projections) == 0 {
		return
	}

	origin, last, ok := e.horizon(p)
	if !ok {
		e.log.Warn().Str("product", p.Code).Msg("no projection month has usable dates, skipping simulation")
		return
	}
	simStart := simulationStart(p, origin)
	orders := e.collectOrders(p, simStart)
	transit := transitByDay(orders, origin, last)

	stock := round2(math.Max(p.TotalStock, 0))
	next := 0
	for i := range p.Projections {
		proj := &p.Projections[i]
		proj.StartingStock = stock

		start, end, err := monthRange(proj)
		if err != nil {
			e.log.Warn().Err(err).Str("product", p.Code).Str("month", proj.Month).Msg("skipping projection month without usable dates")
			proj.EndingStock = stock
			continue
		}

		daily := e.dailyConsumption(p, proj)
		days := make([]domain.DailyStock, 0, domain.DaysBetween(start, end)+1)
		running := stock
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			for next < len(orders) && !orders[next].arrival.After(d) {
				running += orders[next].units
				next++
			}
			running = math.Max(running-daily, 0)

			var inTransit float64
			if idx := domain.DaysBetween(origin, d); idx >= 0 && idx < len(transit) {
				inTransit = transit[idx]
			}
			days = append(days, domain.DailyStock{
				Date:                domain.FormatDate(d),
				ProjectedStock:      round2(running),
				UnitsInTransit:      round2(inTransit),
				TotalProjectedStock: round2(running + inTransit),
			})
		}

		proj.DailyStock = days
		proj.EndingStock = round2(running)
		e.checkMonthSummary(p.Code, proj)
		lastDay := days[len(days)-1]
		proj.UnitsInTransit = lastDay.UnitsInTransit
		proj.TotalProjectedStock = lastDay.TotalProjectedStock
		e.applyMonthParams(p, proj, daily)

		stock = proj.EndingStock
	}

	p.PendingOrders = materializeOrders(p, orders)
}

// checkMonthSummary warns when the month ending stock and the last
// simulated day disagree by more than a cent. It reports whether they agree.
func (e *Engine) checkMonthSummary(code string, proj *domain.Projection) bool {
	if len(proj.DailyStock) == 0 {
		return true
	}
	lastDay := proj.DailyStock[len(proj.DailyStock)-1]
	if math.Abs(lastDay.ProjectedStock-proj.EndingStock) <= consistencyTolerance {
		return true
	}
	e.log.Warn().
		Str("product", code).
		Str("month", proj.Month).
		Float64("last_day", lastDay.ProjectedStock).
		Float64("ending_stock", proj.EndingStock).
		Msg("month ending stock differs from last simulated day")
	return false
}

// horizon returns the first and last day covered by the projections.
func (e *Engine) horizon(p *domain.Product) (time.Time, time.Time, bool) {
	var first, last time.Time
	found := false
	for i := range p.Projections {
		start, end, err := monthRange(&p.Projections[i])
		if err != nil {
			continue
		}
		if !found || start.Before(first) {
			first = start
		}
		if !found || end.After(last) {
			last = end
		}
		found = true
	}
	return first, last, found
}

// applyMonthParams refreshes the effective parameters and the figures
// derived from them for one month.
func (e *Engine) applyMonthParams(p *domain.Product, proj *domain.Projection, daily float64) {
	lt := e.EffectiveLeadTime(p, proj.Month)
	ss, source := e.EffectiveSafetyStock(p, proj.Month)
	ss = round2(ss)

	proj.DailyConsumption = daily
	proj.LeadTimeDays = lt
	proj.SafetyStock = ss
	proj.SafetyStockSource = source
	proj.ReorderPoint = round2(daily*float64(lt) + ss)
	proj.Risk = riskLevel(proj.EndingStock, proj.ReorderPoint, ss)
	proj.CoverageDays = 0
	if daily > 0 {
		proj.CoverageDays = round2(proj.EndingStock / daily)
	}
}

// collectOrders gathers manual pending orders and the orders implied by
// attached alerts, sorted by arrival. Orders with unusable dates are
// skipped. Alerts without an arrival date get one from their lead time.
func (e *Engine) collectOrders(p *domain.Product, simStart time.Time) []order {
	var orders []order

	for _, po := range p.PendingOrders {
		if !po.Manual {
			continue
		}
		arrival, err := domain.ParseDate(po.ArrivalDate)
		if err != nil {
			e.log.Warn().Err(err).Str("product", p.Code).Str("order", po.ID).Msg("skipping manual order without usable arrival date")
			continue
		}
		start := simStart
		if po.CreatedDate != "" {
			if created, err := domain.ParseDate(po.CreatedDate); err == nil {
				start = created
			}
		}
		orders = append(orders, order{start: start, arrival: arrival, units: po.Units, manual: true})
	}

	for i := range p.Projections {
		alerts := p.Projections[i].Alerts
		for j := range alerts {
			a := &alerts[j]
			placed, err := domain.ParseDate(a.AlertDate)
			if err != nil {
				e.log.Warn().Err(err).Str("product", p.Code).Str("alert", a.ID).Msg("skipping alert without usable date")
				continue
			}
			arrival, err := domain.ParseDate(a.ArrivalDate)
			if err != nil {
				lt := a.LeadTimeDays
				if lt <= 0 {
					lt = e.EffectiveLeadTime(p, domain.MonthKey(placed))
					a.LeadTimeDays = lt
				}
				arrival = placed.AddDate(0, 0, lt)
				a.ArrivalDate = domain.FormatDate(arrival)
			}
			orders = append(orders, order{start: placed, arrival: arrival, units: a.Units, alertID: a.ID})
		}
	}

	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].arrival.Equal(orders[j].arrival) {
			return orders[i].arrival.Before(orders[j].arrival)
		}
		return orders[i].start.Before(orders[j].start)
	})
	return orders
}

// transitByDay precomputes the units in transit for every day of the
// horizon, index 0 being origin.
func transitByDay(orders []order, origin, last time.Time) []float64 {
	n := domain.DaysBetween(origin, last) + 1
	if n <= 0 {
		return nil
	}
	transit := make([]float64, n)
	for _, o := range orders {
		from := domain.DaysBetween(origin, o.start)
		if from < 0 {
			from = 0
		}
		to := domain.DaysBetween(origin, o.arrival)
		if to > n {
			to = n
		}
		for i := from; i < to; i++ {
			transit[i] += o.units
		}
	}
	return transit
}

// materializeOrders rebuilds the pending order list: manual orders are
// kept verbatim and every alert becomes a system order.
func materializeOrders(p *domain.Product, orders []order) []domain.PendingOrder {
	out := p.ManualOrders()
	for _, o := range orders {
		if o.manual {
			continue
		}
		out = append(out, domain.PendingOrder{
			ArrivalDate: domain.FormatDate(o.arrival),
			Units:       o.units,
			CreatedDate: domain.FormatDate(o.start),
			AlertID:     o.alertID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ArrivalDate < out[j].ArrivalDate
	})
	return out
}
