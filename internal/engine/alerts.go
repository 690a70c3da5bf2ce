package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// alertNamespace seeds deterministic alert IDs.
var alertNamespace = uuid.MustParse("5f0c3a52-6d8e-4f43-9b7a-2a1c9e1f4d10")

// AlertID derives a stable ID from the product code, the alert date and the
// position of the alert in its run, so regenerating unchanged inputs yields
// the same IDs.
func AlertID(code, alertDate string, seq int) string {
	return uuid.NewSHA1(alertNamespace, []byte(fmt.Sprintf("%s|%s|%d", code, alertDate, seq))).String()
}

// monthPlan holds the effective parameters of one projection month.
type monthPlan struct {
	start time.Time
	end   time.Time
	daily float64
	lead  int
	rop   float64
}

func (e *Engine) monthPlans(p *domain.Product) []monthPlan {
	plans := make([]monthPlan, 0, len(p.Projections))
	for i := range p.Projections {
		proj := &p.Projections[i]
		start, end, err := monthRange(proj)
		if err != nil {
			e.log.Warn().Err(err).Str("product", p.Code).Str("month", proj.Month).Msg("projection month ignored for alert generation")
			continue
		}
		daily := e.dailyConsumption(p, proj)
		lead := e.EffectiveLeadTime(p, proj.Month)
		ss, _ := e.EffectiveSafetyStock(p, proj.Month)
		plans = append(plans, monthPlan{
			start: start,
			end:   end,
			daily: daily,
			lead:  lead,
			rop:   round2(daily*float64(lead) + round2(ss)),
		})
	}
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].start.Before(plans[j].start) })
	return plans
}

type arrival struct {
	day   time.Time
	units float64
}

// GenerateAlerts replays the horizon day by day tracking physical stock
// and total stock (physical plus on order) and emits an alert whenever the
// total falls to or below the month reorder point. Alerts already attached
// to the product are ignored; manual pending orders are honored.
func (e *Engine) GenerateAlerts(p *domain.Product) []domain.Alert {
	plans := e.monthPlans(p)
	if len(plans) == 0 {
		return nil
	}

	day := simulationStart(p, plans[0].start)
	if day.Before(plans[0].start) {
		day = plans[0].start
	}
	last := plans[len(plans)-1].end
	upb := e.UnitsPerBox(p)

	physical := math.Max(p.TotalStock, 0)
	total := physical

	var manual []arrival
	var created []arrival
	for _, po := range p.ManualOrders() {
		at, err := domain.ParseDate(po.ArrivalDate)
		if err != nil {
			continue
		}
		manual = append(manual, arrival{day: at, units: po.Units})
		placed := day
		if po.CreatedDate != "" {
			if c, err := domain.ParseDate(po.CreatedDate); err == nil && c.After(day) {
				placed = c
			}
		}
		if placed.After(day) {
			created = append(created, arrival{day: placed, units: po.Units})
		} else {
			total += po.Units
		}
	}
	sort.SliceStable(manual, func(i, j int) bool { return manual[i].day.Before(manual[j].day) })
	sort.SliceStable(created, func(i, j int) bool { return created[i].day.Before(created[j].day) })

	var alerts []domain.Alert
	var incoming []arrival
	m, nm, nc, ni := 0, 0, 0, 0
	for ; !day.After(last); day = day.AddDate(0, 0, 1) {
		for m < len(plans)-1 && day.After(plans[m].end) {
			m++
		}
		plan := plans[m]

		for nc < len(created) && !created[nc].day.After(day) {
			total += created[nc].units
			nc++
		}
		for nm < len(manual) && !manual[nm].day.After(day) {
			physical += manual[nm].units
			nm++
		}
		for ni < len(incoming) && !incoming[ni].day.After(day) {
			physical += incoming[ni].units
			ni++
		}

		if total <= plan.rop {
			deficit := round2(plan.rop - total + plan.daily*float64(plan.lead))
			boxes := BoxesFor(deficit, upb)
			units := round2(float64(boxes) * upb)
			if units > 0 {
				date := domain.FormatDate(day)
				at := day.AddDate(0, 0, plan.lead)
				alerts = append(alerts, domain.Alert{
					ID:           AlertID(p.Code, date, len(alerts)),
					AlertDate:    date,
					ArrivalDate:  domain.FormatDate(at),
					Units:        units,
					Boxes:        boxes,
					LeadTimeDays: plan.lead,
				})
				total += units
				incoming = append(incoming, arrival{day: at, units: units})
				e.log.Debug().
					Str("product", p.Code).
					Str("date", date).
					Float64("physical", round2(physical)).
					Float64("reorder_point", plan.rop).
					Float64("units", units).
					Msg("reorder alert")
			}
		}

		physical = math.Max(physical-plan.daily, 0)
		total = math.Max(total-plan.daily, 0)
	}
	return alerts
}

// RegenerateAlerts replaces the alerts of every projection with a fresh
// run of GenerateAlerts and returns the alerts that were attached.
func (e *Engine) RegenerateAlerts(p *domain.Product) []domain.Alert {
	alerts := e.GenerateAlerts(p)
	return e.AttachAlerts(p, alerts)
}

// ProjectionFor returns the index of the projection whose date range
// contains day, falling back to the month key, or -1.
func ProjectionFor(p *domain.Product, day time.Time) int {
	for i := range p.Projections {
		start, end, err := monthRange(&p.Projections[i])
		if err == nil && !day.Before(start) && !day.After(end) {
			return i
		}
	}
	return p.ProjectionIndex(domain.MonthKey(day))
}

// AttachAlerts clears every projection's alerts and files each alert under
// the month whose date range contains its alert date, falling back to the
// month key. Alerts that match no month are dropped with a warning.
func (e *Engine) AttachAlerts(p *domain.Product, alerts []domain.Alert) []domain.Alert {
	for i := range p.Projections {
		p.Projections[i].Alerts = nil
	}

	attached := make([]domain.Alert, 0, len(alerts))
	for _, a := range alerts {
		placed, err := domain.ParseDate(a.AlertDate)
		if err != nil {
			e.log.Warn().Err(err).Str("product", p.Code).Str("alert", a.ID).Msg("dropping alert with unparseable date")
			continue
		}
		idx := ProjectionFor(p, placed)
		if idx < 0 {
			e.log.Warn().Str("product", p.Code).Str("alert_date", a.AlertDate).Msg("dropping alert outside the projection horizon")
			continue
		}
		p.Projections[idx].Alerts = append(p.Projections[idx].Alerts, a)
		attached = append(attached, a)
	}
	return attached
}
