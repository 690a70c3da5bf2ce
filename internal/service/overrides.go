package service

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/engine"
)

// change is one audited field transition.
type change struct {
	field    string
	oldValue string
	newValue string
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func validNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// applyOverride validates o against p and, only when valid, mutates p.
func (s *ForecastService) applyOverride(p *domain.Product, o domain.Override) ([]change, error) {
	switch o := o.(type) {
	case domain.SafetyStockOverride:
		return s.applySafetyStock(p, o)
	case domain.LeadTimeOverride:
		return s.applyLeadTime(p, o)
	case domain.AlertUpdate:
		return s.applyAlertUpdate(p, o)
	case domain.ManualTransit:
		return s.applyManualTransit(p, o)
	case domain.Recalculation:
		return nil, nil
	default:
		return nil, domain.NewValidationError("override", "unsupported kind %T", o)
	}
}

func projectionAt(p *domain.Product, idx int) (*domain.Projection, error) {
	if idx < 0 || idx >= len(p.Projections) {
		return nil, domain.NewValidationError("projection_index", "%d is out of range [0, %d)", idx, len(p.Projections))
	}
	return &p.Projections[idx], nil
}

func (s *ForecastService) applySafetyStock(p *domain.Product, o domain.SafetyStockOverride) ([]change, error) {
	proj, err := projectionAt(p, o.ProjectionIndex)
	if err != nil {
		return nil, err
	}
	if !validNumber(o.Value) || o.Value < 0 {
		return nil, domain.NewValidationError("value", "safety stock must be a non-negative number")
	}

	old, _ := s.engine.EffectiveSafetyStock(p, proj.Month)
	if p.Config.Overrides.SafetyStock == nil {
		p.Config.Overrides.SafetyStock = make(map[string]float64)
	}
	p.Config.Overrides.SafetyStock[proj.Month] = o.Value

	return []change{{
		field:    fmt.Sprintf("SAFETY_STOCK[%s]", proj.Month),
		oldValue: formatFloat(old),
		newValue: formatFloat(o.Value),
	}}, nil
}

func (s *ForecastService) applyLeadTime(p *domain.Product, o domain.LeadTimeOverride) ([]change, error) {
	proj, err := projectionAt(p, o.ProjectionIndex)
	if err != nil {
		return nil, err
	}
	if o.Days <= 0 {
		return nil, domain.NewValidationError("days", "lead time must be positive, got %d", o.Days)
	}

	old := s.engine.EffectiveLeadTime(p, proj.Month)
	if p.Config.Overrides.LeadTimeDays == nil {
		p.Config.Overrides.LeadTimeDays = make(map[string]int)
	}
	p.Config.Overrides.LeadTimeDays[proj.Month] = o.Days

	return []change{{
		field:    fmt.Sprintf("LEAD_TIME_DAYS[%s]", proj.Month),
		oldValue: strconv.Itoa(old),
		newValue: strconv.Itoa(o.Days),
	}}, nil
}

// applyAlertUpdate edits one alert in place, recomputing its arrival date
// and box count, and refiles it when its date moves to another month.
func (s *ForecastService) applyAlertUpdate(p *domain.Product, o domain.AlertUpdate) ([]change, error) {
	if o.AlertID == "" {
		return nil, domain.NewValidationError("alert_id", "is required")
	}
	pi, ai, ok := p.FindAlert(o.AlertID)
	if !ok {
		return nil, domain.NewValidationError("alert_id", "alert %s not found", o.AlertID)
	}
	if !validNumber(o.Units) || o.Units < 0 {
		return nil, domain.NewValidationError("units", "must be a non-negative number")
	}
	if o.LeadTimeDays < 0 {
		return nil, domain.NewValidationError("lead_time_days", "must be positive, got %d", o.LeadTimeDays)
	}
	if o.AlertDate != "" {
		day, err := domain.ParseDate(o.AlertDate)
		if err != nil {
			return nil, domain.NewValidationError("alert_date", "%v", err)
		}
		if engine.ProjectionFor(p, day) < 0 {
			return nil, domain.NewValidationError("alert_date", "%s is outside the projection horizon", o.AlertDate)
		}
	}

	alert := &p.Projections[pi].Alerts[ai]
	before := *alert
	if o.AlertDate != "" {
		day, _ := domain.ParseDate(o.AlertDate)
		alert.AlertDate = domain.FormatDate(day)
	}
	if o.Units > 0 {
		alert.Units = o.Units
		alert.Boxes = engine.BoxesFor(o.Units, s.engine.UnitsPerBox(p))
	}
	if o.LeadTimeDays > 0 {
		alert.LeadTimeDays = o.LeadTimeDays
	}
	if alert.LeadTimeDays <= 0 {
		placed, _ := domain.ParseDate(alert.AlertDate)
		alert.LeadTimeDays = s.engine.EffectiveLeadTime(p, domain.MonthKey(placed))
	}
	if placed, err := domain.ParseDate(alert.AlertDate); err == nil {
		alert.ArrivalDate = domain.FormatDate(placed.AddDate(0, 0, alert.LeadTimeDays))
	}
	after := *alert

	if before.AlertDate != after.AlertDate {
		s.engine.AttachAlerts(p, p.AllAlerts())
	}

	prefix := fmt.Sprintf("alert[%s].", after.ID)
	var changes []change
	if before.AlertDate != after.AlertDate {
		changes = append(changes, change{prefix + "fecha_alerta", before.AlertDate, after.AlertDate})
	}
	if before.Units != after.Units {
		changes = append(changes, change{prefix + "unidades", formatFloat(before.Units), formatFloat(after.Units)})
	}
	if before.LeadTimeDays != after.LeadTimeDays {
		changes = append(changes, change{prefix + "lead_time_especifico", strconv.Itoa(before.LeadTimeDays), strconv.Itoa(after.LeadTimeDays)})
	}
	if before.ArrivalDate != after.ArrivalDate {
		changes = append(changes, change{prefix + "fecha_arribo", before.ArrivalDate, after.ArrivalDate})
	}
	return changes, nil
}

func (s *ForecastService) applyManualTransit(p *domain.Product, o domain.ManualTransit) ([]change, error) {
	if !validNumber(o.Units) || o.Units <= 0 {
		return nil, domain.NewValidationError("units", "must be a positive number")
	}
	arrival, err := domain.ParseDate(o.ArrivalDate)
	if err != nil {
		return nil, domain.NewValidationError("arrival_date", "%v", err)
	}
	created := s.today()
	if o.CreatedDate != "" {
		created = o.CreatedDate
	}
	createdDay, err := domain.ParseDate(created)
	if err != nil {
		return nil, domain.NewValidationError("created_date", "%v", err)
	}
	if createdDay.After(arrival) {
		return nil, domain.NewValidationError("arrival_date", "%s is before the creation date %s", o.ArrivalDate, created)
	}

	order := domain.PendingOrder{
		ID:          uuid.NewString(),
		ArrivalDate: domain.FormatDate(arrival),
		Units:       o.Units,
		CreatedDate: domain.FormatDate(createdDay),
		Manual:      true,
	}
	p.PendingOrders = append(p.PendingOrders, order)

	return []change{{
		field:    "PEDIDOS_POR_LLEGAR",
		newValue: fmt.Sprintf("%s units arriving %s (order %s)", formatFloat(order.Units), order.ArrivalDate, order.ID),
	}}, nil
}

// recordAudit is best-effort: failures are logged and never surfaced.
func (s *ForecastService) recordAudit(ctx context.Context, req domain.OverrideRequest, changes []change) {
	if s.audit == nil {
		return
	}
	if len(changes) == 0 {
		changes = []change{{}}
	}
	now := s.now().UTC()
	entries := make([]domain.AuditEntry, 0, len(changes))
	for _, c := range changes {
		entries = append(entries, domain.AuditEntry{
			UserID:      req.UserID,
			AnalysisID:  req.AnalysisID,
			ProductCode: req.ProductCode,
			Action:      string(req.Override.Kind()),
			Field:       c.field,
			OldValue:    c.oldValue,
			NewValue:    c.newValue,
			CreatedAt:   now,
		})
	}
	if err := s.audit.Record(ctx, entries); err != nil {
		log.Error().Err(err).
			Str("analysis_id", req.AnalysisID).
			Str("product", req.ProductCode).
			Msg("failed to record audit entry")
	}
}
