package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// AlertNotification lists the alerts of one product that became due since
// the last notification.
type AlertNotification struct {
	UserID      string
	AnalysisID  string
	ProductCode string
	Description string
	Alerts      []domain.Alert
}

// Notifier delivers due alerts to the user.
type Notifier interface {
	Notify(ctx context.Context, n AlertNotification) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n AlertNotification) error {
	for _, a := range n.Alerts {
		log.Info().
			Str("user_id", n.UserID).
			Str("analysis_id", n.AnalysisID).
			Str("product", n.ProductCode).
			Str("alert_date", a.AlertDate).
			Str("arrival_date", a.ArrivalDate).
			Float64("units", a.Units).
			Int("boxes", a.Boxes).
			Msg("reorder alert due")
	}
	return nil
}

// notifyAlerts sends the alerts dated today or earlier that are newer than
// the last one notified for the product, then advances the marker. It is
// best-effort: failures are logged and the marker stays put.
func (s *ForecastService) notifyAlerts(ctx context.Context, userID, analysisID string, p *domain.Product) {
	today := s.today()
	last, _, err := s.lastAlerts.Get(ctx, userID, p.Code)
	if err != nil {
		log.Warn().Err(err).Str("product", p.Code).Msg("could not read last notified alert")
		return
	}

	var due []domain.Alert
	newest := last
	for _, a := range p.AllAlerts() {
		// ISO dates compare correctly as strings
		if a.AlertDate > today || a.AlertDate <= last {
			continue
		}
		due = append(due, a)
		if a.AlertDate > newest {
			newest = a.AlertDate
		}
	}
	if len(due) == 0 {
		return
	}

	err = s.notifier.Notify(ctx, AlertNotification{
		UserID:      userID,
		AnalysisID:  analysisID,
		ProductCode: p.Code,
		Description: p.Description,
		Alerts:      due,
	})
	if err != nil {
		log.Warn().Err(err).Str("product", p.Code).Msg("alert notification failed")
		return
	}
	if err := s.lastAlerts.Set(ctx, userID, p.Code, newest); err != nil {
		log.Warn().Err(err).Str("product", p.Code).Msg("could not store last notified alert")
	}
}
