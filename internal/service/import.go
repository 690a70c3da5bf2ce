package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/domain"
)

// ErrForecasterUnavailable is returned by RunForecast when no forecasting
// process is configured.
var ErrForecasterUnavailable = errors.New("forecast process is not configured")

// CreateAnalysis imports products produced by the forecasting process as a
// new analysis: defaults are filled, every product is re-simulated so the
// document is internally consistent, and the result is stored at version 1.
func (s *ForecastService) CreateAnalysis(ctx context.Context, userID, name string, products []domain.Product) (*domain.StoredAnalysis, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user_id", "is required")
	}
	if len(products) == 0 {
		return nil, domain.NewValidationError("products", "at least one product is required")
	}

	seen := make(map[string]bool, len(products))
	for i := range products {
		s.engine.Normalize(&products[i])
		code := products[i].Code
		if code == "" {
			return nil, domain.NewValidationError("CODIGO", "product %d has no code", i)
		}
		if seen[code] {
			return nil, domain.NewValidationError("CODIGO", "duplicate product code %s", code)
		}
		seen[code] = true
	}
	if err := s.engine.ResimulateAll(ctx, products, false); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if strings.TrimSpace(name) == "" {
		name = "Analysis " + domain.FormatDate(now)
	}
	a := &domain.Analysis{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Products:  products,
	}
	version, err := s.repo.Create(ctx, a)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("analysis_id", a.ID).
		Str("user_id", userID).
		Int("products", len(products)).
		Msg("analysis created")

	stored := &domain.StoredAnalysis{Analysis: a, Version: version}
	s.remember(ctx, stored)
	s.recordAudit(ctx, domain.OverrideRequest{UserID: userID, AnalysisID: a.ID, Override: domain.Recalculation{}},
		[]change{{field: "analysis", newValue: "created"}})
	for i := range a.Products {
		s.notifyAlerts(ctx, userID, a.ID, &a.Products[i])
	}
	return stored, nil
}

// RunForecast invokes the forecasting process and imports its output.
func (s *ForecastService) RunForecast(ctx context.Context, userID, name string) (*domain.StoredAnalysis, error) {
	if s.forecaster == nil {
		return nil, ErrForecasterUnavailable
	}
	products, err := s.forecaster.Run(ctx)
	if err != nil {
		return nil, err
	}
	return s.CreateAnalysis(ctx, userID, name, products)
}

// RecalculateAnalysis re-simulates every product of an analysis, with
// alert regeneration when regenerate is set.
func (s *ForecastService) RecalculateAnalysis(ctx context.Context, userID, analysisID string, regenerate bool) (*domain.StoredAnalysis, error) {
	saved, err := s.update(ctx, userID, analysisID, func(a *domain.Analysis) error {
		return s.engine.ResimulateAll(ctx, a.Products, regenerate)
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, domain.OverrideRequest{UserID: userID, AnalysisID: analysisID, Override: domain.Recalculation{}},
		[]change{{field: "analysis", newValue: "recalculated"}})
	for i := range saved.Analysis.Products {
		s.notifyAlerts(ctx, userID, analysisID, &saved.Analysis.Products[i])
	}
	return saved, nil
}
