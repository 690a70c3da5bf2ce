// internal/service/forecast_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/cache"
	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/engine"
	"github.com/andresuchdata/stockcast/internal/repository"
)

const defaultSaveRetries = 3

// Forecaster produces a fresh set of products from the upstream
// forecasting process.
type Forecaster interface {
	Run(ctx context.Context) ([]domain.Product, error)
}

// Deps wires a ForecastService. Repo and Engine are required; the rest
// fall back to in-process defaults.
type Deps struct {
	Repo        repository.AnalysisRepository
	Audit       repository.AuditRepository
	Engine      *engine.Engine
	Cache       cache.AnalysisCache
	LastAlerts  cache.LastAlertStore
	Notifier    Notifier
	Forecaster  Forecaster
	SaveRetries int
	Now         func() time.Time
}

// ForecastService applies user overrides to stored analyses and keeps
// their projections consistent.
type ForecastService struct {
	repo       repository.AnalysisRepository
	audit      repository.AuditRepository
	engine     *engine.Engine
	cache      cache.AnalysisCache
	lastAlerts cache.LastAlertStore
	notifier   Notifier
	forecaster Forecaster
	retries    int
	now        func() time.Time
}

func NewForecastService(d Deps) *ForecastService {
	s := &ForecastService{
		repo:       d.Repo,
		audit:      d.Audit,
		engine:     d.Engine,
		cache:      d.Cache,
		lastAlerts: d.LastAlerts,
		notifier:   d.Notifier,
		forecaster: d.Forecaster,
		retries:    d.SaveRetries,
		now:        d.Now,
	}
	if s.cache == nil {
		s.cache = cache.NewNoopAnalysisCache()
	}
	if s.lastAlerts == nil {
		s.lastAlerts = cache.NewMemoryLastAlertStore()
	}
	if s.notifier == nil {
		s.notifier = LogNotifier{}
	}
	if s.retries <= 0 {
		s.retries = defaultSaveRetries
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *ForecastService) today() string {
	return domain.FormatDate(s.now())
}

// load reads an analysis through the cache. fresh skips the cache, which
// is what a retry after a conflict needs.
func (s *ForecastService) load(ctx context.Context, userID, analysisID string, fresh bool) (*domain.StoredAnalysis, error) {
	if !fresh {
		stored, ok, err := s.cache.Get(ctx, userID, analysisID)
		if err != nil {
			log.Warn().Err(err).Str("analysis_id", analysisID).Msg("analysis cache read failed")
		} else if ok {
			return stored, nil
		}
	}

	stored, err := s.repo.Get(ctx, userID, analysisID)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, stored)
	return stored, nil
}

func (s *ForecastService) remember(ctx context.Context, stored *domain.StoredAnalysis) {
	if err := s.cache.Set(ctx, stored); err != nil {
		log.Warn().Err(err).Str("analysis_id", stored.Analysis.ID).Msg("analysis cache write failed")
	}
}

func (s *ForecastService) forget(ctx context.Context, userID, analysisID string) {
	if err := s.cache.Invalidate(ctx, userID, analysisID); err != nil {
		log.Warn().Err(err).Str("analysis_id", analysisID).Msg("analysis cache invalidation failed")
	}
}

// update runs one read-modify-write cycle of an analysis, retrying from a
// fresh read when the save loses a race with another writer. modify must
// not have side effects outside the analysis it is given.
func (s *ForecastService) update(ctx context.Context, userID, analysisID string, modify func(a *domain.Analysis) error) (*domain.StoredAnalysis, error) {
	fresh := false
	for attempt := 1; ; attempt++ {
		stored, err := s.load(ctx, userID, analysisID, fresh)
		if err != nil {
			return nil, err
		}
		if err := modify(stored.Analysis); err != nil {
			return nil, err
		}

		version, err := s.repo.Save(ctx, stored.Analysis, stored.Version)
		if err == nil {
			saved := &domain.StoredAnalysis{Analysis: stored.Analysis, Version: version}
			s.remember(ctx, saved)
			return saved, nil
		}

		s.forget(ctx, userID, analysisID)
		if !errors.Is(err, domain.ErrConflict) || attempt > s.retries {
			return nil, err
		}
		log.Info().
			Str("analysis_id", analysisID).
			Int("attempt", attempt).
			Msg("analysis changed concurrently, retrying")
		fresh = true
	}
}

// Apply runs one override through the full pipeline: locate the product,
// validate and apply the change, re-simulate, recompute the headline
// figures, persist, then record the audit trail and notify new alerts.
func (s *ForecastService) Apply(ctx context.Context, req domain.OverrideRequest) (*domain.Product, error) {
	if req.Override == nil {
		return nil, domain.NewValidationError("override", "is required")
	}

	var product *domain.Product
	var changes []change
	_, err := s.update(ctx, req.UserID, req.AnalysisID, func(a *domain.Analysis) error {
		p, ok := a.Product(req.ProductCode)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, req.ProductCode)
		}

		var err error
		if changes, err = s.applyOverride(p, req.Override); err != nil {
			return err
		}
		s.engine.Recalculate(p, req.Override.AffectsReorderTiming())
		product = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("analysis_id", req.AnalysisID).
		Str("product", req.ProductCode).
		Str("override", string(req.Override.Kind())).
		Msg("override applied")

	s.recordAudit(ctx, req, changes)
	s.notifyAlerts(ctx, req.UserID, req.AnalysisID, product)
	return product, nil
}

// ApplySafetyStock pins the safety stock of one projection month.
func (s *ForecastService) ApplySafetyStock(ctx context.Context, userID, analysisID, code string, projectionIndex int, value float64) (*domain.Product, error) {
	return s.Apply(ctx, domain.OverrideRequest{
		UserID: userID, AnalysisID: analysisID, ProductCode: code,
		Override: domain.SafetyStockOverride{ProjectionIndex: projectionIndex, Value: value},
	})
}

// ApplyLeadTime pins the lead time of one projection month.
func (s *ForecastService) ApplyLeadTime(ctx context.Context, userID, analysisID, code string, projectionIndex, days int) (*domain.Product, error) {
	return s.Apply(ctx, domain.OverrideRequest{
		UserID: userID, AnalysisID: analysisID, ProductCode: code,
		Override: domain.LeadTimeOverride{ProjectionIndex: projectionIndex, Days: days},
	})
}

func (s *ForecastService) UpdateAlert(ctx context.Context, userID, analysisID, code string, update domain.AlertUpdate) (*domain.Product, error) {
	return s.Apply(ctx, domain.OverrideRequest{
		UserID: userID, AnalysisID: analysisID, ProductCode: code,
		Override: update,
	})
}

func (s *ForecastService) AddManualTransit(ctx context.Context, userID, analysisID, code string, transit domain.ManualTransit) (*domain.Product, error) {
	return s.Apply(ctx, domain.OverrideRequest{
		UserID: userID, AnalysisID: analysisID, ProductCode: code,
		Override: transit,
	})
}

// Recalculate re-runs the whole pipeline on one product without changing
// its inputs.
func (s *ForecastService) Recalculate(ctx context.Context, userID, analysisID, code string) (*domain.Product, error) {
	return s.Apply(ctx, domain.OverrideRequest{
		UserID: userID, AnalysisID: analysisID, ProductCode: code,
		Override: domain.Recalculation{},
	})
}

// GetAnalysisData returns the stored analysis with its version.
func (s *ForecastService) GetAnalysisData(ctx context.Context, userID, analysisID string) (*domain.StoredAnalysis, error) {
	return s.load(ctx, userID, analysisID, false)
}

// GetProduct returns one product of an analysis.
func (s *ForecastService) GetProduct(ctx context.Context, userID, analysisID, code string) (*domain.Product, error) {
	stored, err := s.load(ctx, userID, analysisID, false)
	if err != nil {
		return nil, err
	}
	p, ok := stored.Analysis.Product(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, code)
	}
	return p, nil
}

func (s *ForecastService) ListAnalyses(ctx context.Context, userID string) ([]domain.AnalysisSummary, error) {
	return s.repo.List(ctx, userID)
}

// ListAudit returns the newest audit entries of an analysis first.
func (s *ForecastService) ListAudit(ctx context.Context, userID, analysisID string, limit int) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return []domain.AuditEntry{}, nil
	}
	if _, err := s.load(ctx, userID, analysisID, false); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, userID, analysisID, limit)
}
