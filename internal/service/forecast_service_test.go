package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/stockcast/internal/cache"
	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/engine"
	"github.com/andresuchdata/stockcast/internal/repository"
	"github.com/andresuchdata/stockcast/internal/repository/memory"
)

const testUser = "u1"

var testNow = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []AlertNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, note AlertNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

type flakyRepo struct {
	repository.AnalysisRepository
	conflicts int
	saves     int
}

func (r *flakyRepo) Save(ctx context.Context, a *domain.Analysis, expected int64) (int64, error) {
	r.saves++
	if r.conflicts != 0 {
		r.conflicts--
		return 0, domain.ErrConflict
	}
	return r.AnalysisRepository.Save(ctx, a, expected)
}

type failingAudit struct{}

func (failingAudit) Record(context.Context, []domain.AuditEntry) error {
	return errors.New("audit store down")
}

func (failingAudit) List(context.Context, string, string, int) ([]domain.AuditEntry, error) {
	return nil, errors.New("audit store down")
}

type stubForecaster struct {
	products []domain.Product
	err      error
}

func (f stubForecaster) Run(context.Context) ([]domain.Product, error) {
	return f.products, f.err
}

type fixture struct {
	svc      *ForecastService
	repo     *flakyRepo
	audit    repository.AuditRepository
	notifier *recordingNotifier
	alerts   cache.LastAlertStore
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		repo:     &flakyRepo{AnalysisRepository: memory.NewAnalysisRepository()},
		audit:    memory.NewAuditRepository(),
		notifier: &recordingNotifier{},
		alerts:   cache.NewMemoryLastAlertStore(),
	}
	deps := Deps{
		Repo:       f.repo,
		Audit:      f.audit,
		Engine:     engine.New(engine.DefaultOptions(), zerolog.Nop()),
		LastAlerts: f.alerts,
		Notifier:   f.notifier,
		Now:        func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.svc = NewForecastService(deps)
	return f
}

func sampleProduct(code string, stock float64) domain.Product {
	daily := 10.0
	return domain.Product{
		Code:             code,
		Description:      "Guantes de nitrilo",
		StartDate:        "2025-01-01",
		UnitsPerBox:      1,
		TotalStock:       stock,
		DailyConsumption: daily,
		SigmaD:           2,
		Config: domain.Configuration{
			ServiceLevel:      99.99,
			LeadTimeDays:      20,
			SafetyStockSource: domain.SourceCalculated,
		},
		Projections: []domain.Projection{
			{Month: "ENE-2025", MonthStart: "2025-01-01", MonthEnd: "2025-01-31", DailyConsumption: daily},
			{Month: "FEB-2025", MonthStart: "2025-02-01", MonthEnd: "2025-02-28", DailyConsumption: daily},
			{Month: "MAR-2025", MonthStart: "2025-03-01", MonthEnd: "2025-03-31", DailyConsumption: daily},
		},
	}
}

func (f *fixture) create(t *testing.T, products ...domain.Product) *domain.StoredAnalysis {
	t.Helper()
	if len(products) == 0 {
		products = []domain.Product{sampleProduct("P1", 100)}
	}
	stored, err := f.svc.CreateAnalysis(context.Background(), testUser, "test", products)
	require.NoError(t, err)
	return stored
}

func TestCreateAnalysis(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t)

	assert.Equal(t, int64(1), stored.Version)
	p, ok := stored.Analysis.Product("P1")
	require.True(t, ok)
	require.NotEmpty(t, p.Projections[0].DailyStock)
	assert.Equal(t, 90.0, p.Projections[0].DailyStock[0].ProjectedStock)
	assert.Equal(t, domain.SourceCalculated, p.SafetyStockSource)

	list, err := f.svc.ListAnalyses(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stored.Analysis.ID, list[0].ID)
}

func TestCreateAnalysisValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var vErr *domain.ValidationError

	_, err := f.svc.CreateAnalysis(ctx, testUser, "dup", []domain.Product{sampleProduct("P1", 1), sampleProduct("P1", 2)})
	assert.ErrorAs(t, err, &vErr)

	_, err = f.svc.CreateAnalysis(ctx, "", "x", []domain.Product{sampleProduct("P1", 1)})
	assert.ErrorAs(t, err, &vErr)

	_, err = f.svc.CreateAnalysis(ctx, testUser, "x", nil)
	assert.ErrorAs(t, err, &vErr)
}

func TestApplySafetyStockOverride(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t)
	ctx := context.Background()

	p, err := f.svc.ApplySafetyStock(ctx, testUser, stored.Analysis.ID, "P1", 0, 50)
	require.NoError(t, err)

	assert.Equal(t, 50.0, p.Projections[0].SafetyStock)
	assert.Equal(t, domain.SourceManual, p.Projections[0].SafetyStockSource)
	assert.Equal(t, 250.0, p.Projections[0].ReorderPoint)
	for _, proj := range p.Projections[1:] {
		assert.Equal(t, domain.SourceCalculated, proj.SafetyStockSource, proj.Month)
		assert.InDelta(t, 33.26, proj.SafetyStock, 0.01, proj.Month)
	}
	// the headline figures ignore month overrides
	assert.Equal(t, domain.SourceCalculated, p.SafetyStockSource)

	again, err := f.svc.GetAnalysisData(ctx, testUser, stored.Analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)
	assert.Equal(t, 50.0, again.Analysis.Products[0].Config.Overrides.SafetyStock["ENE-2025"])

	entries, err := f.svc.ListAudit(ctx, testUser, stored.Analysis.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, string(domain.KindSafetyStock), entries[0].Action)
	assert.Equal(t, "SAFETY_STOCK[ENE-2025]", entries[0].Field)
	assert.Equal(t, "50", entries[0].NewValue)
}

func TestApplySafetyStockRaisesReorderPoint(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t)
	ctx := context.Background()

	low, err := f.svc.ApplySafetyStock(ctx, testUser, stored.Analysis.ID, "P1", 1, 10)
	require.NoError(t, err)
	lowROP := low.Projections[1].ReorderPoint

	high, err := f.svc.ApplySafetyStock(ctx, testUser, stored.Analysis.ID, "P1", 1, 60)
	require.NoError(t, err)
	assert.Greater(t, high.Projections[1].ReorderPoint, lowROP)
}

func TestApplyLeadTime(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t)

	p, err := f.svc.ApplyLeadTime(context.Background(), testUser, stored.Analysis.ID, "P1", 1, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, p.Projections[1].LeadTimeDays)
	assert.Equal(t, 20, p.Projections[0].LeadTimeDays)
	assert.NotEmpty(t, p.AllAlerts(), "lead time changes regenerate alerts")
}

func TestOverrideValidationLeavesDocumentUntouched(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t)
	ctx := context.Background()
	id := stored.Analysis.ID

	cases := map[string]func() error{
		"index out of range": func() error {
			_, err := f.svc.ApplyLeadTime(ctx, testUser, id, "P1", 7, 10)
			return err
		},
		"non-positive lead time": func() error {
			_, err := f.svc.ApplyLeadTime(ctx, testUser, id, "P1", 0, 0)
			return err
		},
		"negative safety stock": func() error {
			_, err := f.svc.ApplySafetyStock(ctx, testUser, id, "P1", 0, -1)
			return err
		},
		"missing alert": func() error {
			_, err := f.svc.UpdateAlert(ctx, testUser, id, "P1", domain.AlertUpdate{AlertID: "nope", Units: 5})
			return err
		},
		"zero transit units": func() error {
			_, err := f.svc.AddManualTransit(ctx, testUser, id, "P1", domain.ManualTransit{Units: 0, ArrivalDate: "2025-01-20"})
			return err
		},
		"arrival before creation": func() error {
			_, err := f.svc.AddManualTransit(ctx, testUser, id, "P1", domain.ManualTransit{Units: 5, ArrivalDate: "2025-01-02", CreatedDate: "2025-01-10"})
			return err
		},
	}
	for name, run := range cases {
		t.Run(name, func(t *testing.T) {
			var vErr *domain.ValidationError
			assert.ErrorAs(t, run(), &vErr)
		})
	}

	again, err := f.svc.GetAnalysisData(ctx, testUser, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Version)
	assert.Zero(t, f.repo.saves)
}

func TestNotFoundErrors(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Recalculate(ctx, testUser, "missing", "P1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Recalculate(ctx, "someone-else", stored.Analysis.ID, "P1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Recalculate(ctx, testUser, stored.Analysis.ID, "NOPE")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = f.svc.GetProduct(ctx, testUser, stored.Analysis.ID, "NOPE")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestManualTransitsSumInTransit(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t, sampleProduct("P1", 10000))
	ctx := context.Background()
	id := stored.Analysis.ID

	_, err := f.svc.AddManualTransit(ctx, testUser, id, "P1", domain.ManualTransit{Units: 20, ArrivalDate: "2025-01-10", CreatedDate: "2025-01-01"})
	require.NoError(t, err)
	p, err := f.svc.AddManualTransit(ctx, testUser, id, "P1", domain.ManualTransit{Units: 20, ArrivalDate: "2025-01-20", CreatedDate: "2025-01-05"})
	require.NoError(t, err)

	require.Len(t, p.ManualOrders(), 2)
	days := p.Projections[0].DailyStock
	assert.Equal(t, 20.0, days[0].UnitsInTransit)
	assert.Equal(t, 40.0, days[4].UnitsInTransit)
	assert.Equal(t, 40.0, days[8].UnitsInTransit)
	assert.Equal(t, 20.0, days[9].UnitsInTransit)
	assert.Equal(t, 0.0, days[19].UnitsInTransit)
}

func TestManualTransitDefaultsCreationToToday(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t, sampleProduct("P1", 10000))

	p, err := f.svc.AddManualTransit(context.Background(), testUser, stored.Analysis.ID, "P1",
		domain.ManualTransit{Units: 15, ArrivalDate: "2025-01-25"})
	require.NoError(t, err)
	orders := p.ManualOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "2025-01-15", orders[0].CreatedDate)
	assert.NotEmpty(t, orders[0].ID)
}

func TestUpdateAlertKeepsEdit(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t)
	ctx := context.Background()
	id := stored.Analysis.ID

	p, err := f.svc.Recalculate(ctx, testUser, id, "P1")
	require.NoError(t, err)
	alerts := p.AllAlerts()
	require.NotEmpty(t, alerts)
	target := alerts[0]

	p, err = f.svc.UpdateAlert(ctx, testUser, id, "P1", domain.AlertUpdate{AlertID: target.ID, Units: 350, LeadTimeDays: 10})
	require.NoError(t, err)

	pi, ai, ok := p.FindAlert(target.ID)
	require.True(t, ok)
	updated := p.Projections[pi].Alerts[ai]
	assert.Equal(t, 350.0, updated.Units)
	assert.Equal(t, 350, updated.Boxes)
	assert.Equal(t, 10, updated.LeadTimeDays)
	placed, err := domain.ParseDate(updated.AlertDate)
	require.NoError(t, err)
	assert.Equal(t, domain.FormatDate(placed.AddDate(0, 0, 10)), updated.ArrivalDate)
	assert.Len(t, p.AllAlerts(), len(alerts), "alert edits do not regenerate")
}

func TestUpdateAlertMovesMonth(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t)
	ctx := context.Background()
	id := stored.Analysis.ID

	p, err := f.svc.Recalculate(ctx, testUser, id, "P1")
	require.NoError(t, err)
	target := p.Projections[0].Alerts[0]

	p, err = f.svc.UpdateAlert(ctx, testUser, id, "P1", domain.AlertUpdate{AlertID: target.ID, AlertDate: "2025-02-03"})
	require.NoError(t, err)
	pi, _, ok := p.FindAlert(target.ID)
	require.True(t, ok)
	assert.Equal(t, 1, pi)

	_, err = f.svc.UpdateAlert(ctx, testUser, id, "P1", domain.AlertUpdate{AlertID: target.ID, AlertDate: "2026-06-01"})
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestConflictIsRetried(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t)
	f.repo.conflicts = 2

	_, err := f.svc.ApplyLeadTime(context.Background(), testUser, stored.Analysis.ID, "P1", 0, 25)
	require.NoError(t, err)
	assert.Equal(t, 3, f.repo.saves)
}

func TestConflictGivesUpAfterRetries(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.SaveRetries = 2 })
	stored := f.create(t)
	f.repo.conflicts = -1

	_, err := f.svc.ApplyLeadTime(context.Background(), testUser, stored.Analysis.ID, "P1", 0, 25)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 3, f.repo.saves)
}

func TestAuditFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Audit = failingAudit{} })
	stored := f.create(t)

	_, err := f.svc.ApplySafetyStock(context.Background(), testUser, stored.Analysis.ID, "P1", 0, 5)
	assert.NoError(t, err)
}

func TestDueAlertsNotifiedOnce(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t)
	ctx := context.Background()

	_, err := f.svc.Recalculate(ctx, testUser, stored.Analysis.ID, "P1")
	require.NoError(t, err)
	require.Len(t, f.notifier.sent, 1)
	for _, a := range f.notifier.sent[0].Alerts {
		assert.LessOrEqual(t, a.AlertDate, "2025-01-15")
	}

	last, ok, err := f.alerts.Get(ctx, testUser, "P1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2025-01-01", last)

	_, err = f.svc.Recalculate(ctx, testUser, stored.Analysis.ID, "P1")
	require.NoError(t, err)
	assert.Len(t, f.notifier.sent, 1)
}

func TestNotificationFailureKeepsMarker(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	stored := f.create(t)

	_, err := f.svc.Recalculate(context.Background(), testUser, stored.Analysis.ID, "P1")
	require.NoError(t, err)
	_, ok, _ := f.alerts.Get(context.Background(), testUser, "P1")
	assert.False(t, ok)
}

func TestRecalculateAnalysis(t *testing.T) {
	f := newFixture(t)
	stored := f.create(t, sampleProduct("P1", 100), sampleProduct("P2", 5000))

	saved, err := f.svc.RecalculateAnalysis(context.Background(), testUser, stored.Analysis.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	p1, _ := saved.Analysis.Product("P1")
	assert.NotEmpty(t, p1.AllAlerts())
}

func TestRunForecast(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Forecaster = stubForecaster{products: []domain.Product{sampleProduct("F1", 300)}}
	})
	stored, err := f.svc.RunForecast(context.Background(), testUser, "")
	require.NoError(t, err)
	assert.Equal(t, "Analysis 2025-01-15", stored.Analysis.Name)

	upstream := &domain.UpstreamError{ExitCode: 2}
	f = newFixture(t, func(d *Deps) { d.Forecaster = stubForecaster{err: upstream} })
	_, err = f.svc.RunForecast(context.Background(), testUser, "")
	assert.ErrorAs(t, err, &upstream)

	f = newFixture(t)
	_, err = f.svc.RunForecast(context.Background(), testUser, "")
	assert.ErrorIs(t, err, ErrForecasterUnavailable)
}
