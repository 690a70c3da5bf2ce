package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/stockcast/internal/api/middleware"
	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/engine"
	"github.com/andresuchdata/stockcast/internal/export"
	"github.com/andresuchdata/stockcast/internal/repository/memory"
	"github.com/andresuchdata/stockcast/internal/service"
)

const testUser = "u1"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	svc := service.NewForecastService(service.Deps{
		Repo:   memory.NewAnalysisRepository(),
		Audit:  memory.NewAuditRepository(),
		Engine: engine.New(engine.DefaultOptions(), zerolog.Nop()),
		Now:    func() time.Time { return time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC) },
	})
	return NewRouter(&Services{ForecastService: svc}, nil)
}

func sampleProduct() domain.Product {
	return domain.Product{
		Code:             "P1",
		Description:      "Guantes de nitrilo",
		StartDate:        "2025-01-01",
		UnitsPerBox:      1,
		TotalStock:       100,
		DailyConsumption: 10,
		SigmaD:           2,
		Config:           domain.Configuration{ServiceLevel: 99.99, LeadTimeDays: 20},
		Projections: []domain.Projection{
			{Month: "ENE-2025", MonthStart: "2025-01-01", MonthEnd: "2025-01-31", DailyConsumption: 10},
			{Month: "FEB-2025", MonthStart: "2025-02-01", MonthEnd: "2025-02-28", DailyConsumption: 10},
		},
	}
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserHeader, testUser)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createAnalysis(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/analyses", gin.H{"name": "enero", "products": []domain.Product{sampleProduct()}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var stored domain.StoredAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, int64(1), stored.Version)
	return stored.Analysis.ID
}

func decodeProduct(t *testing.T, w *httptest.ResponseRecorder) domain.Product {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p domain.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequiresUser(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateListAndGet(t *testing.T) {
	r := newTestRouter(t)
	id := createAnalysis(t, r)

	w := do(t, r, http.MethodGet, "/api/v1/analyses", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.AnalysisSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, 1, list[0].ProductCount)

	w = do(t, r, http.MethodGet, "/api/v1/analyses/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	p := decodeProduct(t, do(t, r, http.MethodGet, "/api/v1/analyses/"+id+"/products/P1", nil))
	assert.Equal(t, "P1", p.Code)
	assert.Len(t, p.Projections[0].DailyStock, 31)
}

func TestCreateValidation(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/api/v1/analyses", gin.H{"products": []domain.Product{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotFound(t *testing.T) {
	r := newTestRouter(t)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/analyses/missing", nil).Code)

	id := createAnalysis(t, r)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/analyses/"+id+"/products/NOPE", nil).Code)
}

func TestSafetyStockOverride(t *testing.T) {
	r := newTestRouter(t)
	id := createAnalysis(t, r)

	p := decodeProduct(t, do(t, r, http.MethodPut, "/api/v1/analyses/"+id+"/products/P1/safety-stock",
		gin.H{"projection_index": 0, "value": 50}))
	assert.Equal(t, 50.0, p.Config.Overrides.SafetyStock["ENE-2025"])
	assert.Equal(t, 50.0, p.Projections[0].SafetyStock)
	assert.Equal(t, domain.SourceManual, p.Projections[0].SafetyStockSource)

	w := do(t, r, http.MethodPut, "/api/v1/analyses/"+id+"/products/P1/safety-stock",
		gin.H{"projection_index": 0, "value": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPut, "/api/v1/analyses/"+id+"/products/P1/safety-stock", gin.H{"value": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code, "projection_index is required")

	w = do(t, r, http.MethodGet, "/api/v1/analyses/"+id+"/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []domain.AuditEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.NotEmpty(t, entries)
}

func TestLeadTimeOverride(t *testing.T) {
	r := newTestRouter(t)
	id := createAnalysis(t, r)

	p := decodeProduct(t, do(t, r, http.MethodPut, "/api/v1/analyses/"+id+"/products/P1/lead-time",
		gin.H{"projection_index": 1, "days": 30}))
	assert.Equal(t, 30, p.Projections[1].LeadTimeDays)
	assert.Equal(t, 20, p.Projections[0].LeadTimeDays)

	w := do(t, r, http.MethodPut, "/api/v1/analyses/"+id+"/products/P1/lead-time",
		gin.H{"projection_index": 5, "days": 30})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManualTransit(t *testing.T) {
	r := newTestRouter(t)
	id := createAnalysis(t, r)

	p := decodeProduct(t, do(t, r, http.MethodPost, "/api/v1/analyses/"+id+"/products/P1/transits",
		domain.ManualTransit{Units: 200, ArrivalDate: "2025-01-20", CreatedDate: "2025-01-01"}))
	require.Len(t, p.ManualOrders(), 1)
	assert.Equal(t, 200.0, p.Projections[0].DailyStock[0].UnitsInTransit)
}

func TestRegenerateAndUpdateAlert(t *testing.T) {
	r := newTestRouter(t)
	id := createAnalysis(t, r)

	w := do(t, r, http.MethodPost, "/api/v1/analyses/"+id+"/recalculate?regenerate=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stored domain.StoredAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	p, ok := stored.Analysis.Product("P1")
	require.True(t, ok)
	alerts := p.AllAlerts()
	require.NotEmpty(t, alerts)

	updated := decodeProduct(t, do(t, r, http.MethodPut,
		"/api/v1/analyses/"+id+"/products/P1/alerts/"+alerts[0].ID, gin.H{"units": 500}))
	_, _, found := updated.FindAlert(alerts[0].ID)
	require.True(t, found)
	assert.Equal(t, 500.0, updated.AllAlerts()[0].Units)

	w = do(t, r, http.MethodPut, "/api/v1/analyses/"+id+"/products/P1/alerts/unknown", gin.H{"units": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecalculateProduct(t *testing.T) {
	r := newTestRouter(t)
	id := createAnalysis(t, r)
	p := decodeProduct(t, do(t, r, http.MethodPost, "/api/v1/analyses/"+id+"/products/P1/recalculate", nil))
	assert.Equal(t, "P1", p.Code)
}

func TestForecastUnavailable(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/api/v1/analyses/forecast", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExport(t *testing.T) {
	r := newTestRouter(t)
	id := createAnalysis(t, r)

	w := do(t, r, http.MethodGet, "/api/v1/analyses/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "enero.xlsx")

	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.ProjectionsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestNormalizeAllowedOrigins(t *testing.T) {
	origins, all := normalizeAllowedOrigins([]string{"http://a.test, http://b.test", " "})
	assert.False(t, all)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, origins)

	_, all = normalizeAllowedOrigins([]string{"*"})
	assert.True(t, all)
}
