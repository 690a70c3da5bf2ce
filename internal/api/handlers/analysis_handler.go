// internal/api/handlers/analysis_handler.go
package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/api/middleware"
	"github.com/andresuchdata/stockcast/internal/domain"
	"github.com/andresuchdata/stockcast/internal/export"
	"github.com/andresuchdata/stockcast/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AnalysisHandler struct {
	service *service.ForecastService
}

func NewAnalysisHandler(service *service.ForecastService) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

type createAnalysisRequest struct {
	Name     string           `json:"name"`
	Products []domain.Product `json:"products" binding:"required"`
}

type runForecastRequest struct {
	Name string `json:"name"`
}

type safetyStockRequest struct {
	ProjectionIndex *int     `json:"projection_index" binding:"required"`
	Value           *float64 `json:"value" binding:"required"`
}

type leadTimeRequest struct {
	ProjectionIndex *int `json:"projection_index" binding:"required"`
	Days            *int `json:"days" binding:"required"`
}

type alertUpdateRequest struct {
	AlertDate    string  `json:"alert_date"`
	Units        float64 `json:"units"`
	LeadTimeDays int     `json:"lead_time_days"`
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	var (
		validation *domain.ValidationError
		upstream   *domain.UpstreamError
		status     int
	)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrProductNotFound):
		status = http.StatusNotFound
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.As(err, &upstream):
		status = http.StatusBadGateway
	case errors.Is(err, service.ErrForecasterUnavailable):
		status = http.StatusServiceUnavailable
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// ListAnalyses returns the analyses of the calling user.
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	list, err := h.service.ListAnalyses(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []domain.AnalysisSummary{}
	}
	c.JSON(http.StatusOK, list)
}

// CreateAnalysis imports products produced elsewhere.
func (h *AnalysisHandler) CreateAnalysis(c *gin.Context) {
	var req createAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	stored, err := h.service.CreateAnalysis(c.Request.Context(), middleware.UserID(c), req.Name, req.Products)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// RunForecast runs the forecasting process and stores its result.
func (h *AnalysisHandler) RunForecast(c *gin.Context) {
	var req runForecastRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	stored, err := h.service.RunForecast(c.Request.Context(), middleware.UserID(c), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	stored, err := h.service.GetAnalysisData(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (h *AnalysisHandler) GetProduct(c *gin.Context) {
	p, err := h.service.GetProduct(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *AnalysisHandler) SetSafetyStock(c *gin.Context) {
	var req safetyStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.service.ApplySafetyStock(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("code"),
		*req.ProjectionIndex, *req.Value)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *AnalysisHandler) SetLeadTime(c *gin.Context) {
	var req leadTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.service.ApplyLeadTime(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("code"),
		*req.ProjectionIndex, *req.Days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateAlert edits one reorder alert. The alert is addressed by ID, or by
// its date for documents without alert IDs.
func (h *AnalysisHandler) UpdateAlert(c *gin.Context) {
	var req alertUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	update := domain.AlertUpdate{
		AlertID:      c.Param("alert"),
		AlertDate:    req.AlertDate,
		Units:        req.Units,
		LeadTimeDays: req.LeadTimeDays,
	}
	p, err := h.service.UpdateAlert(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("code"), update)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *AnalysisHandler) AddTransit(c *gin.Context) {
	var req domain.ManualTransit
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.service.AddManualTransit(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("code"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *AnalysisHandler) RecalculateProduct(c *gin.Context) {
	p, err := h.service.Recalculate(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// RecalculateAnalysis re-simulates every product. ?regenerate=true also
// rebuilds the reorder alerts.
func (h *AnalysisHandler) RecalculateAnalysis(c *gin.Context) {
	regenerate, _ := strconv.ParseBool(c.DefaultQuery("regenerate", "false"))
	stored, err := h.service.RecalculateAnalysis(c.Request.Context(), middleware.UserID(c), c.Param("id"), regenerate)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (h *AnalysisHandler) ListAudit(c *gin.Context) {
	limit := parsePositiveIntWithDefault(c.Query("limit"), 100)
	entries, err := h.service.ListAudit(c.Request.Context(), middleware.UserID(c), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// Export downloads the analysis as an Excel workbook.
func (h *AnalysisHandler) Export(c *gin.Context) {
	stored, err := h.service.GetAnalysisData(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, stored.Analysis.Products); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, fileName(stored.Analysis)))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func fileName(a *domain.Analysis) string {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		name = a.ID
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '/', '\\', '\n', '\r':
			return '_'
		}
		return r
	}, name)
}

func parsePositiveIntWithDefault(value string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && v > 0 {
		return v
	}
	return fallback
}
