package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"signalflow/internal/service"
	"signalflow/internal/signal"
)

type AnalysisHandler struct {
	Analysis  *service.AnalysisService
	Settings  *service.SystemSettingsService
	Detectors *signal.Registry
}

func (h *AnalysisHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/analysis/trigger", h.trigger)
	r.GET("/api/v1/detectors", h.detectors)
}

type triggerAnalysisRequest struct {
	Symbol string `json:"symbol" binding:"required,max=30"`
}

// @Summary Analyse one symbol now
// @Tags analysis
// @Param body body triggerAnalysisRequest true "symbol"
// @Success 200 {object} apiResponse
// @Router /api/v1/analysis/trigger [post]
func (h *AnalysisHandler) trigger(c *gin.Context) {
	if h.Analysis == nil {
		Error(c, http.StatusInternalServerError, "analysis service unavailable", nil)
		return
	}
	var req triggerAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Symbol) == "" {
		Error(c, http.StatusBadRequest, "symbol is required", nil)
		return
	}
	sw := h.Settings.Switches(c.Request.Context())
	sum, err := h.Analysis.TriggerAnalysis(c.Request.Context(), req.Symbol, sw)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, sum, nil)
}

// @Summary Registered detectors and their counters
// @Tags analysis
// @Success 200 {object} apiResponse
// @Router /api/v1/detectors [get]
func (h *AnalysisHandler) detectors(c *gin.Context) {
	if h.Detectors == nil {
		Ok(c, []signal.DetectorStats{}, nil)
		return
	}
	Ok(c, h.Detectors.Stats(), nil)
}
