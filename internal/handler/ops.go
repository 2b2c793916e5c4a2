package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"signalflow/internal/filter"
	"signalflow/internal/lifecycle"
	"signalflow/internal/marketdata"
	"signalflow/internal/notify"
	"signalflow/internal/service"
)

// OpsHandler exposes operator actions on in-process state.
type OpsHandler struct {
	Cache      *marketdata.Cache
	Filter     *filter.Filter
	Analysis   *service.AnalysisService
	Tracker    *lifecycle.Tracker
	Dispatcher *notify.Dispatcher
	Stream     *notify.Broadcaster
}

func (h *OpsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/ops")
	g.POST("/cache/cleanup", h.cleanupCache)
	g.GET("/filter", h.filterState)
	g.POST("/filter/reset", h.resetFilter)
	g.GET("/diagnostics", h.diagnostics)
	g.POST("/lifecycle/run", h.runLifecycle)
	g.POST("/outbox/dispatch", h.dispatchOutbox)
}

// @Summary Drop expired candle cache entries
// @Tags ops
// @Success 200 {object} apiResponse
// @Router /api/v1/ops/cache/cleanup [post]
func (h *OpsHandler) cleanupCache(c *gin.Context) {
	if h.Cache == nil {
		Error(c, http.StatusInternalServerError, "cache unavailable", nil)
		return
	}
	removed := h.Cache.Cleanup()
	Ok(c, gin.H{"removed": removed, "remaining": h.Cache.Len()}, nil)
}

// @Summary Cooldown and quota state
// @Tags ops
// @Success 200 {object} apiResponse
// @Router /api/v1/ops/filter [get]
func (h *OpsHandler) filterState(c *gin.Context) {
	if h.Filter == nil {
		Error(c, http.StatusInternalServerError, "filter unavailable", nil)
		return
	}
	Ok(c, h.Filter.Snapshot(), nil)
}

// @Summary Clear cooldown and quota state
// @Tags ops
// @Success 200 {object} apiResponse
// @Router /api/v1/ops/filter/reset [post]
func (h *OpsHandler) resetFilter(c *gin.Context) {
	if h.Filter == nil {
		Error(c, http.StatusInternalServerError, "filter unavailable", nil)
		return
	}
	h.Filter.Reset()
	Ok(c, h.Filter.Snapshot(), nil)
}

// @Summary Per-symbol pipeline counters
// @Tags ops
// @Success 200 {object} apiResponse
// @Router /api/v1/ops/diagnostics [get]
func (h *OpsHandler) diagnostics(c *gin.Context) {
	out := gin.H{
		"symbols": []service.SymbolDiagnostics{},
	}
	if h.Analysis != nil {
		out["symbols"] = h.Analysis.Diagnostics()
	}
	if h.Cache != nil {
		out["cache_entries"] = h.Cache.Len()
	}
	if h.Stream != nil {
		out["stream_clients"] = h.Stream.Subscribers()
		out["stream_dropped"] = h.Stream.Dropped()
	}
	Ok(c, out, nil)
}

// @Summary Run the lifecycle tracker now
// @Tags ops
// @Success 200 {object} apiResponse
// @Router /api/v1/ops/lifecycle/run [post]
func (h *OpsHandler) runLifecycle(c *gin.Context) {
	if h.Tracker == nil {
		Error(c, http.StatusInternalServerError, "lifecycle tracker unavailable", nil)
		return
	}
	sum, err := h.Tracker.RunOnce(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, sum, nil)
}

// @Summary Deliver due notifications now
// @Tags ops
// @Success 200 {object} apiResponse
// @Router /api/v1/ops/outbox/dispatch [post]
func (h *OpsHandler) dispatchOutbox(c *gin.Context) {
	if h.Dispatcher == nil {
		Error(c, http.StatusInternalServerError, "dispatcher unavailable", nil)
		return
	}
	sum, err := h.Dispatcher.RunOnce(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, sum, nil)
}
