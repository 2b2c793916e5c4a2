package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"signalflow/internal/copytrade"
	"signalflow/internal/models"
	"signalflow/internal/repository"
	"signalflow/internal/service"
)

type CopyTradeHandler struct {
	Repo     repository.CopyTradeRepository
	Monitor  *copytrade.Monitor
	Settings *service.SystemSettingsService
}

func (h *CopyTradeHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/copytrade")
	g.POST("/scan", h.scan)
	g.GET("/orders", h.orders)
	g.GET("/traders", h.traders)
	g.PUT("/traders/:trader_id", h.putTrader)
}

// @Summary Scan all enabled traders now
// @Tags copytrade
// @Success 200 {object} apiResponse
// @Router /api/v1/copytrade/scan [post]
func (h *CopyTradeHandler) scan(c *gin.Context) {
	if h.Monitor == nil {
		Error(c, http.StatusInternalServerError, "order monitor unavailable", nil)
		return
	}
	sw := h.Settings.Switches(c.Request.Context())
	sum, err := h.Monitor.RunOnce(c.Request.Context(), copytrade.ScanOptions{Notify: sw.Notifications, Force: true})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, sum, nil)
}

// @Summary List ingested copy orders
// @Tags copytrade
// @Param trader_id query string false "trader"
// @Param symbol query string false "symbol"
// @Param since query string false "RFC3339"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/copytrade/orders [get]
func (h *CopyTradeHandler) orders(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	since, ok := timeQuery(c, "since")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid since", nil)
		return
	}
	limit := clampLimit(intQuery(c, "limit", 50), 50, 500)
	offset := intQuery(c, "offset", 0)
	params := repository.ListCopyOrdersParams{
		Limit:    limit,
		Offset:   offset,
		TraderID: strQueryPtr(c, "trader_id"),
		Symbol:   upperQueryPtr(c, "symbol"),
		Since:    since,
		OrderBy:  "order_time",
		Asc:      boolPtr(false),
	}
	items, err := h.Repo.ListCopyOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountCopyOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary List watched traders
// @Tags copytrade
// @Param enabled query bool false "only enabled traders"
// @Success 200 {object} apiResponse
// @Router /api/v1/copytrade/traders [get]
func (h *CopyTradeHandler) traders(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListTraderWatches(c.Request.Context(), c.Query("enabled") == "true")
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

type putTraderRequest struct {
	PortfolioID        string `json:"portfolio_id" binding:"required,max=64"`
	Nickname           string `json:"nickname" binding:"max=120"`
	Enabled            *bool  `json:"enabled"`
	MonitorIntervalSec int    `json:"monitor_interval_sec" binding:"gte=0,lte=86400"`
}

// @Summary Create or update a watched trader
// @Tags copytrade
// @Param trader_id path string true "trader"
// @Param body body putTraderRequest true "trader settings"
// @Success 200 {object} apiResponse
// @Router /api/v1/copytrade/traders/{trader_id} [put]
func (h *CopyTradeHandler) putTrader(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	traderID := strings.TrimSpace(c.Param("trader_id"))
	if traderID == "" || len(traderID) > 64 {
		Error(c, http.StatusBadRequest, "invalid trader_id", nil)
		return
	}
	var req putTraderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", map[string]any{"detail": err.Error()})
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	interval := req.MonitorIntervalSec
	if interval == 0 {
		interval = 60
	}
	item := &models.TraderWatch{
		TraderID:           traderID,
		PortfolioID:        strings.TrimSpace(req.PortfolioID),
		Nickname:           strings.TrimSpace(req.Nickname),
		Enabled:            enabled,
		MonitorIntervalSec: interval,
	}
	if err := h.Repo.UpsertTraderWatch(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	next, err := h.Repo.GetTraderWatch(c.Request.Context(), traderID)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, next, nil)
}
