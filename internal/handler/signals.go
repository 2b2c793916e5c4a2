package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"signalflow/internal/lifecycle"
	"signalflow/internal/repository"
)

type SignalHandler struct {
	Repo    repository.SignalRepository
	Tracker *lifecycle.Tracker
	// Prices supplies the close price when a manual close omits it.
	Prices lifecycle.PriceSource
}

func (h *SignalHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/signals")
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/close", h.close)
}

// @Summary List signals
// @Tags signals
// @Param symbol query string false "symbol"
// @Param tier query string false "LEVEL_1, LEVEL_2 or LEVEL_3"
// @Param status query string false "PENDING, ACTIVE, CLOSED or EXPIRED"
// @Param source query string false "origin detector"
// @Param since query string false "RFC3339"
// @Param until query string false "RFC3339"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/signals [get]
func (h *SignalHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	since, ok := timeQuery(c, "since")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid since", nil)
		return
	}
	until, ok := timeQuery(c, "until")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid until", nil)
		return
	}
	limit := clampLimit(intQuery(c, "limit", 50), 50, 500)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSignalsParams{
		Limit:   limit,
		Offset:  offset,
		Symbol:  upperQueryPtr(c, "symbol"),
		Tier:    upperQueryPtr(c, "tier"),
		Status:  upperQueryPtr(c, "status"),
		Source:  strQueryPtr(c, "source"),
		Since:   since,
		Until:   until,
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	items, err := h.Repo.ListSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get signal
// @Tags signals
// @Param id path int true "signal id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/signals/{id} [get]
func (h *SignalHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetSignalByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "signal not found", nil)
		return
	}
	Ok(c, item, nil)
}

type closeSignalRequest struct {
	FinalPrice string `json:"final_price"`
	Notes      string `json:"notes" binding:"max=500"`
}

// @Summary Close a signal manually
// @Tags signals
// @Param id path int true "signal id"
// @Param body body closeSignalRequest true "close request; final_price defaults to the last traded price"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/signals/{id}/close [post]
func (h *SignalHandler) close(c *gin.Context) {
	if h.Tracker == nil || h.Repo == nil {
		Error(c, http.StatusInternalServerError, "lifecycle tracker unavailable", nil)
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	var req closeSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}

	var final decimal.Decimal
	if raw := strings.TrimSpace(req.FinalPrice); raw != "" {
		final, err = decimal.NewFromString(raw)
		if err != nil || !final.IsPositive() {
			Error(c, http.StatusBadRequest, "invalid final_price", nil)
			return
		}
	} else {
		sig, err := h.Repo.GetSignalByID(c.Request.Context(), id)
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		if sig == nil {
			Error(c, http.StatusNotFound, "signal not found", nil)
			return
		}
		if h.Prices == nil {
			Error(c, http.StatusBadRequest, "final_price is required", nil)
			return
		}
		p, err := h.Prices.LastPrice(c.Request.Context(), sig.Symbol)
		if err != nil || p <= 0 {
			Error(c, http.StatusBadGateway, "current price unavailable", nil)
			return
		}
		final = decimal.NewFromFloat(p)
	}

	item, err := h.Tracker.CloseSignal(c.Request.Context(), id, final, strings.TrimSpace(req.Notes))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, "signal not found", nil)
	case errors.Is(err, lifecycle.ErrTerminal):
		Error(c, http.StatusConflict, "signal already closed or expired", nil)
	case err != nil:
		Error(c, http.StatusBadGateway, err.Error(), nil)
	default:
		Ok(c, item, nil)
	}
}
