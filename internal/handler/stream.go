package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"signalflow/internal/notify"
)

// StreamHandler pushes signal events to websocket clients.
type StreamHandler struct {
	Broadcaster  *notify.Broadcaster
	Logger       *zap.Logger
	WriteTimeout time.Duration
	PingInterval time.Duration
}

func (h *StreamHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/stream/signals", h.signals)
}

// @Summary Live signal events over websocket
// @Description Emits {type, at, data} frames; type is "signal" or "signal_update".
// @Tags stream
// @Param symbol query string false "only events for this symbol"
// @Router /api/v1/stream/signals [get]
func (h *StreamHandler) signals(c *gin.Context) {
	if h.Broadcaster == nil {
		Error(c, http.StatusServiceUnavailable, "stream unavailable", nil)
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket accept failed", zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	events, cancel := h.Broadcaster.Subscribe()
	defer cancel()

	// Client frames are ignored; CloseRead surfaces disconnects through ctx.
	ctx := conn.CloseRead(c.Request.Context())
	err = h.pump(ctx, conn, events, symbol)
	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
	default:
		if h.Logger != nil {
			h.Logger.Debug("stream client dropped", zap.Error(err))
		}
	}
}

func (h *StreamHandler) pump(ctx context.Context, conn *websocket.Conn, events <-chan notify.Event, symbol string) error {
	writeTimeout := h.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	pingEvery := h.PingInterval
	if pingEvery <= 0 {
		pingEvery = 30 * time.Second
	}
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	if err := h.write(ctx, conn, writeTimeout, notify.Event{Type: "hello", At: time.Now().UTC()}); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if symbol != "" {
				if se, isSignal := ev.Data.(notify.SignalEvent); isSignal && se.Symbol != symbol {
					continue
				}
			}
			if err := h.write(ctx, conn, writeTimeout, ev); err != nil {
				return err
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, timeout time.Duration, ev notify.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}
