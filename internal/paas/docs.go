package paas

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# signalflow

Crypto futures signal engine and copy-trade monitor.

## Auth

All /api/* routes require a Bearer token checked by the gateway.
/healthz, /readyz and /metrics are public.

## Routes

- GET /healthz
- GET /readyz
- GET /metrics
- GET /swagger/index.html
- GET /api/v1/signals
- GET /api/v1/signals/:id
- POST /api/v1/signals/:id/close
- POST /api/v1/analysis/trigger
- GET /api/v1/detectors
- POST /api/v1/copytrade/scan
- GET /api/v1/copytrade/orders
- GET /api/v1/copytrade/traders
- PUT /api/v1/copytrade/traders/:trader_id
- POST /api/v1/ops/cache/cleanup
- GET /api/v1/ops/filter
- GET /api/v1/ops/diagnostics
- POST /api/v1/ops/filter/reset
- POST /api/v1/ops/lifecycle/run
- POST /api/v1/ops/outbox/dispatch
- GET /api/v1/system-settings
- GET /api/v1/system-settings/switches
- GET /api/v1/system-settings/:key
- PUT /api/v1/system-settings/:key
- GET /api/v1/stream/signals?symbol= (websocket)
`)
	})
}
