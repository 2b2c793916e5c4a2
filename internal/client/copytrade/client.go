// Package copytrade reads lead-portfolio order history from the copy-trading
// provider.
package copytrade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"signalflow/internal/config"
	"signalflow/internal/metrics"
)

const (
	providerName = "copytrade"
	historyPath  = "/bapi/futures/v1/friendly/future/copy-trade/lead-portfolio/order-history"
	maxPages     = 20
)

type Client struct {
	host       string
	httpClient *http.Client
	limiter    *rate.Limiter
	pageSize   int
	Metrics    *metrics.Metrics
}

type APIError struct {
	Status int
	Code   string
	Body   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("copytrade API error (%d/%s): %s", e.Status, e.Code, e.Body)
	}
	return fmt.Sprintf("copytrade API error (%d): %s", e.Status, e.Body)
}

// OrderRecord is one upstream history row, left undecoded beyond JSON so the
// monitor can reject malformed records one by one.
type OrderRecord struct {
	OrderID         json.Number `json:"orderId,omitempty"`
	Symbol          string      `json:"symbol"`
	Side            string      `json:"side"`
	PositionSide    string      `json:"positionSide"`
	AvgPrice        json.Number `json:"avgPrice"`
	ExecutedQty     json.Number `json:"executedQty"`
	TotalPnl        json.Number `json:"totalPnl,omitempty"`
	OrderTime       int64       `json:"orderTime"`
	OrderUpdateTime int64       `json:"orderUpdateTime,omitempty"`
}

type historyRequest struct {
	PortfolioID string `json:"portfolioId"`
	StartTime   int64  `json:"startTime"`
	EndTime     int64  `json:"endTime"`
	PageNumber  int    `json:"pageNumber"`
	PageSize    int    `json:"pageSize"`
}

type historyResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type historyPage struct {
	List  []json.RawMessage `json:"list"`
	Total int               `json:"total"`
}

func NewClient(cfg config.CopyTradeConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	host := strings.TrimRight(cfg.BaseURL, "/")
	if host == "" {
		host = "https://www.binance.com"
	}
	return &Client{
		host:       host,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		pageSize:   pageSize,
	}
}

// GetTraderOrders returns the portfolio's orders in [from, to], following
// pages until a short page, the reported total, or maxPages. Rows that are
// not JSON objects of the expected shape come back in bad, not as an error.
func (c *Client) GetTraderOrders(ctx context.Context, portfolioID string, from, to time.Time) (records []OrderRecord, bad []string, err error) {
	if portfolioID == "" {
		return nil, nil, fmt.Errorf("portfolio_id is required")
	}
	seen := 0
	for pageNo := 1; pageNo <= maxPages; pageNo++ {
		page, err := c.fetchPage(ctx, portfolioID, from, to, pageNo)
		if err != nil {
			return nil, nil, err
		}
		if page == nil {
			break
		}
		for _, raw := range page.List {
			var rec OrderRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				bad = append(bad, string(raw))
				continue
			}
			records = append(records, rec)
		}
		seen += len(page.List)
		if len(page.List) < c.pageSize || (page.Total > 0 && seen >= page.Total) {
			break
		}
	}
	return records, bad, nil
}

func (c *Client) fetchPage(ctx context.Context, portfolioID string, from, to time.Time, pageNo int) (*historyPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(historyRequest{
		PortfolioID: portfolioID,
		StartTime:   from.UnixMilli(),
		EndTime:     to.UnixMilli(),
		PageNumber:  pageNo,
		PageSize:    c.pageSize,
	})
	if err != nil {
		return nil, err
	}
	body, err := c.doRequest(ctx, historyPath, payload)
	c.Metrics.ProviderCall(providerName, err)
	if err != nil {
		return nil, err
	}

	var env historyResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !env.Success && env.Code != "000000" {
		return nil, &APIError{Status: http.StatusOK, Code: env.Code, Body: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	var page historyPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode order page: %w", err)
	}
	return &page, nil
}

func (c *Client) doRequest(ctx context.Context, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
