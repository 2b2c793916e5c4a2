// Package binance reads public USDT-M futures market data.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"signalflow/internal/config"
	"signalflow/internal/metrics"
	"signalflow/internal/models"
)

const providerName = "binance"

// Client wraps the futures REST client behind a shared request budget.
type Client struct {
	api     *futures.Client
	limiter *rate.Limiter
	Metrics *metrics.Metrics
}

func NewClient(cfg config.BinanceConfig) *Client {
	api := gobinance.NewFuturesClient("", "")
	if cfg.BaseURL != "" {
		api.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	api.HTTPClient = &http.Client{Timeout: timeout}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{api: api, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// GetCandles returns up to limit closed-or-forming klines, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	if c == nil || c.api == nil {
		return nil, errors.New("binance client not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	klines, err := c.api.NewKlinesService().
		Symbol(symbol).
		Interval(string(tf)).
		Limit(limit).
		Do(ctx)
	c.Metrics.ProviderCall(providerName, err)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, tf, err)
	}
	out := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := toCandle(symbol, tf, k)
		if err != nil {
			return nil, err
		}
		out = append(out, candle)
	}
	return out, nil
}

// LastPrice returns the latest traded price for symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if c == nil || c.api == nil {
		return 0, errors.New("binance client not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	c.Metrics.ProviderCall(providerName, err)
	if err != nil {
		return 0, fmt.Errorf("price %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("price %s: empty response", symbol)
	}
	p, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("price %s: %w", symbol, err)
	}
	return p, nil
}

func toCandle(symbol string, tf models.Timeframe, k *futures.Kline) (models.Candle, error) {
	var (
		c   = models.Candle{Symbol: symbol, Timeframe: tf, OpenTime: time.UnixMilli(k.OpenTime).UTC()}
		err error
	)
	fields := []struct {
		raw string
		dst *float64
	}{
		{k.Open, &c.Open},
		{k.High, &c.High},
		{k.Low, &c.Low},
		{k.Close, &c.Close},
		{k.Volume, &c.Volume},
	}
	for _, f := range fields {
		if *f.dst, err = strconv.ParseFloat(f.raw, 64); err != nil {
			return models.Candle{}, fmt.Errorf("kline %s %s: bad number %q", symbol, tf, f.raw)
		}
	}
	return c, nil
}
