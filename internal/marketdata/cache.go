package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"signalflow/internal/metrics"
	"signalflow/internal/models"
	"signalflow/internal/retry"
)

// ErrDataUnavailable is returned when the provider failed and no cached value
// is young enough to serve instead.
var ErrDataUnavailable = errors.New("market data unavailable")

type Provider interface {
	GetCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error)
}

// SharedStore is an optional second cache tier shared between instances.
type SharedStore interface {
	Get(ctx context.Context, symbol string, tf models.Timeframe) ([]models.Candle, time.Time, bool, error)
	Put(ctx context.Context, symbol string, tf models.Timeframe, candles []models.Candle, fetchedAt time.Time, ttl time.Duration) error
}

type Options struct {
	TTLFraction float64
	MinTTL      time.Duration
	MaxTTL      time.Duration
	Grace       time.Duration
	Retry       retry.Policy
}

type Cache struct {
	Provider Provider
	Shared   SharedStore
	Options  Options
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time

	mu      sync.RWMutex
	entries map[cacheKey]*entry
}

type cacheKey struct {
	symbol string
	tf     models.Timeframe
}

type entry struct {
	mu        sync.Mutex
	candles   []models.Candle
	fetchedAt time.Time
	// requested is the limit of the last fetch; a short answer to the same
	// limit still counts as a full one.
	requested int
}

func (e *entry) covers(limit int) bool {
	return len(e.candles) > 0 && (len(e.candles) >= limit || e.requested >= limit)
}

func NewCache(provider Provider, opts Options, logger *zap.Logger) *Cache {
	return &Cache{
		Provider: provider,
		Options:  opts,
		Logger:   logger,
		entries:  map[cacheKey]*entry{},
	}
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

// TTL scales with the timeframe so shorter frames expire sooner.
func (c *Cache) TTL(tf models.Timeframe) time.Duration {
	frac := c.Options.TTLFraction
	if frac <= 0 {
		frac = 0.2
	}
	ttl := time.Duration(float64(tf.Duration()) * frac)
	if c.Options.MinTTL > 0 && ttl < c.Options.MinTTL {
		ttl = c.Options.MinTTL
	}
	if c.Options.MaxTTL > 0 && ttl > c.Options.MaxTTL {
		ttl = c.Options.MaxTTL
	}
	return ttl
}

func (c *Cache) lookup(k cacheKey) *entry {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[cacheKey]*entry{}
	}
	if e, ok = c.entries[k]; ok {
		return e
	}
	e = &entry{}
	c.entries[k] = e
	return e
}

// acquire returns the live entry for k with its lock held. Cleanup may drop
// an entry between lookup and lock; the caller then retries on the new one.
func (c *Cache) acquire(k cacheKey) *entry {
	for {
		e := c.lookup(k)
		e.mu.Lock()
		c.mu.RLock()
		live := c.entries[k] == e
		c.mu.RUnlock()
		if live {
			return e
		}
		e.mu.Unlock()
	}
}

// GetCandles returns the newest limit candles for (symbol, tf). Concurrent
// callers for the same key share one upstream fetch; other keys are not blocked.
func (c *Cache) GetCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	if c == nil || c.Provider == nil {
		return nil, ErrDataUnavailable
	}
	if !tf.Valid() {
		return nil, fmt.Errorf("unknown timeframe %q", tf)
	}
	e := c.acquire(cacheKey{symbol: symbol, tf: tf})
	defer e.mu.Unlock()

	ttl := c.TTL(tf)
	now := c.now()
	if e.covers(limit) && now.Sub(e.fetchedAt) < ttl {
		c.Metrics.Cache("hit")
		return tail(e.candles, limit), nil
	}

	if c.Shared != nil {
		candles, fetchedAt, ok, err := c.Shared.Get(ctx, symbol, tf)
		if err != nil && c.Logger != nil {
			c.Logger.Debug("shared candle cache read failed", zap.String("symbol", symbol), zap.String("tf", string(tf)), zap.Error(err))
		}
		if ok && len(candles) >= limit && now.Sub(fetchedAt) < ttl {
			e.candles, e.fetchedAt, e.requested = candles, fetchedAt, limit
			c.Metrics.Cache("hit")
			return tail(candles, limit), nil
		}
	}

	var fetched []models.Candle
	err := retry.Do(ctx, c.Options.Retry, func(ctx context.Context) error {
		items, err := c.Provider.GetCandles(ctx, symbol, tf, limit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("empty candle response for %s %s", symbol, tf)
		}
		fetched = items
		return nil
	})
	if err == nil {
		c.Metrics.Cache("miss")
		e.candles = fetched
		e.fetchedAt = c.now()
		e.requested = limit
		if c.Shared != nil {
			if perr := c.Shared.Put(ctx, symbol, tf, fetched, e.fetchedAt, ttl+c.Options.Grace); perr != nil && c.Logger != nil {
				c.Logger.Debug("shared candle cache write failed", zap.String("symbol", symbol), zap.Error(perr))
			}
		}
		return tail(fetched, limit), nil
	}

	if len(e.candles) > 0 && now.Sub(e.fetchedAt) <= ttl+c.Options.Grace {
		c.Metrics.Cache("stale")
		if c.Logger != nil {
			c.Logger.Warn("serving stale candles",
				zap.String("symbol", symbol),
				zap.String("tf", string(tf)),
				zap.Duration("age", now.Sub(e.fetchedAt)),
				zap.Error(err),
			)
		}
		return tail(e.candles, limit), nil
	}
	c.Metrics.Cache("unavailable")
	return nil, fmt.Errorf("%w: %s %s: %v", ErrDataUnavailable, symbol, tf, err)
}

// Cleanup drops entries older than TTL plus the grace window and returns how
// many were removed. Entries with a fetch in flight are left alone.
func (c *Cache) Cleanup() int {
	if c == nil {
		return 0
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if !e.mu.TryLock() {
			continue
		}
		expired := len(e.candles) == 0 || now.Sub(e.fetchedAt) > c.TTL(k.tf)+c.Options.Grace
		e.mu.Unlock()
		if expired {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot loads every timeframe for symbol. The primary frame is required;
// the others and the benchmark frames are best effort.
func (c *Cache) Snapshot(ctx context.Context, symbol string, frames []models.Timeframe, primary models.Timeframe, limit int, benchmark string) (models.MarketSnapshot, error) {
	snap := models.MarketSnapshot{
		Symbol:  symbol,
		Primary: primary,
		Frames:  map[models.Timeframe][]models.Candle{},
		At:      c.now(),
	}
	for _, tf := range frames {
		candles, err := c.GetCandles(ctx, symbol, tf, limit)
		if err != nil {
			if tf == primary {
				return snap, err
			}
			if c.Logger != nil {
				c.Logger.Warn("timeframe skipped", zap.String("symbol", symbol), zap.String("tf", string(tf)), zap.Error(err))
			}
			continue
		}
		snap.Frames[tf] = candles
	}
	if _, ok := snap.Frames[primary]; !ok {
		return snap, fmt.Errorf("%w: primary timeframe %s not loaded for %s", ErrDataUnavailable, primary, symbol)
	}
	if benchmark != "" && benchmark != symbol {
		snap.Benchmark = map[models.Timeframe][]models.Candle{}
		for _, tf := range frames {
			candles, err := c.GetCandles(ctx, benchmark, tf, limit)
			if err != nil {
				continue
			}
			snap.Benchmark[tf] = candles
		}
	}
	return snap, nil
}

func tail(candles []models.Candle, limit int) []models.Candle {
	if limit <= 0 || len(candles) <= limit {
		out := make([]models.Candle, len(candles))
		copy(out, candles)
		return out
	}
	out := make([]models.Candle, limit)
	copy(out, candles[len(candles)-limit:])
	return out
}
