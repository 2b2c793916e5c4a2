package marketdata

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signalflow/internal/models"
	"signalflow/internal/retry"
)

type stubProvider struct {
	calls atomic.Int32
	fail  atomic.Bool
	delay time.Duration
}

func (p *stubProvider) GetCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	p.calls.Add(1)
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.fail.Load() {
		return nil, errors.New("upstream down")
	}
	out := make([]models.Candle, limit)
	for i := range out {
		out[i] = models.Candle{Close: float64(100 + i)}
	}
	return out, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(p Provider) (*Cache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)}
	c := NewCache(p, Options{
		TTLFraction: 0.2,
		Grace:       15 * time.Minute,
		Retry:       retry.Policy{Attempts: 1, Min: time.Millisecond},
	}, nil)
	c.Now = clock.Now
	return c, clock
}

func TestGetCandles_RefetchesOnceAfterTTL(t *testing.T) {
	p := &stubProvider{}
	c, clock := newTestCache(p)
	ctx := context.Background()

	// 1h frame -> 12 minute ttl
	for i := 0; i < 3; i++ {
		if _, err := c.GetCandles(ctx, "BTCUSDT", models.Timeframe1h, 50); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if n := p.calls.Load(); n != 1 {
		t.Fatalf("calls=%d want 1", n)
	}
	clock.Advance(13 * time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := c.GetCandles(ctx, "BTCUSDT", models.Timeframe1h, 50); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if n := p.calls.Load(); n != 2 {
		t.Fatalf("calls=%d want 2", n)
	}
}

func TestGetCandles_LargerLimitMisses(t *testing.T) {
	p := &stubProvider{}
	c, _ := newTestCache(p)
	ctx := context.Background()
	_, _ = c.GetCandles(ctx, "BTCUSDT", models.Timeframe1h, 20)
	got, err := c.GetCandles(ctx, "BTCUSDT", models.Timeframe1h, 10)
	if err != nil || len(got) != 10 {
		t.Fatalf("len=%d err=%v", len(got), err)
	}
	if got[9].Close != 119 {
		t.Fatalf("tail not newest: %v", got[9].Close)
	}
	_, _ = c.GetCandles(ctx, "BTCUSDT", models.Timeframe1h, 40)
	if n := p.calls.Load(); n != 2 {
		t.Fatalf("calls=%d want 2", n)
	}
}

func TestGetCandles_StaleWithinGraceThenUnavailable(t *testing.T) {
	p := &stubProvider{}
	c, clock := newTestCache(p)
	ctx := context.Background()
	if _, err := c.GetCandles(ctx, "ETHUSDT", models.Timeframe15m, 30); err != nil {
		t.Fatalf("get: %v", err)
	}
	p.fail.Store(true)

	// 15m frame -> 3 minute ttl, 15 minute grace
	clock.Advance(10 * time.Minute)
	got, err := c.GetCandles(ctx, "ETHUSDT", models.Timeframe15m, 30)
	if err != nil || len(got) != 30 {
		t.Fatalf("stale serve len=%d err=%v", len(got), err)
	}

	clock.Advance(10 * time.Minute)
	_, err = c.GetCandles(ctx, "ETHUSDT", models.Timeframe15m, 30)
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("err=%v want ErrDataUnavailable", err)
	}
}

func TestGetCandles_ConcurrentCallersShareFetch(t *testing.T) {
	p := &stubProvider{delay: 20 * time.Millisecond}
	c, _ := newTestCache(p)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetCandles(ctx, "SOLUSDT", models.Timeframe4h, 10); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := p.calls.Load(); n != 1 {
		t.Fatalf("calls=%d want 1", n)
	}
}

func TestCleanup_RemovesExpired(t *testing.T) {
	p := &stubProvider{}
	c, clock := newTestCache(p)
	ctx := context.Background()
	_, _ = c.GetCandles(ctx, "BTCUSDT", models.Timeframe15m, 5)
	_, _ = c.GetCandles(ctx, "BTCUSDT", models.Timeframe1d, 5)

	// 15m expires after 3m+15m; 1d lives for 4h48m
	clock.Advance(20 * time.Minute)
	if n := c.Cleanup(); n != 1 {
		t.Fatalf("removed=%d want 1", n)
	}
	if c.Len() != 1 {
		t.Fatalf("len=%d want 1", c.Len())
	}
}

func TestAcquire_SkipsEntryDroppedByCleanup(t *testing.T) {
	c, _ := newTestCache(&stubProvider{})
	k := cacheKey{symbol: "BTCUSDT", tf: models.Timeframe1h}
	dropped := c.lookup(k)
	if n := c.Cleanup(); n != 1 {
		t.Fatalf("removed=%d want 1", n)
	}
	e := c.acquire(k)
	defer e.mu.Unlock()
	if e == dropped {
		t.Fatalf("acquired an entry no longer in the cache")
	}
	c.mu.RLock()
	live := c.entries[k]
	c.mu.RUnlock()
	if live != e {
		t.Fatalf("acquired entry is not the live one")
	}
}

func TestGetCandles_SurvivesConcurrentCleanup(t *testing.T) {
	p := &stubProvider{delay: time.Millisecond}
	c, _ := newTestCache(p)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := c.GetCandles(ctx, "BTCUSDT", models.Timeframe1h, 10); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			c.Cleanup()
		}()
	}
	wg.Wait()

	calls := p.calls.Load()
	if _, err := c.GetCandles(ctx, "BTCUSDT", models.Timeframe1h, 10); err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.calls.Load() != calls || c.Len() != 1 {
		t.Fatalf("fetched candles were lost: calls %d -> %d len=%d", calls, p.calls.Load(), c.Len())
	}
}

func TestSnapshot_PrimaryRequired(t *testing.T) {
	p := &stubProvider{}
	p.fail.Store(true)
	c, _ := newTestCache(p)
	_, err := c.Snapshot(context.Background(), "BTCUSDT",
		[]models.Timeframe{models.Timeframe1h, models.Timeframe4h}, models.Timeframe1h, 10, "")
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("err=%v want ErrDataUnavailable", err)
	}
}
