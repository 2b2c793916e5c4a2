package copytrade

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	ctclient "signalflow/internal/client/copytrade"
	"signalflow/internal/config"
	"signalflow/internal/metrics"
	"signalflow/internal/models"
	"signalflow/internal/repository"
	"signalflow/internal/retry"
)

type OrderSource interface {
	GetTraderOrders(ctx context.Context, portfolioID string, from, to time.Time) ([]ctclient.OrderRecord, []string, error)
}

type Notifier interface {
	EnqueueCopyOrder(ctx context.Context, order models.CopyOrder, watch models.TraderWatch) (bool, error)
}

type ScanOptions struct {
	// Notify queues follower mails for new orders.
	Notify bool
	// Force ignores each trader's monitor interval.
	Force bool
}

type TraderFailure struct {
	TraderID string `json:"trader_id"`
	Error    string `json:"error"`
}

type Summary struct {
	Traders     int             `json:"traders"`
	Skipped     int             `json:"skipped"`
	Fetched     int             `json:"fetched"`
	Inserted    int             `json:"inserted"`
	Duplicates  int             `json:"duplicates"`
	ParseErrors int             `json:"parse_errors"`
	Notified    int             `json:"notified"`
	Failures    []TraderFailure `json:"failures,omitempty"`
}

type traderResult struct {
	fetched, inserted, duplicates, parseErrors, notified int
}

// Monitor polls every enabled trader's recent orders and stores the new ones.
// Traders are processed independently: one trader's failure never stops the
// others.
type Monitor struct {
	Source      OrderSource
	Repo        repository.CopyTradeRepository
	Notifier    Notifier
	Exchange    string
	Window      time.Duration
	Concurrency int
	// Retry governs each trader's history fetch.
	Retry       retry.Policy
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

func NewMonitor(source OrderSource, repo repository.CopyTradeRepository, notifier Notifier, ct config.CopyTradeConfig, mon config.OrderMonitorConfig, logger *zap.Logger) *Monitor {
	return &Monitor{
		Source:      source,
		Repo:        repo,
		Notifier:    notifier,
		Exchange:    ct.Exchange,
		Window:      ct.Window,
		Concurrency: mon.Concurrency,
		Retry: retry.Policy{
			Attempts: mon.RetryAttempts,
			Timeout:  mon.FetchTimeout,
			Min:      mon.BackoffMin,
			Max:      mon.BackoffMax,
			Jitter:   true,
		},
		Logger: logger,
	}
}

func (m *Monitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *Monitor) RunOnce(ctx context.Context, opts ScanOptions) (Summary, error) {
	var sum Summary
	if m == nil || m.Source == nil || m.Repo == nil {
		return sum, nil
	}
	watches, err := m.Repo.ListTraderWatches(ctx, true)
	if err != nil {
		return sum, err
	}
	now := m.now()

	limit := m.Concurrency
	if limit <= 0 {
		limit = 4
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, w := range watches {
		if !opts.Force && !due(w, now) {
			sum.Skipped++
			continue
		}
		sum.Traders++
		g.Go(func() error {
			res, err := m.scanTrader(gctx, w, now, opts.Notify)
			mu.Lock()
			defer mu.Unlock()
			sum.Fetched += res.fetched
			sum.Inserted += res.inserted
			sum.Duplicates += res.duplicates
			sum.ParseErrors += res.parseErrors
			sum.Notified += res.notified
			if err != nil {
				sum.Failures = append(sum.Failures, TraderFailure{TraderID: w.TraderID, Error: err.Error()})
				if m.Logger != nil {
					m.Logger.Warn("trader scan failed", zap.String("trader_id", w.TraderID), zap.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(sum.Failures, func(i, j int) bool { return sum.Failures[i].TraderID < sum.Failures[j].TraderID })

	if m.Logger != nil {
		m.Logger.Info("order scan done",
			zap.Int("traders", sum.Traders),
			zap.Int("skipped", sum.Skipped),
			zap.Int("fetched", sum.Fetched),
			zap.Int("inserted", sum.Inserted),
			zap.Int("duplicates", sum.Duplicates),
			zap.Int("parse_errors", sum.ParseErrors),
			zap.Int("failed_traders", len(sum.Failures)),
		)
	}
	return sum, nil
}

// due reports whether the trader's monitor interval has elapsed.
func due(w models.TraderWatch, now time.Time) bool {
	if w.LastCheckAt == nil || w.MonitorIntervalSec <= 0 {
		return true
	}
	return !now.Before(w.LastCheckAt.Add(time.Duration(w.MonitorIntervalSec) * time.Second))
}

func (m *Monitor) scanTrader(ctx context.Context, w models.TraderWatch, now time.Time, notifyFollowers bool) (traderResult, error) {
	var res traderResult
	window := m.Window
	if window <= 0 {
		window = 10 * time.Minute
	}
	var (
		records []ctclient.OrderRecord
		bad     []string
	)
	err := retry.Do(ctx, m.Retry, func(ctx context.Context) error {
		var err error
		records, bad, err = m.Source.GetTraderOrders(ctx, w.PortfolioID, now.Add(-window), now)
		return err
	})
	if err != nil {
		return res, err
	}
	if err := m.Repo.TouchTraderCheck(ctx, w.TraderID, now); err != nil && m.Logger != nil {
		m.Logger.Warn("touch trader check failed", zap.String("trader_id", w.TraderID), zap.Error(err))
	}
	res.fetched = len(records) + len(bad)
	for _, raw := range bad {
		res.parseErrors++
		m.Metrics.CopyOrder("parse_error")
		if m.Logger != nil {
			m.Logger.Warn("order record skipped", zap.String("trader_id", w.TraderID), zap.String("record", raw), zap.Error(ErrParse))
		}
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].OrderTime < records[j].OrderTime })
	for _, rec := range records {
		key := OrderKey(w.TraderID, rec)
		exists, err := m.Repo.CopyOrderExists(ctx, m.Exchange, key)
		if err != nil {
			m.Metrics.CopyOrder("persist_error")
			if m.Logger != nil {
				m.Logger.Warn("order lookup failed", zap.String("trader_id", w.TraderID), zap.String("order_id", key), zap.Error(err))
			}
			continue
		}
		if exists {
			res.duplicates++
			m.Metrics.CopyOrder("duplicate")
			continue
		}
		order, err := ParseRecord(w.TraderID, m.Exchange, rec)
		if err != nil {
			res.parseErrors++
			m.Metrics.CopyOrder("parse_error")
			if m.Logger != nil {
				m.Logger.Warn("order record skipped", zap.String("trader_id", w.TraderID), zap.String("order_id", key), zap.Error(err))
			}
			continue
		}
		inserted, err := m.Repo.InsertCopyOrder(ctx, &order)
		if err != nil {
			m.Metrics.CopyOrder("persist_error")
			if m.Logger != nil {
				m.Logger.Warn("order insert failed", zap.String("trader_id", w.TraderID), zap.String("order_id", key), zap.Error(err))
			}
			continue
		}
		if !inserted {
			res.duplicates++
			m.Metrics.CopyOrder("duplicate")
			continue
		}
		res.inserted++
		m.Metrics.CopyOrder("inserted")
		if err := m.Repo.IncrementTraderCounters(ctx, w.TraderID, order.OrderTime); err != nil && m.Logger != nil {
			m.Logger.Warn("trader counters not updated", zap.String("trader_id", w.TraderID), zap.Error(err))
		}
		if notifyFollowers && m.notify(ctx, order, w) {
			res.notified++
		}
	}
	return res, nil
}

func (m *Monitor) notify(ctx context.Context, order models.CopyOrder, w models.TraderWatch) bool {
	if m.Notifier == nil {
		return false
	}
	ok, err := m.Notifier.EnqueueCopyOrder(ctx, order, w)
	if err == nil {
		return ok
	}
	if m.Logger != nil {
		m.Logger.Warn("copy order notification not queued",
			zap.String("trader_id", w.TraderID),
			zap.Uint64("order_id", order.ID),
			zap.Error(err),
		)
	}
	return false
}
