// Package lifecycle moves open signals through PENDING -> ACTIVE ->
// CLOSED/EXPIRED as prices and time move.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"signalflow/internal/config"
	"signalflow/internal/metrics"
	"signalflow/internal/models"
	"signalflow/internal/repository"
	"signalflow/internal/retry"
)

var ErrTerminal = errors.New("signal already closed or expired")

const (
	NoteStopLoss   = "stop loss hit"
	NoteTakeProfit = "take profit hit"
	NoteExpired    = "expired: horizon reached"
	NoteActivated  = "entry confirmed"
	NoteManual     = "manual close"
)

type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// Transition is a decided status change for one signal.
type Transition struct {
	Status     string
	Notes      string
	FinalPrice decimal.Decimal
	PnLPercent decimal.Decimal
}

// Evaluate decides the next step for sig at price and now. ok is false when
// the signal stays where it is.
func Evaluate(sig models.Signal, price decimal.Decimal, now time.Time, horizon time.Duration, entryTolerancePct float64) (Transition, bool) {
	if models.IsTerminalSignalStatus(sig.Status) || !price.IsPositive() {
		return Transition{}, false
	}
	dir := models.Direction(sig.Direction)
	expired := horizon > 0 && now.Sub(sig.CreatedAt) > horizon

	switch sig.Status {
	case models.SignalStatusActive:
		if hit, note := levelHit(dir, price, sig.StopLoss, sig.TakeProfit); hit {
			return closing(models.SignalStatusClosed, note, dir, sig.EntryPrice, price), true
		}
		if expired {
			return closing(models.SignalStatusExpired, NoteExpired, dir, sig.EntryPrice, price), true
		}
	case models.SignalStatusPending:
		if expired {
			return closing(models.SignalStatusExpired, NoteExpired, dir, sig.EntryPrice, price), true
		}
		if withinTolerance(price, sig.EntryPrice, entryTolerancePct) {
			return Transition{Status: models.SignalStatusActive, Notes: NoteActivated}, true
		}
	}
	return Transition{}, false
}

func levelHit(dir models.Direction, price, stop, take decimal.Decimal) (bool, string) {
	switch dir {
	case models.DirectionBuy:
		if stop.IsPositive() && price.LessThanOrEqual(stop) {
			return true, NoteStopLoss
		}
		if take.IsPositive() && price.GreaterThanOrEqual(take) {
			return true, NoteTakeProfit
		}
	case models.DirectionSell:
		if stop.IsPositive() && price.GreaterThanOrEqual(stop) {
			return true, NoteStopLoss
		}
		if take.IsPositive() && price.LessThanOrEqual(take) {
			return true, NoteTakeProfit
		}
	}
	return false, ""
}

func withinTolerance(price, entry decimal.Decimal, pct float64) bool {
	if !entry.IsPositive() {
		return false
	}
	diff := price.Sub(entry).Abs().Div(entry).Mul(decimal.NewFromInt(100))
	return diff.LessThanOrEqual(decimal.NewFromFloat(pct))
}

func closing(status, note string, dir models.Direction, entry, price decimal.Decimal) Transition {
	return Transition{
		Status:     status,
		Notes:      note,
		FinalPrice: price,
		PnLPercent: PnLPercent(dir, entry, price),
	}
}

// PnLPercent is sign(direction) * (final - entry) / entry * 100, rounded to 4
// places.
func PnLPercent(dir models.Direction, entry, final decimal.Decimal) decimal.Decimal {
	if !entry.IsPositive() {
		return decimal.Zero
	}
	pnl := final.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100))
	return pnl.Mul(decimal.NewFromInt(int64(dir.Sign()))).Round(4)
}

type Summary struct {
	Checked   int
	Activated int
	Closed    int
	Expired   int
	Deferred  int
	Lost      int
	Failed    int
}

type Tracker struct {
	Repo    repository.SignalRepository
	Prices  PriceSource
	Config  config.LifecycleConfig
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
	// OnTransition is called after a transition is stored.
	OnTransition func(ctx context.Context, sig models.Signal)
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now().UTC()
}

// RunOnce re-prices every open signal. Prices are fetched once per symbol; a
// symbol without a price is deferred to the next run.
func (t *Tracker) RunOnce(ctx context.Context) (Summary, error) {
	var sum Summary
	if t == nil || t.Repo == nil || t.Prices == nil {
		return sum, nil
	}
	batch := t.Config.BatchSize
	if batch <= 0 {
		batch = 500
	}
	open, err := t.Repo.ListOpenSignals(ctx, batch)
	if err != nil {
		return sum, err
	}
	if len(open) == 0 {
		return sum, nil
	}
	prices := t.fetchPrices(ctx, open)
	now := t.now()

	limit := t.Config.Concurrency
	if limit <= 0 {
		limit = 8
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, sig := range open {
		g.Go(func() error {
			outcome := t.process(gctx, sig, prices, now)
			mu.Lock()
			defer mu.Unlock()
			sum.Checked++
			switch outcome {
			case models.SignalStatusActive:
				sum.Activated++
			case models.SignalStatusClosed:
				sum.Closed++
			case models.SignalStatusExpired:
				sum.Expired++
			case "deferred":
				sum.Deferred++
			case "lost":
				sum.Lost++
			case "failed":
				sum.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()
	if t.Logger != nil {
		t.Logger.Info("lifecycle run",
			zap.Int("checked", sum.Checked),
			zap.Int("activated", sum.Activated),
			zap.Int("closed", sum.Closed),
			zap.Int("expired", sum.Expired),
			zap.Int("deferred", sum.Deferred),
			zap.Int("failed", sum.Failed),
		)
	}
	return sum, nil
}

func (t *Tracker) fetchPrices(ctx context.Context, open []models.Signal) map[string]decimal.Decimal {
	symbols := map[string]struct{}{}
	for _, s := range open {
		symbols[s.Symbol] = struct{}{}
	}
	out := make(map[string]decimal.Decimal, len(symbols))
	policy := retry.Policy{
		Attempts: t.Config.RetryAttempts,
		Timeout:  t.Config.FetchTimeout,
		Min:      t.Config.BackoffMin,
		Max:      t.Config.BackoffMax,
		Jitter:   true,
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for symbol := range symbols {
		g.Go(func() error {
			var p float64
			err := retry.Do(gctx, policy, func(ctx context.Context) error {
				var err error
				p, err = t.Prices.LastPrice(ctx, symbol)
				return err
			})
			if err != nil || p <= 0 {
				if t.Logger != nil {
					t.Logger.Warn("lifecycle price unavailable", zap.String("symbol", symbol), zap.Error(err))
				}
				return nil
			}
			mu.Lock()
			out[symbol] = decimal.NewFromFloat(p)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (t *Tracker) process(ctx context.Context, sig models.Signal, prices map[string]decimal.Decimal, now time.Time) string {
	price, ok := prices[sig.Symbol]
	if !ok {
		return "deferred"
	}
	tr, ok := Evaluate(sig, price, now, t.Config.Horizon, t.Config.EntryTolerancePct)
	if !ok {
		return ""
	}
	changed, err := t.apply(ctx, sig, tr, now)
	if err != nil {
		if t.Logger != nil {
			t.Logger.Warn("lifecycle update failed", zap.Uint64("signal_id", sig.ID), zap.Error(err))
		}
		return "failed"
	}
	if !changed {
		return "lost"
	}
	return tr.Status
}

func (t *Tracker) apply(ctx context.Context, sig models.Signal, tr Transition, now time.Time) (bool, error) {
	outcome := repository.SignalOutcome{ID: sig.ID, Status: tr.Status, Notes: tr.Notes}
	if tr.Status != models.SignalStatusActive {
		final, pnl := tr.FinalPrice, tr.PnLPercent
		at := now
		outcome.FinalPrice, outcome.PnLPercent, outcome.OutcomeAt = &final, &pnl, &at
	}
	changed, err := t.Repo.UpdateSignalOutcome(ctx, outcome)
	if err != nil || !changed {
		return changed, err
	}
	t.Metrics.Transition(tr.Status)
	if t.Logger != nil {
		t.Logger.Info("signal transition",
			zap.Uint64("signal_id", sig.ID),
			zap.String("symbol", sig.Symbol),
			zap.String("from", sig.Status),
			zap.String("to", tr.Status),
			zap.String("notes", tr.Notes),
			zap.String("pnl_pct", tr.PnLPercent.StringFixed(4)),
		)
	}
	if t.OnTransition != nil {
		sig.Status, sig.Notes = tr.Status, tr.Notes
		if outcome.FinalPrice != nil {
			sig.FinalPrice, sig.PnLPercent, sig.OutcomeAt = outcome.FinalPrice, outcome.PnLPercent, outcome.OutcomeAt
		}
		t.OnTransition(ctx, sig)
	}
	return true, nil
}

// CloseSignal is the manual override. It uses the same pnl formula and fails
// with ErrTerminal when the signal is already closed or expired, including
// when a scheduled run closed it first.
func (t *Tracker) CloseSignal(ctx context.Context, id uint64, finalPrice decimal.Decimal, notes string) (*models.Signal, error) {
	if t == nil || t.Repo == nil {
		return nil, errors.New("lifecycle tracker not configured")
	}
	if !finalPrice.IsPositive() {
		return nil, fmt.Errorf("final price must be positive")
	}
	sig, err := t.Repo.GetSignalByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, repository.ErrNotFound
	}
	if models.IsTerminalSignalStatus(sig.Status) {
		return nil, ErrTerminal
	}
	if notes == "" {
		notes = NoteManual
	}
	tr := closing(models.SignalStatusClosed, notes, models.Direction(sig.Direction), sig.EntryPrice, finalPrice)
	changed, err := t.apply(ctx, *sig, tr, t.now())
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, ErrTerminal
	}
	return t.Repo.GetSignalByID(ctx, id)
}
