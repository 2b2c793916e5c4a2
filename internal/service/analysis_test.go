package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"signalflow/internal/config"
	"signalflow/internal/filter"
	"signalflow/internal/fusion"
	"signalflow/internal/marketdata"
	"signalflow/internal/models"
	"signalflow/internal/regime"
	"signalflow/internal/repository"
	"signalflow/internal/repository/memory"
	"signalflow/internal/scoring"
	"signalflow/internal/signal"
)

type stubLoader struct{}

func (stubLoader) Snapshot(_ context.Context, symbol string, _ []models.Timeframe, primary models.Timeframe, _ int, _ string) (models.MarketSnapshot, error) {
	if symbol == "BAD" {
		return models.MarketSnapshot{}, fmt.Errorf("%w: BAD 1h", marketdata.ErrDataUnavailable)
	}
	candles := make([]models.Candle, 120)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		c := 100 + float64(i)*0.5
		candles[i] = models.Candle{Symbol: symbol, Timeframe: primary, OpenTime: start.Add(time.Duration(i) * time.Hour), Open: c - 0.2, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 10}
	}
	return models.MarketSnapshot{Symbol: symbol, Primary: primary, Frames: map[models.Timeframe][]models.Candle{primary: candles}}, nil
}

// longDetector always proposes a long with a 1:3 risk/reward.
type longDetector struct{}

func (longDetector) Name() string { return "stub_long" }

func (longDetector) Detect(symbol string, snap models.MarketSnapshot) *models.Candidate {
	entry := snap.LastClose()
	return &models.Candidate{Direction: models.DirectionBuy, Timeframe: models.Timeframe1h, Strength: 0.8, Reason: "stub=1", Entry: entry, StopLoss: entry - 2, TakeProfit: entry + 6}
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []uint64
}

func (n *recordingNotifier) EnqueueSignal(_ context.Context, sig models.Signal) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, sig.ID)
	return true, nil
}

type recordingStream struct {
	mu      sync.Mutex
	symbols []string
}

func (s *recordingStream) PublishSignal(sig models.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = append(s.symbols, sig.Symbol)
}

func newAnalysis(t *testing.T, symbols ...string) (*AnalysisService, *memory.Store, *recordingNotifier, *recordingStream) {
	t.Helper()
	store := memory.New()
	reg := signal.NewRegistry(nil)
	reg.Register(longDetector{})
	f, err := filter.New(config.FilterConfig{Cooldown: time.Hour, Quotas: map[string]int{"LEVEL_1": 5, "LEVEL_2": 5, "LEVEL_3": 5}}, nil)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	n := &recordingNotifier{}
	st := &recordingStream{}
	svc := &AnalysisService{
		Market:    stubLoader{},
		Detectors: reg,
		Regime:    regime.New(config.RegimeConfig{Timeframe: "1h", MinBars: 20, Lookback: 30, VolatileStdev: 0.035, TrendEfficiency: 0.3}),
		Fusion:    &fusion.Engine{},
		Scorer: scoring.New(config.ScoringConfig{
			Level1: 100, Level2: 50, Level3: 10, MinRiskReward: 1.5, VolumeRatio: 1.2,
			Weights: config.ScoreWeights{Trend: 25, RiskReward: 20},
		}, models.Timeframe1h),
		Filter:   f,
		Repo:     store,
		Notifier: n,
		Stream:   st,
		Config: config.AnalysisConfig{
			Symbols:          symbols,
			Timeframes:       []string{"1h"},
			PrimaryTimeframe: "1h",
			CandleLimit:      120,
			Concurrency:      2,
			InitialStatus:    models.SignalStatusActive,
		},
	}
	return svc, store, n, st
}

func TestRunOnce_PersistsAcceptedAndSkipsFailures(t *testing.T) {
	ctx := context.Background()
	svc, store, n, st := newAnalysis(t, "BTCUSDT", "ETHUSDT", "BAD")

	sum, err := svc.RunOnce(ctx, Switches{Notifications: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Persisted != 2 || sum.Failed != 1 || sum.Raw != 2 || len(sum.SignalIDs) != 2 || sum.RunID == "" {
		t.Fatalf("summary=%+v", sum)
	}
	items, _ := store.ListSignals(ctx, repository.ListSignalsParams{})
	if len(items) != 2 {
		t.Fatalf("rows=%d want 2", len(items))
	}
	for _, sig := range items {
		if sig.Tier != string(models.TierLevel3) || sig.Score != 45 || sig.Status != models.SignalStatusActive || sig.Source != "stub_long" {
			t.Fatalf("signal=%+v", sig)
		}
		if sig.EntryPrice.String() != "159.5" || sig.StopLoss.String() != "157.5" || sig.TakeProfit.String() != "165.5" {
			t.Fatalf("levels entry=%s stop=%s take=%s", sig.EntryPrice, sig.StopLoss, sig.TakeProfit)
		}
	}
	if len(n.ids) != 2 || len(st.symbols) != 2 {
		t.Fatalf("notified=%v streamed=%v", n.ids, st.symbols)
	}

	diag := svc.Diagnostics()
	if len(diag) != 3 || diag[0].Symbol != "BAD" || diag[0].LastError == "" {
		t.Fatalf("diagnostics=%+v", diag)
	}
	if diag[1].Raw != 1 || diag[1].Enhanced != 1 || diag[1].Filtered != 1 || diag[1].Persisted != 1 {
		t.Fatalf("BTCUSDT diagnostics=%+v", diag[1])
	}
}

func TestRunOnce_CooldownBlocksSecondCycle(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newAnalysis(t, "BTCUSDT")
	if sum, _ := svc.RunOnce(ctx, Switches{}); sum.Persisted != 1 {
		t.Fatalf("first summary=%+v", sum)
	}
	sum, _ := svc.RunOnce(ctx, Switches{})
	if sum.Enhanced != 1 || sum.Accepted != 0 || sum.Persisted != 0 {
		t.Fatalf("second summary=%+v", sum)
	}
	if n, _ := store.CountSignals(ctx, repository.ListSignalsParams{}); n != 1 {
		t.Fatalf("rows=%d want 1", n)
	}
}

func TestTriggerAnalysis_SingleSymbolWithoutNotifications(t *testing.T) {
	ctx := context.Background()
	svc, store, n, st := newAnalysis(t, "BTCUSDT")
	sum, err := svc.TriggerAnalysis(ctx, " solusdt ", Switches{Notifications: false})
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if sum.Symbols != 1 || sum.Persisted != 1 {
		t.Fatalf("summary=%+v", sum)
	}
	sig, _ := store.GetSignalByID(ctx, sum.SignalIDs[0])
	if sig == nil || sig.Symbol != "SOLUSDT" {
		t.Fatalf("signal=%+v", sig)
	}
	if len(n.ids) != 0 || len(st.symbols) != 1 {
		t.Fatalf("notified=%v streamed=%v", n.ids, st.symbols)
	}
	if _, err := svc.TriggerAnalysis(ctx, "  ", Switches{}); err == nil {
		t.Fatalf("expected error for empty symbol")
	}
}

// failingSignals rejects the first n inserts.
type failingSignals struct {
	*memory.Store
	mu   sync.Mutex
	fail int
}

func (f *failingSignals) InsertSignal(ctx context.Context, sig *models.Signal) error {
	f.mu.Lock()
	if f.fail > 0 {
		f.fail--
		f.mu.Unlock()
		return errors.New("database is locked")
	}
	f.mu.Unlock()
	return f.Store.InsertSignal(ctx, sig)
}

func TestRunOnce_FailedInsertReleasesFilterSlot(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _ := newAnalysis(t, "BTCUSDT")
	svc.Repo = &failingSignals{Store: store, fail: 1}

	sum, err := svc.RunOnce(ctx, Switches{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Accepted != 1 || sum.Persisted != 0 || sum.Failed != 1 {
		t.Fatalf("first summary=%+v", sum)
	}
	if st := svc.Filter.Snapshot(); len(st.Cooldowns) != 0 {
		t.Fatalf("cooldown kept after failed insert: %+v", st.Cooldowns)
	}

	sum, _ = svc.RunOnce(ctx, Switches{})
	if sum.Persisted != 1 {
		t.Fatalf("second summary=%+v", sum)
	}
}
