package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	ctclient "signalflow/internal/client/copytrade"
	"signalflow/internal/config"
	"signalflow/internal/copytrade"
	"signalflow/internal/lifecycle"
	"signalflow/internal/models"
	"signalflow/internal/notify"
	"signalflow/internal/repository"
	"signalflow/internal/repository/memory"
)

type oneOrderSource struct {
	mu    sync.Mutex
	calls int
}

func (s *oneOrderSource) GetTraderOrders(_ context.Context, _ string, _, to time.Time) ([]ctclient.OrderRecord, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return []ctclient.OrderRecord{{
		Symbol:       "BTCUSDT",
		Side:         "BUY",
		PositionSide: "LONG",
		AvgPrice:     json.Number("64000"),
		ExecutedQty:  json.Number("0.01"),
		OrderTime:    to.Add(-time.Minute).UnixMilli(),
	}}, nil, nil
}

type countingOrderNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingOrderNotifier) EnqueueCopyOrder(context.Context, models.CopyOrder, models.TraderWatch) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return true, nil
}

type fixedPrice float64

func (p fixedPrice) LastPrice(context.Context, string) (float64, error) { return float64(p), nil }

type countingMailer struct {
	mu   sync.Mutex
	sent int
}

func (m *countingMailer) Send(context.Context, notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	return nil
}

type jobsFixture struct {
	jobs       *Jobs
	settings   *SystemSettingsService
	signals    *memory.Store
	trades     *memory.Store
	source     *oneOrderSource
	notifier   *countingOrderNotifier
	mailer     *countingMailer
	openSignal uint64
}

func newJobsFixture(t *testing.T) *jobsFixture {
	t.Helper()
	ctx := context.Background()
	analysis, signals, _, _ := newAnalysis(t, "BTCUSDT")

	// an open signal the tracker closes at the fixed price
	open := models.Signal{
		Symbol:     "ETHUSDT",
		Direction:  string(models.DirectionBuy),
		EntryPrice: decimal.NewFromInt(100),
		StopLoss:   decimal.NewFromInt(90),
		TakeProfit: decimal.NewFromInt(110),
		Status:     models.SignalStatusActive,
	}
	if err := signals.InsertSignal(ctx, &open); err != nil {
		t.Fatalf("seed signal: %v", err)
	}

	trades := memory.New()
	if err := trades.UpsertTraderWatch(ctx, &models.TraderWatch{TraderID: "t1", PortfolioID: "p1", Enabled: true}); err != nil {
		t.Fatalf("seed trader: %v", err)
	}
	source := &oneOrderSource{}
	notifier := &countingOrderNotifier{}

	outbox := &notify.Outbox{Repo: trades, SignalRecipients: []string{"ops@x.io"}}
	if _, err := outbox.EnqueueSignal(ctx, open); err != nil {
		t.Fatalf("seed outbox: %v", err)
	}
	mailer := &countingMailer{}

	settings := &SystemSettingsService{Repo: memory.New()}
	return &jobsFixture{
		jobs: &Jobs{
			Settings: settings,
			Analysis: analysis,
			Monitor: &copytrade.Monitor{
				Source:   source,
				Repo:     trades,
				Notifier: notifier,
				Exchange: "binance",
				Window:   10 * time.Minute,
			},
			Tracker: &lifecycle.Tracker{
				Repo:   signals,
				Prices: fixedPrice(89),
				Config: config.LifecycleConfig{Horizon: 24 * time.Hour, EntryTolerancePct: 0.3, Concurrency: 1, BatchSize: 10},
			},
			Dispatcher: &notify.Dispatcher{Repo: trades, Mailer: mailer},
		},
		settings:   settings,
		signals:    signals,
		trades:     trades,
		source:     source,
		notifier:   notifier,
		mailer:     mailer,
		openSignal: open.ID,
	}
}

func (f *jobsFixture) runAll(ctx context.Context) {
	f.jobs.RunAnalysis(ctx)
	f.jobs.RunOrderMonitor(ctx)
	f.jobs.RunLifecycle(ctx)
	f.jobs.RunOutboxDispatch(ctx)
}

func TestJobs_DisabledSwitchesSkipWork(t *testing.T) {
	ctx := context.Background()
	f := newJobsFixture(t)
	for key := range DefaultFeatureSwitches() {
		if err := f.settings.SetEnabled(ctx, key, false); err != nil {
			t.Fatalf("disable %s: %v", key, err)
		}
	}
	f.runAll(ctx)

	if n, _ := f.signals.CountSignals(ctx, repository.ListSignalsParams{}); n != 1 {
		t.Fatalf("signals=%d want only the seeded one", n)
	}
	if f.source.calls != 0 {
		t.Fatalf("order source called %d times", f.source.calls)
	}
	if sig, _ := f.signals.GetSignalByID(ctx, f.openSignal); sig.Status != models.SignalStatusActive {
		t.Fatalf("tracker moved signal to %s", sig.Status)
	}
	if f.mailer.sent != 0 || f.trades.Notifications()[0].Status != models.NotificationPending {
		t.Fatalf("outbox dispatched while notifications off")
	}
}

func TestJobs_EnabledSwitchesRunWork(t *testing.T) {
	ctx := context.Background()
	f := newJobsFixture(t)
	if err := f.settings.EnsureDefaultSwitches(ctx); err != nil {
		t.Fatalf("seed switches: %v", err)
	}
	f.runAll(ctx)

	if n, _ := f.signals.CountSignals(ctx, repository.ListSignalsParams{}); n != 2 {
		t.Fatalf("signals=%d want 2", n)
	}
	if f.source.calls != 1 || f.notifier.count != 1 {
		t.Fatalf("source calls=%d notified=%d", f.source.calls, f.notifier.count)
	}
	if sig, _ := f.signals.GetSignalByID(ctx, f.openSignal); sig.Status != models.SignalStatusClosed {
		t.Fatalf("signal status=%s want CLOSED", sig.Status)
	}
	if f.mailer.sent != 1 {
		t.Fatalf("mails=%d want 1", f.mailer.sent)
	}
}

func TestJobs_OrderMonitorNotifiesOnlyWithNotifications(t *testing.T) {
	ctx := context.Background()
	f := newJobsFixture(t)
	if err := f.settings.SetEnabled(ctx, FeatureNotifications, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	f.jobs.RunOrderMonitor(ctx)
	if f.source.calls != 1 || f.notifier.count != 0 {
		t.Fatalf("source calls=%d notified=%d", f.source.calls, f.notifier.count)
	}
	orders, _ := f.trades.CountCopyOrders(ctx, repository.ListCopyOrdersParams{})
	if orders != 1 {
		t.Fatalf("orders=%d want 1", orders)
	}
}
