package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signalflow/internal/config"
	"signalflow/internal/models"
	"signalflow/internal/repository/memory"
)

type stubMailer struct {
	mu   sync.Mutex
	fail bool
	sent []Message
}

func (m *stubMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type stubResolver struct {
	mu     sync.Mutex
	emails []string
	// failures is the number of lookups that fail before one succeeds.
	failures int
	traders  []string
}

func (r *stubResolver) NotifiableEmails(_ context.Context, traderID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traders = append(r.traders, traderID)
	if r.failures > 0 {
		r.failures--
		return nil, errors.New("platform unavailable")
	}
	return r.emails, nil
}

func testSignal() models.Signal {
	return models.Signal{
		ID:         7,
		Symbol:     "BTCUSDT",
		Direction:  "BUY",
		Source:     "trend_momentum",
		Timeframe:  "1h",
		EntryPrice: decimal.RequireFromString("64000.5"),
		StopLoss:   decimal.RequireFromString("63000"),
		TakeProfit: decimal.RequireFromString("66000"),
		Score:      82,
		Tier:       "LEVEL_1",
		Status:     models.SignalStatusActive,
		Confidence: 0.75,
		Reasoning:  "trend_momentum BUY w=1.00",
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRenderSignal(t *testing.T) {
	subject, body, err := RenderSignal(testSignal())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "[LEVEL_1] BUY BTCUSDT @ 64000.5 (trend_momentum)" {
		t.Fatalf("subject=%q", subject)
	}
	for _, want := range []string{"signal #7", "Stop loss:   63000", "Confidence:  75.0%", "2026-03-01 12:00:00 UTC"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderCopyOrder_NicknameAndOptionalPnL(t *testing.T) {
	order := models.CopyOrder{
		ID:              3,
		TraderID:        "t-1",
		ExchangeOrderID: "9001",
		Symbol:          "ETHUSDT",
		Side:            "BUY",
		PositionSide:    "LONG",
		ActionType:      models.ActionOpenLong,
		ExecutedQty:     decimal.RequireFromString("1.5"),
		AvgPrice:        decimal.RequireFromString("3200"),
		OrderTime:       time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	subject, body, err := RenderCopyOrder(order, models.TraderWatch{Nickname: "whale"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "[copy-trade] whale OPEN_LONG ETHUSDT" {
		t.Fatalf("subject=%q", subject)
	}
	if strings.Contains(body, "Realized PnL") {
		t.Fatalf("pnl line without pnl:\n%s", body)
	}
	pnl := decimal.RequireFromString("12.5")
	order.RealizedPnL = &pnl
	subject, body, _ = RenderCopyOrder(order, models.TraderWatch{})
	if !strings.Contains(subject, "t-1") || !strings.Contains(body, "Realized PnL:  12.5") {
		t.Fatalf("subject=%q body:\n%s", subject, body)
	}
}

func TestOutbox_DedupesSignal(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := &Outbox{Repo: store, SignalRecipients: []string{"Ops@x.io", "ops@x.io ", ""}}

	ok, err := o.EnqueueSignal(ctx, testSignal())
	if err != nil || !ok {
		t.Fatalf("first ok=%v err=%v", ok, err)
	}
	ok, err = o.EnqueueSignal(ctx, testSignal())
	if err != nil || ok {
		t.Fatalf("second ok=%v err=%v", ok, err)
	}
	rows := store.Notifications()
	if len(rows) != 1 || rows[0].DedupeKey != "signal:7" {
		t.Fatalf("rows=%+v", rows)
	}
	if string(rows[0].Recipients) != `["ops@x.io"]` {
		t.Fatalf("recipients=%s", rows[0].Recipients)
	}
}

func TestOutbox_NoRecipients(t *testing.T) {
	ctx := context.Background()
	o := &Outbox{Repo: memory.New()}
	if _, err := o.EnqueueSignal(ctx, testSignal()); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("err=%v want ErrNoRecipients", err)
	}
	if _, err := o.EnqueueCopyOrder(ctx, models.CopyOrder{ID: 1}, models.TraderWatch{}); err == nil {
		t.Fatalf("copy order without trader queued")
	}
}

func TestOutbox_CopyOrderKeyedByTrader(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := &Outbox{Repo: store}
	order := models.CopyOrder{ID: 11, TraderID: "t-1", Symbol: "BTCUSDT", ActionType: models.ActionOpenShort}
	if ok, err := o.EnqueueCopyOrder(ctx, order, models.TraderWatch{}); err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if ok, _ := o.EnqueueCopyOrder(ctx, order, models.TraderWatch{}); ok {
		t.Fatalf("same order queued twice")
	}
	rows := store.Notifications()
	if len(rows) != 1 || rows[0].DedupeKey != "copy_order:11" || rows[0].Kind != KindCopyOrder || rows[0].Audience != "t-1" {
		t.Fatalf("rows=%+v", rows)
	}
	if string(rows[0].Recipients) != `[]` {
		t.Fatalf("recipients=%s", rows[0].Recipients)
	}
}

func TestDispatcher_ResolvesFollowersAfterFailedLookup(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	o := &Outbox{Repo: store, Now: clock}
	order := models.CopyOrder{ID: 11, TraderID: "t-1", Symbol: "BTCUSDT", ActionType: models.ActionOpenShort}
	_, _ = o.EnqueueCopyOrder(ctx, order, models.TraderWatch{Nickname: "whale"})

	resolver := &stubResolver{emails: []string{"F1@x.io", "f2@x.io", "f1@x.io"}, failures: 1}
	mailer := &stubMailer{}
	d := &Dispatcher{
		Repo:        store,
		Mailer:      mailer,
		Subscribers: resolver,
		Config:      config.NotifyConfig{MaxAttempts: 3, RetryMin: time.Minute, RetryMax: time.Hour},
		Now:         clock,
	}
	sum, err := d.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Retried != 1 || len(mailer.sent) != 0 {
		t.Fatalf("first summary=%+v sent=%d", sum, len(mailer.sent))
	}
	if row := store.Notifications()[0]; row.Status != models.NotificationPending || row.Attempts != 1 || row.LastError == "" {
		t.Fatalf("row=%+v", row)
	}

	now = now.Add(time.Minute)
	sum, _ = d.RunOnce(ctx)
	if sum.Sent != 1 {
		t.Fatalf("second summary=%+v", sum)
	}
	if len(mailer.sent) != 1 || len(mailer.sent[0].To) != 2 || mailer.sent[0].To[0] != "f1@x.io" {
		t.Fatalf("sent=%+v", mailer.sent)
	}
	if len(resolver.traders) != 2 || resolver.traders[1] != "t-1" {
		t.Fatalf("lookups=%v", resolver.traders)
	}
}

func TestDispatcher_CopyOrderWithoutFollowersIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := &Outbox{Repo: store}
	_, _ = o.EnqueueCopyOrder(ctx, models.CopyOrder{ID: 12, TraderID: "t-2"}, models.TraderWatch{})

	d := &Dispatcher{Repo: store, Mailer: &stubMailer{}, Subscribers: &stubResolver{}}
	sum, err := d.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Skipped != 1 || sum.Retried != 0 {
		t.Fatalf("summary=%+v", sum)
	}
	if row := store.Notifications()[0]; row.Status != models.NotificationFailed {
		t.Fatalf("row=%+v", row)
	}
}

func TestDispatcher_RetriesWithoutResolver(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := &Outbox{Repo: store}
	_, _ = o.EnqueueCopyOrder(ctx, models.CopyOrder{ID: 13, TraderID: "t-3"}, models.TraderWatch{})

	d := &Dispatcher{Repo: store, Mailer: &stubMailer{}}
	if sum, _ := d.RunOnce(ctx); sum.Retried != 1 {
		t.Fatalf("summary=%+v", sum)
	}
}

func TestDispatcher_SendsAndMarks(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := &Outbox{Repo: store, SignalRecipients: []string{"ops@x.io"}, Now: func() time.Time { return now }}
	_, _ = o.EnqueueSignal(ctx, testSignal())

	mailer := &stubMailer{}
	d := &Dispatcher{Repo: store, Mailer: mailer, Config: config.NotifyConfig{From: "bot@x.io"}, Now: func() time.Time { return now }}
	sum, err := d.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Due != 1 || sum.Sent != 1 {
		t.Fatalf("summary=%+v", sum)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].From != "bot@x.io" || mailer.sent[0].To[0] != "ops@x.io" {
		t.Fatalf("sent=%+v", mailer.sent)
	}
	if rows := store.Notifications(); rows[0].Status != models.NotificationSent {
		t.Fatalf("status=%s", rows[0].Status)
	}
	sum, _ = d.RunOnce(ctx)
	if sum.Due != 0 {
		t.Fatalf("sent row picked up again: %+v", sum)
	}
}

func TestDispatcher_RetriesThenFails(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	o := &Outbox{Repo: store, SignalRecipients: []string{"ops@x.io"}, Now: clock}
	_, _ = o.EnqueueSignal(ctx, testSignal())

	d := &Dispatcher{
		Repo:   store,
		Mailer: &stubMailer{fail: true},
		Config: config.NotifyConfig{MaxAttempts: 3, RetryMin: time.Minute, RetryMax: 10 * time.Minute},
		Now:    clock,
	}
	sum, _ := d.RunOnce(ctx)
	if sum.Retried != 1 {
		t.Fatalf("summary=%+v", sum)
	}
	row := store.Notifications()[0]
	if row.Attempts != 1 || !row.NextAttemptAt.Equal(now.Add(time.Minute)) || row.LastError == "" {
		t.Fatalf("row=%+v", row)
	}

	// not due yet
	if sum, _ := d.RunOnce(ctx); sum.Due != 0 {
		t.Fatalf("retried before backoff elapsed: %+v", sum)
	}
	now = now.Add(time.Minute)
	_, _ = d.RunOnce(ctx)
	row = store.Notifications()[0]
	if row.Attempts != 2 || !row.NextAttemptAt.Equal(now.Add(2*time.Minute)) {
		t.Fatalf("row=%+v", row)
	}
	now = now.Add(2 * time.Minute)
	sum, _ = d.RunOnce(ctx)
	if sum.Failed != 1 {
		t.Fatalf("summary=%+v", sum)
	}
	if row = store.Notifications()[0]; row.Status != models.NotificationFailed || row.Attempts != 3 {
		t.Fatalf("row=%+v", row)
	}
}

func TestRetryDelay_Caps(t *testing.T) {
	d := &Dispatcher{Config: config.NotifyConfig{RetryMin: 30 * time.Second, RetryMax: 30 * time.Minute}}
	if got := d.RetryDelay(1); got != 30*time.Second {
		t.Fatalf("delay(1)=%v", got)
	}
	if got := d.RetryDelay(3); got != 2*time.Minute {
		t.Fatalf("delay(3)=%v", got)
	}
	if got := d.RetryDelay(20); got != 30*time.Minute {
		t.Fatalf("delay(20)=%v", got)
	}
}

func TestBroadcaster_DropsWhenSlow(t *testing.T) {
	b := NewBroadcaster(1, nil)
	fast, cancelFast := b.Subscribe()
	_, cancelSlow := b.Subscribe()
	defer cancelSlow()

	b.PublishSignal(testSignal())
	ev := <-fast
	if ev.Type != "signal" || ev.Data.(SignalEvent).EntryPrice != "64000.5" {
		t.Fatalf("event=%+v", ev)
	}
	b.PublishSignal(testSignal())
	if b.Dropped() != 1 {
		t.Fatalf("dropped=%d want 1", b.Dropped())
	}
	<-fast
	cancelFast()
	cancelFast()
	if _, open := <-fast; open {
		t.Fatalf("channel still open after cancel")
	}
	if b.Subscribers() != 1 {
		t.Fatalf("subscribers=%d want 1", b.Subscribers())
	}
}
