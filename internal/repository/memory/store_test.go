package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"signalflow/internal/models"
	"signalflow/internal/repository"
)

func TestInsertSignal_RejectsTerminalStatus(t *testing.T) {
	s := New()
	err := s.InsertSignal(context.Background(), &models.Signal{Symbol: "BTCUSDT", Status: models.SignalStatusClosed})
	if !errors.Is(err, repository.ErrInvalidStatus) {
		t.Fatalf("err=%v want ErrInvalidStatus", err)
	}
}

func TestUpdateSignalOutcome_NeverLeavesTerminal(t *testing.T) {
	ctx := context.Background()
	s := New()
	sig := &models.Signal{Symbol: "BTCUSDT", Status: models.SignalStatusActive}
	if err := s.InsertSignal(ctx, sig); err != nil {
		t.Fatalf("insert: %v", err)
	}
	price := decimal.NewFromInt(90)
	ok, err := s.UpdateSignalOutcome(ctx, repository.SignalOutcome{ID: sig.ID, Status: models.SignalStatusClosed, FinalPrice: &price})
	if err != nil || !ok {
		t.Fatalf("close ok=%v err=%v", ok, err)
	}
	ok, err = s.UpdateSignalOutcome(ctx, repository.SignalOutcome{ID: sig.ID, Status: models.SignalStatusExpired})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if ok {
		t.Fatalf("expired a closed signal")
	}
	got, _ := s.GetSignalByID(ctx, sig.ID)
	if got.Status != models.SignalStatusClosed {
		t.Fatalf("status=%s want CLOSED", got.Status)
	}
}

func TestUpdateSignalOutcome_ConcurrentClosersOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	s := New()
	sig := &models.Signal{Symbol: "ETHUSDT", Status: models.SignalStatusActive}
	_ = s.InsertSignal(ctx, sig)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := s.UpdateSignalOutcome(ctx, repository.SignalOutcome{ID: sig.ID, Status: models.SignalStatusClosed})
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins=%d want 1", wins)
	}
}

func TestInsertCopyOrder_UniquePerExchange(t *testing.T) {
	ctx := context.Background()
	s := New()
	first := &models.CopyOrder{Exchange: "binance", ExchangeOrderID: "1000", TraderID: "t1"}
	inserted, err := s.InsertCopyOrder(ctx, first)
	if err != nil || !inserted {
		t.Fatalf("first inserted=%v err=%v", inserted, err)
	}
	inserted, _ = s.InsertCopyOrder(ctx, &models.CopyOrder{Exchange: "binance", ExchangeOrderID: "1000", TraderID: "t1"})
	if inserted {
		t.Fatalf("duplicate inserted")
	}
	inserted, _ = s.InsertCopyOrder(ctx, &models.CopyOrder{Exchange: "okx", ExchangeOrderID: "1000", TraderID: "t1"})
	if !inserted {
		t.Fatalf("same id on another exchange should insert")
	}
	total, _ := s.CountCopyOrders(ctx, repository.ListCopyOrdersParams{})
	if total != 2 {
		t.Fatalf("total=%d want 2", total)
	}
}

func TestIncrementTraderCounters_RollsDay(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.UpsertTraderWatch(ctx, &models.TraderWatch{TraderID: "t1", PortfolioID: "p1", Enabled: true})
	day1 := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	_ = s.IncrementTraderCounters(ctx, "t1", day1)
	_ = s.IncrementTraderCounters(ctx, "t1", day1.Add(10*time.Minute))
	_ = s.IncrementTraderCounters(ctx, "t1", day1.Add(2*time.Hour))
	got, _ := s.GetTraderWatch(ctx, "t1")
	if got.TodayCount != 1 || got.TotalCount != 3 {
		t.Fatalf("today=%d total=%d want 1/3", got.TodayCount, got.TotalCount)
	}
	if got.LastOrderAt == nil || !got.LastOrderAt.Equal(day1.Add(2*time.Hour)) {
		t.Fatalf("last_order_at=%v", got.LastOrderAt)
	}
}

func TestEnqueueNotification_Dedupes(t *testing.T) {
	ctx := context.Background()
	s := New()
	ok, _ := s.EnqueueNotification(ctx, &models.NotificationOutbox{DedupeKey: "signal:1"})
	if !ok {
		t.Fatalf("first enqueue rejected")
	}
	ok, _ = s.EnqueueNotification(ctx, &models.NotificationOutbox{DedupeKey: "signal:1"})
	if ok {
		t.Fatalf("duplicate enqueued")
	}
	if n := len(s.Notifications()); n != 1 {
		t.Fatalf("rows=%d want 1", n)
	}
}
