package filter

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"signalflow/internal/config"
	"signalflow/internal/models"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newFilter(t *testing.T, cooldown time.Duration, quotas map[string]int) (*Filter, *clock) {
	t.Helper()
	f, err := New(config.FilterConfig{Cooldown: cooldown, Quotas: quotas, Timezone: "UTC"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c := &clock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	f.Now = c.Now
	return f, c
}

func sig(symbol string, tier models.Tier, score int) models.ScoredSignal {
	return models.ScoredSignal{Symbol: symbol, Direction: models.DirectionBuy, Source: "trend_momentum", Tier: tier, Score: score}
}

func count(items []models.ScoredSignal, tier models.Tier) int {
	n := 0
	for _, s := range items {
		if s.Tier == tier {
			n++
		}
	}
	return n
}

func TestQuota_OneCycleManySymbols(t *testing.T) {
	f, _ := newFilter(t, time.Hour, map[string]int{"LEVEL_1": 5, "LEVEL_2": 3})
	var in []models.ScoredSignal
	for i := 0; i < 10; i++ {
		in = append(in, sig(fmt.Sprintf("L2-%02d", i), models.TierLevel2, 70))
		in = append(in, sig(fmt.Sprintf("L1-%02d", i), models.TierLevel1, 85))
	}
	got := f.FilterForDispatch(in)
	if count(got, models.TierLevel1) != 5 || count(got, models.TierLevel2) != 3 {
		t.Fatalf("accepted L1=%d L2=%d", count(got, models.TierLevel1), count(got, models.TierLevel2))
	}
	for i := 0; i < 5; i++ {
		if got[i].Tier != models.TierLevel1 {
			t.Fatalf("position %d tier=%s, LEVEL_1 must come first", i, got[i].Tier)
		}
	}
}

func TestQuota_OneSymbolAcrossCycles(t *testing.T) {
	f, c := newFilter(t, 0, map[string]int{"LEVEL_1": 5, "LEVEL_2": 3})
	accepted := map[models.Tier]int{}
	for _, tier := range []models.Tier{models.TierLevel1, models.TierLevel2} {
		for i := 0; i < 10; i++ {
			c.t = c.t.Add(time.Minute)
			for _, s := range f.FilterForDispatch([]models.ScoredSignal{sig("BTCUSDT", tier, 90)}) {
				accepted[s.Tier]++
			}
		}
	}
	if accepted[models.TierLevel1] != 5 || accepted[models.TierLevel2] != 3 {
		t.Fatalf("accepted=%v", accepted)
	}
}

func TestQuota_ResetsAtDayBoundary(t *testing.T) {
	f, c := newFilter(t, 0, map[string]int{"LEVEL_1": 1})
	if got := f.FilterForDispatch([]models.ScoredSignal{sig("A", models.TierLevel1, 90)}); len(got) != 1 {
		t.Fatalf("first accept failed")
	}
	if got := f.FilterForDispatch([]models.ScoredSignal{sig("B", models.TierLevel1, 90)}); len(got) != 0 {
		t.Fatalf("quota not enforced")
	}
	c.t = c.t.Add(15 * time.Hour)
	if got := f.FilterForDispatch([]models.ScoredSignal{sig("B", models.TierLevel1, 90)}); len(got) != 1 {
		t.Fatalf("quota did not reset on a new day")
	}
}

func TestCooldown(t *testing.T) {
	f, c := newFilter(t, time.Hour, nil)
	t0 := c.t
	if got := f.FilterForDispatch([]models.ScoredSignal{sig("ETHUSDT", models.TierLevel2, 70)}); len(got) != 1 {
		t.Fatalf("first signal rejected")
	}
	c.t = t0.Add(30 * time.Minute)
	accepted, rejected := f.Evaluate([]models.ScoredSignal{sig("ETHUSDT", models.TierLevel1, 95)})
	if len(accepted) != 0 || len(rejected) != 1 || rejected[0].Reason != RejectCooldown {
		t.Fatalf("accepted=%v rejected=%v", accepted, rejected)
	}
	if got := f.FilterForDispatch([]models.ScoredSignal{sig("SOLUSDT", models.TierLevel1, 95)}); len(got) != 1 {
		t.Fatalf("cooldown leaked to another symbol")
	}
	c.t = t0.Add(61 * time.Minute)
	if got := f.FilterForDispatch([]models.ScoredSignal{sig("ETHUSDT", models.TierLevel1, 95)}); len(got) != 1 {
		t.Fatalf("signal after cooldown rejected")
	}
}

func TestRelease_GivesBackCooldownAndQuota(t *testing.T) {
	f, c := newFilter(t, time.Hour, map[string]int{"LEVEL_1": 1})
	s := sig("BTCUSDT", models.TierLevel1, 90)
	if got := f.FilterForDispatch([]models.ScoredSignal{s}); len(got) != 1 {
		t.Fatalf("first signal rejected")
	}
	f.Release(s)
	st := f.Snapshot()
	if st.Tiers[0].Used != 0 || len(st.Cooldowns) != 0 {
		t.Fatalf("state after release=%+v", st)
	}
	c.t = c.t.Add(time.Minute)
	if got := f.FilterForDispatch([]models.ScoredSignal{s}); len(got) != 1 {
		t.Fatalf("released slot not reusable")
	}
	// releasing a tier that was never accepted is a no-op
	f.Release(sig("BTCUSDT", models.TierLevel2, 70))
	if st := f.Snapshot(); st.Tiers[0].Used != 1 || len(st.Cooldowns) != 1 {
		t.Fatalf("state after foreign release=%+v", st)
	}
}

func TestCollapse_SameSymbolAndDirection(t *testing.T) {
	f, _ := newFilter(t, 0, nil)
	low := sig("BTCUSDT", models.TierLevel2, 70)
	high := sig("BTCUSDT", models.TierLevel2, 75)
	high.Source = "whale_flow"
	sell := sig("BTCUSDT", models.TierLevel3, 55)
	sell.Direction = models.DirectionSell

	accepted, rejected := f.Evaluate([]models.ScoredSignal{low, high, sell})
	if len(accepted) != 2 || accepted[0].Score != 75 || accepted[1].Direction != models.DirectionSell {
		t.Fatalf("accepted=%+v", accepted)
	}
	if len(rejected) != 1 || rejected[0].Reason != RejectDuplicate || rejected[0].Signal.Score != 70 {
		t.Fatalf("rejected=%+v", rejected)
	}
}

func TestResetAndSnapshot(t *testing.T) {
	f, _ := newFilter(t, time.Hour, map[string]int{"LEVEL_1": 2})
	f.FilterForDispatch([]models.ScoredSignal{sig("BTCUSDT", models.TierLevel1, 90)})
	snap := f.Snapshot()
	if len(snap.Cooldowns) != 1 || snap.Tiers[0].Used != 1 || snap.Tiers[0].Limit != 2 {
		t.Fatalf("snapshot=%+v", snap)
	}
	f.Reset()
	snap = f.Snapshot()
	if len(snap.Cooldowns) != 0 || snap.Tiers[0].Used != 0 {
		t.Fatalf("after reset=%+v", snap)
	}
	if got := f.FilterForDispatch([]models.ScoredSignal{sig("BTCUSDT", models.TierLevel1, 90)}); len(got) != 1 {
		t.Fatalf("reset did not clear cooldown")
	}
}

func TestConcurrentCyclesRespectQuota(t *testing.T) {
	f, _ := newFilter(t, 0, map[string]int{"LEVEL_1": 7})
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			var in []models.ScoredSignal
			for i := 0; i < 5; i++ {
				in = append(in, sig(fmt.Sprintf("S%d-%d", g, i), models.TierLevel1, 90))
			}
			got := f.FilterForDispatch(in)
			mu.Lock()
			total += len(got)
			mu.Unlock()
		}(g)
	}
	wg.Wait()
	if total != 7 {
		t.Fatalf("accepted=%d want 7", total)
	}
}
