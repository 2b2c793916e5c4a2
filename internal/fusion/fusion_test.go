package fusion

import (
	"math/rand"
	"reflect"
	"testing"

	"signalflow/internal/models"
)

func cand(source string, dir models.Direction, strength float64) models.Candidate {
	entry := 100.0
	stop, take := 95.0, 110.0
	if dir == models.DirectionSell {
		stop, take = 105, 90
	}
	return models.Candidate{Symbol: "BTCUSDT", Source: source, Direction: dir, Strength: strength, Entry: entry, StopLoss: stop, TakeProfit: take, Timeframe: models.Timeframe1h}
}

func TestFuse_DeterministicUnderPermutation(t *testing.T) {
	e := &Engine{
		Reliability:   map[string]float64{"trend_momentum": 1.2, "whale_flow": 0.9},
		Compatibility: map[models.Regime]map[string]float64{models.RegimeTrendingUp: {"trend_momentum": 1.3, "sentiment_extreme": 0.5}},
		MinConfidence: 0.2,
	}
	base := []models.Candidate{
		cand("trend_momentum", models.DirectionBuy, 0.8),
		cand("whale_flow", models.DirectionBuy, 0.6),
		cand("sentiment_extreme", models.DirectionSell, 0.7),
		cand("key_level", models.DirectionBuy, 0.3),
		cand("cross_asset", models.DirectionSell, 0.2),
	}
	want := e.Fuse(base, models.RegimeTrendingUp, 0)
	if want.Decision != models.DirectionBuy {
		t.Fatalf("decision=%s want BUY (%s)", want.Decision, want.Reasoning)
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append([]models.Candidate(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := e.Fuse(shuffled, models.RegimeTrendingUp, 0)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("permutation %d changed result:\n got %+v\nwant %+v", i, got, want)
		}
	}
}

func TestFuse_TieIsHold(t *testing.T) {
	e := &Engine{}
	got := e.Fuse([]models.Candidate{
		cand("a", models.DirectionBuy, 0.5),
		cand("b", models.DirectionSell, 0.5),
	}, models.RegimeRanging, 0)
	if got.Decision != models.DirectionHold || got.Confidence != 0 {
		t.Fatalf("decision=%s conf=%v", got.Decision, got.Confidence)
	}
}

func TestFuse_ConfidenceFloor(t *testing.T) {
	e := &Engine{MinConfidence: 0.5}
	// buy 0.6 vs sell 0.4 -> confidence 0.2
	got := e.Fuse([]models.Candidate{
		cand("a", models.DirectionBuy, 0.6),
		cand("b", models.DirectionSell, 0.4),
	}, models.RegimeRanging, 0)
	if got.Decision != models.DirectionHold {
		t.Fatalf("decision=%s want HOLD", got.Decision)
	}
	if got.Confidence < 0.199 || got.Confidence > 0.201 {
		t.Fatalf("confidence=%v want 0.2", got.Confidence)
	}
}

func TestFuse_RegimeCanFlipDecision(t *testing.T) {
	e := &Engine{Compatibility: map[models.Regime]map[string]float64{
		models.RegimeVolatile: {"trend_momentum": 0.2},
	}}
	in := []models.Candidate{
		cand("trend_momentum", models.DirectionBuy, 0.8),
		cand("sentiment_extreme", models.DirectionSell, 0.5),
	}
	if got := e.Fuse(in, models.RegimeRanging, 0); got.Decision != models.DirectionBuy {
		t.Fatalf("ranging decision=%s", got.Decision)
	}
	got := e.Fuse(in, models.RegimeVolatile, 0)
	if got.Decision != models.DirectionSell || got.Dominant != "sentiment_extreme" {
		t.Fatalf("volatile decision=%s dominant=%s", got.Decision, got.Dominant)
	}
}

func TestFuse_LevelsFollowWinningSide(t *testing.T) {
	e := &Engine{}
	got := e.Fuse([]models.Candidate{
		cand("a", models.DirectionBuy, 0.5),
		cand("b", models.DirectionBuy, 0.5),
	}, models.RegimeTrendingUp, 102)
	if got.Decision != models.DirectionBuy || got.AggregatedStrength != 0.5 || got.Confidence != 1 {
		t.Fatalf("result=%+v", got)
	}
	if got.Entry != 102 || got.StopLoss != 97 || got.TakeProfit != 112 {
		t.Fatalf("levels entry=%v stop=%v take=%v", got.Entry, got.StopLoss, got.TakeProfit)
	}
	if c := got.Contributors(); len(c) != 2 {
		t.Fatalf("contributors=%v", c)
	}
}

func TestFuse_EmptyIsHold(t *testing.T) {
	if got := (&Engine{}).Fuse(nil, models.RegimeUnknown, 0); got.Decision != models.DirectionHold {
		t.Fatalf("decision=%s", got.Decision)
	}
}
