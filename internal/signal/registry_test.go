package signal

import (
	"testing"

	"signalflow/internal/models"
)

type fixedDetector struct {
	name string
	out  *models.Candidate
}

func (d fixedDetector) Name() string { return d.name }
func (d fixedDetector) Detect(symbol string, snap models.MarketSnapshot) *models.Candidate {
	if d.out == nil {
		return nil
	}
	c := *d.out
	return &c
}

type panicDetector struct{}

func (panicDetector) Name() string { return "boom" }
func (panicDetector) Detect(string, models.MarketSnapshot) *models.Candidate {
	panic("index out of range")
}

func TestRegistry_IsolatesPanicsAndFillsDefaults(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(panicDetector{})
	r.Register(fixedDetector{name: "fixed", out: &models.Candidate{Direction: models.DirectionBuy, Strength: 0.5, Entry: 10}})
	r.Register(fixedDetector{name: "hold", out: &models.Candidate{Direction: models.DirectionHold, Entry: 10}})
	r.Register(fixedDetector{name: "silent"})

	got := r.Run("BTCUSDT", models.MarketSnapshot{})
	if len(got) != 1 {
		t.Fatalf("candidates=%d want 1", len(got))
	}
	if got[0].Source != "fixed" || got[0].Symbol != "BTCUSDT" {
		t.Fatalf("candidate=%+v", got[0])
	}

	stats := r.Stats()
	if len(stats) != 4 || stats[0].Name != "boom" || stats[0].Panics != 1 || stats[1].Emitted != 1 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestRegistry_ReplaceKeepsOrder(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(fixedDetector{name: "a"})
	r.Register(fixedDetector{name: "b"})
	r.Register(fixedDetector{name: "a", out: &models.Candidate{Direction: models.DirectionSell, Entry: 1}})
	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("names=%v", names)
	}
	if got := r.Run("X", models.MarketSnapshot{}); len(got) != 1 || got[0].Direction != models.DirectionSell {
		t.Fatalf("run=%+v", got)
	}
}

func TestDefault_RegistersSixModels(t *testing.T) {
	want := []string{"trend_momentum", "whale_flow", "volatility_breakout", "key_level", "sentiment_extreme", "cross_asset"}
	got := Default(nil).Names()
	if len(got) != len(want) {
		t.Fatalf("names=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names=%v", got)
		}
	}
}
