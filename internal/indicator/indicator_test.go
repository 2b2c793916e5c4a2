package indicator

import (
	"math"
	"testing"

	"signalflow/internal/models"
)

func almost(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestSMAAndEMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := SMA(values, 5); got != 3 {
		t.Fatalf("sma=%v want 3", got)
	}
	ema := EMA(values, 3)
	if len(ema) != 3 {
		t.Fatalf("ema len=%d want 3", len(ema))
	}
	// seed 2, then 4*0.5+2*0.5=3, then 5*0.5+3*0.5=4
	if ema[0] != 2 || ema[1] != 3 || ema[2] != 4 {
		t.Fatalf("ema=%v", ema)
	}
	if SMA(values, 6) != 0 || EMA(values, 6) != nil {
		t.Fatalf("short input should be zero")
	}
}

func TestRSI_Extremes(t *testing.T) {
	up := make([]float64, 30)
	flat := make([]float64, 30)
	for i := range up {
		up[i] = float64(i + 1)
		flat[i] = 10
	}
	if got := RSI(up, 14); got != 100 {
		t.Fatalf("rsi up=%v want 100", got)
	}
	if got := RSI(flat, 14); got != 50 {
		t.Fatalf("rsi flat=%v want 50", got)
	}
}

func TestATR_ConstantRange(t *testing.T) {
	candles := make([]models.Candle, 20)
	for i := range candles {
		candles[i] = models.Candle{High: 102, Low: 98, Close: 100}
	}
	if got := ATR(candles, 14); !almost(got, 4, 1e-9) {
		t.Fatalf("atr=%v want 4", got)
	}
}

func TestBollinger_FlatSeriesHasZeroWidth(t *testing.T) {
	values := []float64{5, 5, 5, 5, 5}
	b := Bollinger(values, 5, 2)
	if b.Middle != 5 || b.Width() != 0 {
		t.Fatalf("band=%+v", b)
	}
	if b.PercentB(5) != 0.5 {
		t.Fatalf("percentB=%v", b.PercentB(5))
	}
}

func TestCorrelation(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{2, 4, 6, 8, 10}
	c := []float64{5, 4, 3, 2, 1}
	if got := Correlation(a, b); !almost(got, 1, 1e-9) {
		t.Fatalf("corr=%v want 1", got)
	}
	if got := Correlation(a, c); !almost(got, -1, 1e-9) {
		t.Fatalf("corr=%v want -1", got)
	}
}

func TestEfficiencyRatio(t *testing.T) {
	if got := EfficiencyRatio([]float64{1, 2, 3, 4}); got != 1 {
		t.Fatalf("er=%v want 1", got)
	}
	if got := EfficiencyRatio([]float64{1, 2, 1, 2, 1}); got != 0 {
		t.Fatalf("er=%v want 0", got)
	}
}

func TestSwingLevels(t *testing.T) {
	highs := []float64{1, 2, 5, 2, 0.8, 2, 1}
	candles := make([]models.Candle, len(highs))
	for i, h := range highs {
		candles[i] = models.Candle{High: h, Low: h - 0.5}
	}
	hs, ls := SwingLevels(candles, 2)
	if len(hs) != 1 || hs[0] != 5 {
		t.Fatalf("highs=%v", hs)
	}
	if len(ls) != 1 || !almost(ls[0], 0.3, 1e-9) {
		t.Fatalf("lows=%v", ls)
	}
}
