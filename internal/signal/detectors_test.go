package signal

import (
	"math"
	"testing"

	"signalflow/internal/models"
)

// bars builds candles from closes; each bar opens at the previous close.
func bars(closes []float64, volume float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		out[i] = models.Candle{
			Open:   open,
			Close:  c,
			High:   math.Max(open, c) + 0.5,
			Low:    math.Min(open, c) - 0.5,
			Volume: volume,
		}
	}
	return out
}

func walk(start float64, n int, steps ...float64) []float64 {
	out := make([]float64, n)
	out[0] = start
	for i := 1; i < n; i++ {
		out[i] = out[i-1] + steps[(i-1)%len(steps)]
	}
	return out
}

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func snapshot(frames map[models.Timeframe][]models.Candle) models.MarketSnapshot {
	return models.MarketSnapshot{Symbol: "TESTUSDT", Primary: models.Timeframe1h, Frames: frames}
}

func checkLevels(t *testing.T, c *models.Candidate, dir models.Direction) {
	t.Helper()
	if c == nil {
		t.Fatalf("no candidate, want %s", dir)
	}
	if c.Direction != dir {
		t.Fatalf("direction=%s want %s", c.Direction, dir)
	}
	if c.Strength <= 0 || c.Strength > 1 {
		t.Fatalf("strength=%v out of range", c.Strength)
	}
	if dir == models.DirectionBuy && !(c.StopLoss < c.Entry && c.TakeProfit > c.Entry) {
		t.Fatalf("buy levels entry=%v stop=%v take=%v", c.Entry, c.StopLoss, c.TakeProfit)
	}
	if dir == models.DirectionSell && !(c.StopLoss > c.Entry && c.TakeProfit < c.Entry) {
		t.Fatalf("sell levels entry=%v stop=%v take=%v", c.Entry, c.StopLoss, c.TakeProfit)
	}
	if c.Reason == "" {
		t.Fatalf("empty reason")
	}
}

func TestTrendMomentum(t *testing.T) {
	d := &TrendMomentum{}
	up := walk(100, 80, 3, -2)
	got := d.Detect("BTCUSDT", snapshot(map[models.Timeframe][]models.Candle{
		models.Timeframe1h: bars(up, 100),
		models.Timeframe4h: bars(up, 100),
	}))
	checkLevels(t, got, models.DirectionBuy)

	down := walk(300, 80, -3, 2)
	got = d.Detect("BTCUSDT", snapshot(map[models.Timeframe][]models.Candle{
		models.Timeframe1h: bars(down, 100),
		models.Timeframe4h: bars(down, 100),
	}))
	checkLevels(t, got, models.DirectionSell)

	still := bars(flat(100, 80), 100)
	if got := d.Detect("BTCUSDT", snapshot(map[models.Timeframe][]models.Candle{
		models.Timeframe1h: still,
		models.Timeframe4h: still,
	})); got != nil {
		t.Fatalf("flat market produced %+v", got)
	}
}

func TestWhaleFlow(t *testing.T) {
	candles := bars(flat(100, 30), 100)
	spike := models.Candle{Open: 100, Close: 104, High: 104.5, Low: 99.8, Volume: 400}
	got := (&WhaleFlow{}).Detect("ETHUSDT", snapshot(map[models.Timeframe][]models.Candle{
		models.Timeframe15m: append(candles, spike),
	}))
	checkLevels(t, got, models.DirectionBuy)

	quiet := spike
	quiet.Volume = 150
	if got := (&WhaleFlow{}).Detect("ETHUSDT", snapshot(map[models.Timeframe][]models.Candle{
		models.Timeframe15m: append(bars(flat(100, 30), 100), quiet),
	})); got != nil {
		t.Fatalf("ordinary volume produced %+v", got)
	}
}

func TestVolatilityBreakout(t *testing.T) {
	closes := make([]float64, 0, 120)
	for i := 0; i < 80; i++ {
		closes = append(closes, 100+5*math.Pow(-1, float64(i)))
	}
	closes = append(closes, flat(100, 39)...)
	closes = append(closes, 103)
	got := (&VolatilityBreakout{}).Detect("SOLUSDT", snapshot(map[models.Timeframe][]models.Candle{
		models.Timeframe1h: bars(closes, 100),
	}))
	checkLevels(t, got, models.DirectionBuy)

	inside := append(append([]float64{}, closes[:119]...), 100)
	if got := (&VolatilityBreakout{}).Detect("SOLUSDT", snapshot(map[models.Timeframe][]models.Candle{
		models.Timeframe1h: bars(inside, 100),
	})); got != nil {
		t.Fatalf("close inside band produced %+v", got)
	}
}

func TestKeyLevel_SupportRejection(t *testing.T) {
	lows := []float64{100, 99, 97, 95, 97, 99, 100, 101, 102}
	h4 := make([]models.Candle, len(lows))
	for i, l := range lows {
		h4[i] = models.Candle{Open: l + 1, Close: l + 1, High: l + 2, Low: l}
	}
	h1 := bars(flat(100, 20), 100)
	h1 = append(h1, models.Candle{Open: 99.8, Close: 100, High: 100.2, Low: 95.1, Volume: 100})
	got := (&KeyLevel{}).Detect("BNBUSDT", snapshot(map[models.Timeframe][]models.Candle{
		models.Timeframe4h: h4,
		models.Timeframe1h: h1,
	}))
	checkLevels(t, got, models.DirectionBuy)
	if got.StopLoss >= 95 {
		t.Fatalf("stop=%v should sit below the level", got.StopLoss)
	}
}

func TestSentimentExtreme_Oversold(t *testing.T) {
	closes := append(flat(100, 40), 98, 96, 94, 92, 90, 88)
	got := (&SentimentExtreme{}).Detect("XRPUSDT", snapshot(map[models.Timeframe][]models.Candle{
		models.Timeframe1h: bars(closes, 100),
	}))
	checkLevels(t, got, models.DirectionBuy)
	if math.Abs(got.TakeProfit-97.9) > 1e-9 {
		t.Fatalf("take=%v want the 20-bar mean 97.9", got.TakeProfit)
	}
}

func TestCrossAsset_Catchup(t *testing.T) {
	n := 80
	bench := make([]float64, n)
	own := make([]float64, n)
	bench[0], own[0] = 100, 50
	for i := 1; i < n; i++ {
		r := 0.004 * float64((i*7)%5-2)
		ro := 1.1 * r
		if i >= n-4 {
			r, ro = 0.005, 0
		}
		bench[i] = bench[i-1] * (1 + r)
		own[i] = own[i-1] * (1 + ro)
	}
	snap := snapshot(map[models.Timeframe][]models.Candle{models.Timeframe1h: bars(own, 100)})
	snap.Benchmark = map[models.Timeframe][]models.Candle{models.Timeframe1h: bars(bench, 100)}
	got := (&CrossAsset{}).Detect("ETHUSDT", snap)
	checkLevels(t, got, models.DirectionBuy)

	snap.Benchmark = nil
	if got := (&CrossAsset{}).Detect("ETHUSDT", snap); got != nil {
		t.Fatalf("missing benchmark produced %+v", got)
	}
}

func TestReasonFormat(t *testing.T) {
	got := reason("rsi", 24.5, "touches", 2, "tf", models.Timeframe1h)
	if got != "rsi=24.5000;touches=2;tf=1h" {
		t.Fatalf("reason=%q", got)
	}
}
