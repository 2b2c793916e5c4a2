package signal

import (
	"math"

	"signalflow/internal/indicator"
	"signalflow/internal/models"
)

// TrendMomentum fires when the fast EMA leads the slow one on both 1h and 4h
// and 1h RSI confirms momentum without being stretched.
type TrendMomentum struct {
	Fast      int
	Slow      int
	RSIPeriod int
	StopATR   float64
	TakeATR   float64
}

func (d *TrendMomentum) Name() string { return "trend_momentum" }

func (d *TrendMomentum) params() (fast, slow, rsiPeriod int, stopATR, takeATR float64) {
	fast, slow, rsiPeriod = d.Fast, d.Slow, d.RSIPeriod
	if fast <= 0 {
		fast = 9
	}
	if slow <= fast {
		slow = 21
	}
	if rsiPeriod <= 0 {
		rsiPeriod = 14
	}
	stopATR, takeATR = d.StopATR, d.TakeATR
	if stopATR <= 0 {
		stopATR = 1.5
	}
	if takeATR <= 0 {
		takeATR = 3
	}
	return
}

func (d *TrendMomentum) Detect(symbol string, snap models.MarketSnapshot) *models.Candidate {
	fast, slow, rsiPeriod, stopATR, takeATR := d.params()
	h1 := snap.Candles(models.Timeframe1h)
	h4 := snap.Candles(models.Timeframe4h)
	if len(h1) < slow+rsiPeriod || len(h4) < slow+1 {
		return nil
	}
	c1, c4 := indicator.Closes(h1), indicator.Closes(h4)
	f1, s1 := indicator.EMALast(c1, fast), indicator.EMALast(c1, slow)
	f4, s4 := indicator.EMALast(c4, fast), indicator.EMALast(c4, slow)
	rsi := indicator.RSI(c1, rsiPeriod)
	price := c1[len(c1)-1]

	var dir models.Direction
	switch {
	case f1 > s1 && f4 > s4 && price > f1 && rsi >= 50 && rsi <= 70:
		dir = models.DirectionBuy
	case f1 < s1 && f4 < s4 && price < f1 && rsi >= 30 && rsi <= 50:
		dir = models.DirectionSell
	default:
		return nil
	}
	atr := indicator.ATR(h1, 14)
	if atr <= 0 || s1 <= 0 {
		return nil
	}
	gap := math.Abs(f1-s1) / s1
	strength := 0.4 + 0.3*clamp01(gap/0.01) + 0.3*clamp01(math.Abs(rsi-50)/20)
	stop, take := atrLevels(dir, price, atr, stopATR, takeATR)
	return candidate(symbol, d.Name(), models.Timeframe1h, dir, strength, price, stop, take,
		reason("ema_fast_1h", f1, "ema_slow_1h", s1, "ema_fast_4h", f4, "ema_slow_4h", s4, "rsi", rsi))
}
