package signal

import (
	"sort"

	"signalflow/internal/indicator"
	"signalflow/internal/models"
)

// VolatilityBreakout looks for a Bollinger squeeze on 1h (band width in the
// lowest quantile of its lookback) resolved by a close outside the band.
type VolatilityBreakout struct {
	Period   int
	K        float64
	Lookback int
	Quantile float64
	StopATR  float64
	TakeATR  float64
}

func (d *VolatilityBreakout) Name() string { return "volatility_breakout" }

func (d *VolatilityBreakout) Detect(symbol string, snap models.MarketSnapshot) *models.Candidate {
	period, k, lookback, q := d.Period, d.K, d.Lookback, d.Quantile
	if period <= 1 {
		period = 20
	}
	if k <= 0 {
		k = 2
	}
	if lookback <= 0 {
		lookback = 100
	}
	if q <= 0 || q >= 1 {
		q = 0.2
	}
	stopATR, takeATR := d.StopATR, d.TakeATR
	if stopATR <= 0 {
		stopATR = 1
	}
	if takeATR <= 0 {
		takeATR = 2.5
	}

	candles := snap.Candles(models.Timeframe1h)
	if len(candles) < period+10 {
		return nil
	}
	closes := indicator.Closes(candles)
	widths := indicator.Tail(indicator.BollingerWidths(closes[:len(closes)-1], period, k), lookback)
	if len(widths) < 5 {
		return nil
	}
	prevWidth := widths[len(widths)-1]
	threshold := quantile(widths, q)
	if prevWidth > threshold {
		return nil
	}

	band := indicator.Bollinger(closes, period, k)
	price := closes[len(closes)-1]
	half := band.Upper - band.Middle
	if half <= 0 {
		return nil
	}
	var (
		dir    models.Direction
		excess float64
	)
	switch {
	case price > band.Upper:
		dir, excess = models.DirectionBuy, (price-band.Upper)/half
	case price < band.Lower:
		dir, excess = models.DirectionSell, (band.Lower-price)/half
	default:
		return nil
	}
	atr := indicator.ATR(candles, 14)
	if atr <= 0 {
		return nil
	}
	strength := 0.5 + 0.5*clamp01(excess)
	stop, take := atrLevels(dir, price, atr, stopATR, takeATR)
	return candidate(symbol, d.Name(), models.Timeframe1h, dir, strength, price, stop, take,
		reason("width", prevWidth, "squeeze_threshold", threshold, "upper", band.Upper, "lower", band.Lower))
}

func quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted[int(q*float64(len(sorted)-1))]
}
