// Package regime classifies the market condition a symbol trades in.
package regime

import (
	"fmt"

	"signalflow/internal/config"
	"signalflow/internal/indicator"
	"signalflow/internal/models"
)

type Classifier struct {
	Timeframe       models.Timeframe
	Fallback        models.Timeframe
	MinBars         int
	Lookback        int
	VolatileStdev   float64
	TrendEfficiency float64
}

// Assessment is the classification plus the statistics behind it.
type Assessment struct {
	Regime     models.Regime
	Timeframe  models.Timeframe
	Bars       int
	Volatility float64
	Efficiency float64
	NetMove    float64
}

func (a Assessment) String() string {
	return fmt.Sprintf("regime=%s tf=%s bars=%d vol=%.4f er=%.3f move=%.4f",
		a.Regime, a.Timeframe, a.Bars, a.Volatility, a.Efficiency, a.NetMove)
}

func New(cfg config.RegimeConfig) Classifier {
	return Classifier{
		Timeframe:       models.Timeframe(cfg.Timeframe),
		Fallback:        models.Timeframe1h,
		MinBars:         cfg.MinBars,
		Lookback:        cfg.Lookback,
		VolatileStdev:   cfg.VolatileStdev,
		TrendEfficiency: cfg.TrendEfficiency,
	}
}

func (c Classifier) Detect(snap models.MarketSnapshot) models.Regime {
	return c.Assess(snap).Regime
}

// Assess is deterministic in the candles of the regime timeframe (or the
// fallback when that frame is missing).
func (c Classifier) Assess(snap models.MarketSnapshot) Assessment {
	minBars, lookback := c.MinBars, c.Lookback
	if minBars <= 1 {
		minBars = 20
	}
	if lookback < minBars {
		lookback = minBars
	}
	volatile, trend := c.VolatileStdev, c.TrendEfficiency
	if volatile <= 0 {
		volatile = 0.035
	}
	if trend <= 0 {
		trend = 0.3
	}

	tf := c.Timeframe
	if tf == "" {
		tf = models.Timeframe4h
	}
	candles := snap.Candles(tf)
	if len(candles) < minBars && c.Fallback != "" {
		tf = c.Fallback
		candles = snap.Candles(tf)
	}
	out := Assessment{Regime: models.RegimeUnknown, Timeframe: tf, Bars: len(candles)}
	if len(candles) < minBars {
		return out
	}
	closes := indicator.Tail(indicator.Closes(candles), lookback)
	out.Bars = len(closes)
	out.Volatility = indicator.StdDev(indicator.Returns(closes))
	out.Efficiency = indicator.EfficiencyRatio(closes)
	if first := closes[0]; first > 0 {
		out.NetMove = closes[len(closes)-1]/first - 1
	}

	switch {
	case out.Volatility >= volatile:
		out.Regime = models.RegimeVolatile
	case out.Efficiency >= trend && out.NetMove > 0:
		out.Regime = models.RegimeTrendingUp
	case out.Efficiency >= trend && out.NetMove < 0:
		out.Regime = models.RegimeTrendingDown
	default:
		out.Regime = models.RegimeRanging
	}
	return out
}
