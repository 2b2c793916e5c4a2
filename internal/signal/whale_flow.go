package signal

import (
	"math"

	"signalflow/internal/indicator"
	"signalflow/internal/models"
)

// WhaleFlow treats a 15m volume spike with a dominant candle body as large
// participants pushing price in the body's direction.
type WhaleFlow struct {
	Lookback       int
	VolumeMultiple float64
	MinBody        float64
	StopATR        float64
	TakeATR        float64
}

func (d *WhaleFlow) Name() string { return "whale_flow" }

func (d *WhaleFlow) Detect(symbol string, snap models.MarketSnapshot) *models.Candidate {
	lookback := d.Lookback
	if lookback <= 0 {
		lookback = 20
	}
	mult := d.VolumeMultiple
	if mult <= 0 {
		mult = 2.5
	}
	minBody := d.MinBody
	if minBody <= 0 {
		minBody = 0.6
	}
	stopATR, takeATR := d.StopATR, d.TakeATR
	if stopATR <= 0 {
		stopATR = 1.5
	}
	if takeATR <= 0 {
		takeATR = 3
	}

	candles := snap.Candles(models.Timeframe15m)
	if len(candles) < lookback+1 || len(candles) < 16 {
		return nil
	}
	bar := last(candles)
	prior := candles[len(candles)-1-lookback : len(candles)-1]
	avg := indicator.Mean(indicator.Volumes(prior))
	if avg <= 0 {
		return nil
	}
	ratio := bar.Volume / avg
	if ratio < mult {
		return nil
	}
	rng := bar.High - bar.Low
	if rng <= 0 {
		return nil
	}
	body := math.Abs(bar.Close-bar.Open) / rng
	if body < minBody {
		return nil
	}
	dir := models.DirectionBuy
	if bar.Close < bar.Open {
		dir = models.DirectionSell
	}
	atr := indicator.ATR(candles, 14)
	if atr <= 0 {
		return nil
	}
	strength := 0.5*clamp01((ratio-mult)/mult) + 0.5*body
	stop, take := atrLevels(dir, bar.Close, atr, stopATR, takeATR)
	return candidate(symbol, d.Name(), models.Timeframe15m, dir, strength, bar.Close, stop, take,
		reason("volume_ratio", ratio, "body", body, "avg_volume", avg))
}
