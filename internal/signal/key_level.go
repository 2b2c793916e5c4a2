package signal

import (
	"math"

	"signalflow/internal/indicator"
	"signalflow/internal/models"
)

// KeyLevel finds swing levels on 4h and fires when the latest 1h bar probes
// one and is rejected with a long wick.
type KeyLevel struct {
	Wing      int
	Tolerance float64
	MinWick   float64
	StopATR   float64
	Reward    float64
}

func (d *KeyLevel) Name() string { return "key_level" }

type levelHit struct {
	dir   models.Direction
	level float64
	wick  float64
}

func (d *KeyLevel) Detect(symbol string, snap models.MarketSnapshot) *models.Candidate {
	wing, tol, minWick := d.Wing, d.Tolerance, d.MinWick
	if wing <= 0 {
		wing = 2
	}
	if tol <= 0 {
		tol = 0.003
	}
	if minWick <= 0 {
		minWick = 0.5
	}
	stopATR, reward := d.StopATR, d.Reward
	if stopATR <= 0 {
		stopATR = 0.5
	}
	if reward <= 0 {
		reward = 2
	}

	h4 := snap.Candles(models.Timeframe4h)
	h1 := snap.Candles(models.Timeframe1h)
	if len(h1) < 16 {
		return nil
	}
	highs, lows := indicator.SwingLevels(h4, wing)
	levels := append(append([]float64{}, highs...), lows...)
	if len(levels) == 0 {
		return nil
	}
	bar := last(h1)
	rng := bar.High - bar.Low
	if rng <= 0 {
		return nil
	}
	lowerWick := (math.Min(bar.Open, bar.Close) - bar.Low) / rng
	upperWick := (bar.High - math.Max(bar.Open, bar.Close)) / rng

	var best *levelHit
	for _, lvl := range levels {
		if lvl <= 0 {
			continue
		}
		var hit *levelHit
		switch {
		case bar.Low <= lvl*(1+tol) && bar.Close > lvl && lowerWick >= minWick:
			hit = &levelHit{dir: models.DirectionBuy, level: lvl, wick: lowerWick}
		case bar.High >= lvl*(1-tol) && bar.Close < lvl && upperWick >= minWick:
			hit = &levelHit{dir: models.DirectionSell, level: lvl, wick: upperWick}
		default:
			continue
		}
		if best == nil || probeDistance(bar, *hit) < probeDistance(bar, *best) {
			best = hit
		}
	}
	if best == nil {
		return nil
	}
	touches := 0
	for _, lvl := range levels {
		if math.Abs(lvl-best.level) <= best.level*tol {
			touches++
		}
	}
	atr := indicator.ATR(h1, 14)
	if atr <= 0 {
		return nil
	}
	entry := bar.Close
	var stop, take float64
	if best.dir == models.DirectionBuy {
		stop = math.Min(bar.Low, best.level) - stopATR*atr
		take = entry + reward*(entry-stop)
	} else {
		stop = math.Max(bar.High, best.level) + stopATR*atr
		take = entry - reward*(stop-entry)
	}
	strength := 0.3 + 0.5*best.wick + 0.2*clamp01(float64(touches-1)/2)
	return candidate(symbol, d.Name(), models.Timeframe1h, best.dir, strength, entry, stop, take,
		reason("level", best.level, "wick", best.wick, "touches", touches))
}

func probeDistance(bar models.Candle, h levelHit) float64 {
	if h.dir == models.DirectionBuy {
		return math.Abs(bar.Low - h.level)
	}
	return math.Abs(bar.High - h.level)
}
