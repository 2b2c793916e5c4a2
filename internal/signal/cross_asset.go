package signal

import (
	"math"

	"signalflow/internal/indicator"
	"signalflow/internal/models"
)

// CrossAsset expects a symbol that normally tracks the benchmark to catch up
// when the benchmark has moved and the symbol has not followed yet.
type CrossAsset struct {
	Bars         int
	Move         int
	MinCorr      float64
	MinBenchMove float64
	MaxLagRatio  float64
	StopATR      float64
	TakeATR      float64
}

func (d *CrossAsset) Name() string { return "cross_asset" }

func (d *CrossAsset) Detect(symbol string, snap models.MarketSnapshot) *models.Candidate {
	bars, move := d.Bars, d.Move
	if bars <= 0 {
		bars = 48
	}
	if move <= 0 {
		move = 4
	}
	minCorr, minBench, maxLag := d.MinCorr, d.MinBenchMove, d.MaxLagRatio
	if minCorr <= 0 {
		minCorr = 0.7
	}
	if minBench <= 0 {
		minBench = 0.015
	}
	if maxLag <= 0 {
		maxLag = 0.5
	}
	stopATR, takeATR := d.StopATR, d.TakeATR
	if stopATR <= 0 {
		stopATR = 1.5
	}
	if takeATR <= 0 {
		takeATR = 3
	}

	own := snap.Candles(models.Timeframe1h)
	bench := snap.BenchmarkCandles(models.Timeframe1h)
	need := bars + move + 1
	if len(own) < need || len(bench) < need {
		return nil
	}
	oc := indicator.Closes(own)
	bc := indicator.Closes(bench)

	// correlation is measured before the move so the lag itself does not hide it
	ow := oc[len(oc)-need : len(oc)-move]
	bw := bc[len(bc)-need : len(bc)-move]
	corr := indicator.Correlation(indicator.Returns(ow), indicator.Returns(bw))
	if corr < minCorr {
		return nil
	}

	benchMove := bc[len(bc)-1]/bc[len(bc)-1-move] - 1
	ownMove := oc[len(oc)-1]/oc[len(oc)-1-move] - 1
	if math.Abs(benchMove) < minBench {
		return nil
	}
	lag := ownMove / benchMove
	if lag > maxLag {
		return nil
	}
	dir := models.DirectionBuy
	if benchMove < 0 {
		dir = models.DirectionSell
	}
	atr := indicator.ATR(own, 14)
	if atr <= 0 {
		return nil
	}
	price := oc[len(oc)-1]
	strength := 0.5*corr + 0.5*clamp01(1-lag)
	stop, take := atrLevels(dir, price, atr, stopATR, takeATR)
	return candidate(symbol, d.Name(), models.Timeframe1h, dir, strength, price, stop, take,
		reason("corr", corr, "bench_move", benchMove, "own_move", ownMove, "lag", lag))
}
