// Package scoring confirms fused decisions with independent checks and assigns
// a quality tier.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"signalflow/internal/config"
	"signalflow/internal/fusion"
	"signalflow/internal/indicator"
	"signalflow/internal/models"
)

var (
	ErrNotTradable    = errors.New("decision is not tradable")
	ErrBadLevels      = errors.New("stop or take on the wrong side of entry")
	ErrRiskReward     = errors.New("risk/reward below minimum")
	ErrBelowThreshold = errors.New("score below lowest tier")
)

const (
	CheckTrend      = "trend"
	CheckVolume     = "volume"
	CheckBand       = "band"
	CheckMultiFrame = "multi_frame"
	CheckRiskReward = "risk_reward"
)

type Enhancer struct {
	Config  config.ScoringConfig
	Primary models.Timeframe
}

func New(cfg config.ScoringConfig, primary models.Timeframe) *Enhancer {
	return &Enhancer{Config: cfg, Primary: primary}
}

// Enhance scores a fused decision. Discarded decisions return one of the
// package errors, wrapped with detail.
func (e *Enhancer) Enhance(res fusion.Result, snap models.MarketSnapshot) (*models.ScoredSignal, error) {
	dir := res.Decision
	if dir != models.DirectionBuy && dir != models.DirectionSell {
		return nil, ErrNotTradable
	}
	entry, stop, take := res.Entry, res.StopLoss, res.TakeProfit
	if entry <= 0 {
		return nil, fmt.Errorf("%w: entry=%v", ErrBadLevels, entry)
	}
	s := float64(dir.Sign())
	risk := s * (entry - stop)
	reward := s * (take - entry)
	if risk <= 0 || reward <= 0 {
		return nil, fmt.Errorf("%w: entry=%v stop=%v take=%v", ErrBadLevels, entry, stop, take)
	}
	rr := reward / risk
	minRR := e.Config.MinRiskReward
	if minRR <= 0 {
		minRR = 1.5
	}
	if rr < minRR {
		return nil, fmt.Errorf("%w: %.2f < %.2f", ErrRiskReward, rr, minRR)
	}

	primary := e.Primary
	if primary == "" {
		primary = snap.Primary
	}
	candles := snap.Candles(primary)
	w := e.Config.Weights
	checks := map[string]int{
		CheckTrend:      e.trend(dir, candles, w.Trend),
		CheckVolume:     e.volume(candles, w.Volume),
		CheckBand:       band(dir, candles, w.Band),
		CheckMultiFrame: multiFrame(dir, snap, w.MultiFrame),
		CheckRiskReward: riskReward(rr, minRR, w.RiskReward),
	}
	score := 0
	for _, v := range checks {
		score += v
	}
	tier, ok := e.Tier(score)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrBelowThreshold, score)
	}

	source := res.Dominant
	if source == "" {
		source = "fusion"
	}
	tf := res.Timeframe
	if tf == "" {
		tf = primary
	}
	return &models.ScoredSignal{
		Symbol:       snap.Symbol,
		Direction:    dir,
		Source:       source,
		Timeframe:    tf,
		Entry:        entry,
		StopLoss:     stop,
		TakeProfit:   take,
		Strength:     res.AggregatedStrength,
		Confidence:   res.Confidence,
		Regime:       res.Regime,
		Reasoning:    res.Reasoning,
		Contributors: res.Contributors(),
		Score:        score,
		Tier:         tier,
		RiskReward:   rr,
		Checks:       checks,
	}, nil
}

// Tier maps a score onto the descending thresholds.
func (e *Enhancer) Tier(score int) (models.Tier, bool) {
	switch {
	case score >= e.Config.Level1:
		return models.TierLevel1, true
	case score >= e.Config.Level2:
		return models.TierLevel2, true
	case score >= e.Config.Level3:
		return models.TierLevel3, true
	default:
		return "", false
	}
}

func (e *Enhancer) trend(dir models.Direction, candles []models.Candle, weight int) int {
	if aligned(dir, indicator.Closes(candles), 20, 50) {
		return weight
	}
	return 0
}

func (e *Enhancer) volume(candles []models.Candle, weight int) int {
	if len(candles) < 21 {
		return 0
	}
	threshold := e.Config.VolumeRatio
	if threshold <= 0 {
		threshold = 1.2
	}
	vols := indicator.Volumes(candles)
	avg := indicator.Mean(vols[len(vols)-21 : len(vols)-1])
	if avg <= 0 {
		return 0
	}
	if vols[len(vols)-1]/avg >= threshold {
		return weight
	}
	return 0
}

// band rewards entries that are not already stretched in the trade direction.
func band(dir models.Direction, candles []models.Candle, weight int) int {
	closes := indicator.Closes(candles)
	if len(closes) < 20 {
		return 0
	}
	pb := indicator.Bollinger(closes, 20, 2).PercentB(closes[len(closes)-1])
	if dir == models.DirectionSell {
		pb = 1 - pb
	}
	switch {
	case pb <= 0.8:
		return weight
	case pb <= 1:
		return weight / 2
	default:
		return 0
	}
}

func multiFrame(dir models.Direction, snap models.MarketSnapshot, weight int) int {
	agree, total := 0, 0
	for _, candles := range snap.Frames {
		closes := indicator.Closes(candles)
		fast, slow := 20, 50
		if len(closes) < slow {
			fast, slow = 9, 21
		}
		if len(closes) < slow {
			continue
		}
		total++
		if aligned(dir, closes, fast, slow) {
			agree++
		}
	}
	if total == 0 {
		return 0
	}
	if float64(agree)/float64(total) >= 2.0/3.0-1e-9 {
		return weight
	}
	return 0
}

func riskReward(rr, minRR float64, weight int) int {
	switch {
	case rr >= 2*minRR:
		return weight
	case rr >= minRR:
		return weight / 2
	default:
		return 0
	}
}

func aligned(dir models.Direction, closes []float64, fast, slow int) bool {
	if len(closes) < slow {
		return false
	}
	f, s := indicator.EMALast(closes, fast), indicator.EMALast(closes, slow)
	if math.IsNaN(f) || math.IsNaN(s) || f == s {
		return false
	}
	return (f > s) == (dir == models.DirectionBuy)
}
