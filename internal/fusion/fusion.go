// Package fusion merges detector candidates for one symbol into a single
// regime-weighted decision.
package fusion

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"signalflow/internal/config"
	"signalflow/internal/models"
)

type Engine struct {
	// Reliability is the prior per detector; missing detectors weigh 1.
	Reliability map[string]float64
	// Compatibility scales a detector's weight in a regime; missing entries are 1.
	Compatibility map[models.Regime]map[string]float64
	MinConfidence float64
}

type Contribution struct {
	Source    string
	Direction models.Direction
	Strength  float64
	Weight    float64
}

type Result struct {
	Symbol             string
	Decision           models.Direction
	AggregatedStrength float64
	Confidence         float64
	BuyScore           float64
	SellScore          float64
	Regime             models.Regime
	Entry              float64
	StopLoss           float64
	TakeProfit         float64
	Dominant           string
	Timeframe          models.Timeframe
	Contributions      []Contribution
	Reasoning          string
}

// Contributors lists the sources that voted for the decision.
func (r Result) Contributors() []string {
	out := make([]string, 0, len(r.Contributions))
	for _, c := range r.Contributions {
		if c.Direction == r.Decision && c.Weight > 0 {
			out = append(out, c.Source)
		}
	}
	return out
}

func New(cfg config.FusionConfig) *Engine {
	e := &Engine{
		Reliability:   map[string]float64{},
		Compatibility: map[models.Regime]map[string]float64{},
		MinConfidence: cfg.MinConfidence,
	}
	for k, v := range cfg.Reliability {
		e.Reliability[k] = v
	}
	for regime, row := range cfg.Compatibility {
		m := map[string]float64{}
		for k, v := range row {
			m[k] = v
		}
		e.Compatibility[models.Regime(regime)] = m
	}
	return e
}

// Weight is the reliability prior times the regime compatibility factor.
func (e *Engine) Weight(source string, regime models.Regime) float64 {
	w := 1.0
	if e == nil {
		return w
	}
	if v, ok := e.Reliability[source]; ok && v >= 0 {
		w = v
	}
	if row, ok := e.Compatibility[regime]; ok {
		if v, ok := row[source]; ok && v >= 0 {
			w *= v
		}
	}
	return w
}

// Fuse is deterministic: candidates are ordered before summation, so the
// result does not depend on the order detectors ran in. price, when positive,
// overrides the entry of the winning side.
func (e *Engine) Fuse(candidates []models.Candidate, regime models.Regime, price float64) Result {
	items := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Direction == models.DirectionBuy || c.Direction == models.DirectionSell {
			items = append(items, c)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		return a.Reason < b.Reason
	})

	res := Result{Decision: models.DirectionHold, Regime: regime}
	if len(items) > 0 {
		res.Symbol = items[0].Symbol
	}
	var buyWeight, sellWeight float64
	for _, c := range items {
		w := e.Weight(c.Source, regime)
		res.Contributions = append(res.Contributions, Contribution{Source: c.Source, Direction: c.Direction, Strength: c.Strength, Weight: w})
		if w <= 0 {
			continue
		}
		if c.Direction == models.DirectionBuy {
			res.BuyScore += w * c.Strength
			buyWeight += w
		} else {
			res.SellScore += w * c.Strength
			sellWeight += w
		}
	}

	total := res.BuyScore + res.SellScore
	if total > 0 {
		res.Confidence = math.Abs(res.BuyScore-res.SellScore) / total
	}
	var winner models.Direction
	switch {
	case res.BuyScore > res.SellScore:
		winner = models.DirectionBuy
		res.AggregatedStrength = res.BuyScore / buyWeight
	case res.SellScore > res.BuyScore:
		winner = models.DirectionSell
		res.AggregatedStrength = res.SellScore / sellWeight
	}
	if winner != "" && res.Confidence >= e.minConfidence() {
		res.Decision = winner
		e.levels(&res, items, regime, price)
	}
	res.Reasoning = reasoning(res)
	return res
}

func (e *Engine) minConfidence() float64 {
	if e == nil {
		return 0
	}
	return e.MinConfidence
}

// levels averages entry, stop and take of the winning side by contribution and
// picks the dominant contributor.
func (e *Engine) levels(res *Result, items []models.Candidate, regime models.Regime, price float64) {
	var sum, entry, stop, take, best float64
	for _, c := range items {
		if c.Direction != res.Decision {
			continue
		}
		contrib := e.Weight(c.Source, regime) * c.Strength
		if contrib <= 0 {
			continue
		}
		sum += contrib
		entry += contrib * c.Entry
		stop += contrib * (c.StopLoss - c.Entry)
		take += contrib * (c.TakeProfit - c.Entry)
		if contrib > best {
			best = contrib
			res.Dominant = c.Source
			res.Timeframe = c.Timeframe
		}
	}
	if sum <= 0 {
		return
	}
	res.Entry = entry / sum
	if price > 0 {
		res.Entry = price
	}
	// stop and take keep the averaged distance from entry
	res.StopLoss = res.Entry + stop/sum
	res.TakeProfit = res.Entry + take/sum
}

func reasoning(res Result) string {
	parts := make([]string, 0, len(res.Contributions)+2)
	parts = append(parts, "regime="+string(res.Regime))
	for _, c := range res.Contributions {
		parts = append(parts, fmt.Sprintf("%s:%s s=%.2f w=%.2f", c.Source, c.Direction, c.Strength, c.Weight))
	}
	parts = append(parts, fmt.Sprintf("buy=%.3f sell=%.3f conf=%.3f decision=%s", res.BuyScore, res.SellScore, res.Confidence, res.Decision))
	return strings.Join(parts, "; ")
}
