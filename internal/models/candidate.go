package models

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Sign is +1 for BUY, -1 for SELL and 0 otherwise.
func (d Direction) Sign() int {
	switch d {
	case DirectionBuy:
		return 1
	case DirectionSell:
		return -1
	default:
		return 0
	}
}

type Regime string

const (
	RegimeTrendingUp   Regime = "TRENDING_UP"
	RegimeTrendingDown Regime = "TRENDING_DOWN"
	RegimeRanging      Regime = "RANGING"
	RegimeVolatile     Regime = "VOLATILE"
	RegimeUnknown      Regime = "UNKNOWN"
)

type Tier string

const (
	TierLevel1 Tier = "LEVEL_1"
	TierLevel2 Tier = "LEVEL_2"
	TierLevel3 Tier = "LEVEL_3"
)

// Tiers lists tiers in dispatch priority order.
var Tiers = []Tier{TierLevel1, TierLevel2, TierLevel3}

// Rank orders tiers for sorting; LEVEL_1 is 1. Unknown tiers sort last.
func (t Tier) Rank() int {
	switch t {
	case TierLevel1:
		return 1
	case TierLevel2:
		return 2
	case TierLevel3:
		return 3
	default:
		return 99
	}
}

// Candidate is a single detector's proposal for one symbol.
type Candidate struct {
	Symbol     string
	Direction  Direction
	Source     string
	Timeframe  Timeframe
	Strength   float64
	Reason     string
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

// ScoredSignal is a fused decision that passed scoring and carries a tier.
type ScoredSignal struct {
	Symbol       string
	Direction    Direction
	Source       string
	Timeframe    Timeframe
	Entry        float64
	StopLoss     float64
	TakeProfit   float64
	Strength     float64
	Confidence   float64
	Regime       Regime
	Reasoning    string
	Contributors []string
	Score        int
	Tier         Tier
	RiskReward   float64
	Checks       map[string]int
}
