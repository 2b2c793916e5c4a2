package models

import "time"

type Timeframe string

const (
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Duration is the candle granularity. Unknown timeframes return 0.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

func (t Timeframe) Valid() bool { return t.Duration() > 0 }

// Candle is one OHLCV bar. Sequences are ordered oldest first.
type Candle struct {
	Symbol    string
	Timeframe Timeframe
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// MarketSnapshot bundles the candles a detector run sees for one symbol.
type MarketSnapshot struct {
	Symbol    string
	Primary   Timeframe
	Frames    map[Timeframe][]Candle
	Benchmark map[Timeframe][]Candle
	At        time.Time
}

func (s MarketSnapshot) Candles(tf Timeframe) []Candle {
	if s.Frames == nil {
		return nil
	}
	return s.Frames[tf]
}

func (s MarketSnapshot) BenchmarkCandles(tf Timeframe) []Candle {
	if s.Benchmark == nil {
		return nil
	}
	return s.Benchmark[tf]
}

// LastClose returns the latest close on the primary timeframe, or 0 when empty.
func (s MarketSnapshot) LastClose() float64 {
	items := s.Candles(s.Primary)
	if len(items) == 0 {
		return 0
	}
	return items[len(items)-1].Close
}
