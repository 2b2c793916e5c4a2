package signal

import (
	"math"
	"strconv"
	"strings"

	"signalflow/internal/indicator"
	"signalflow/internal/models"
)

// Detector is one independent detection model. Detect must be pure given the
// snapshot and returns nil when the model has nothing to say.
type Detector interface {
	Name() string
	Detect(symbol string, snap models.MarketSnapshot) *models.Candidate
}

// reason renders key/value pairs as "k=v;k=v".
func reason(kv ...any) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(';')
		}
		b.WriteString(kv[i].(string))
		b.WriteByte('=')
		switch v := kv[i+1].(type) {
		case float64:
			b.WriteString(strconv.FormatFloat(v, 'f', 4, 64))
		case int:
			b.WriteString(strconv.Itoa(v))
		case string:
			b.WriteString(v)
		case models.Timeframe:
			b.WriteString(string(v))
		case models.Direction:
			b.WriteString(string(v))
		}
	}
	return b.String()
}

// atrLevels places stop and take at multiples of atr away from entry.
func atrLevels(dir models.Direction, entry, atr, stopMult, takeMult float64) (stop, take float64) {
	s := float64(dir.Sign())
	return entry - s*stopMult*atr, entry + s*takeMult*atr
}

func candidate(symbol, source string, tf models.Timeframe, dir models.Direction, strength, entry, stop, take float64, why string) *models.Candidate {
	if entry <= 0 || math.IsNaN(strength) {
		return nil
	}
	return &models.Candidate{
		Symbol:     symbol,
		Direction:  dir,
		Source:     source,
		Timeframe:  tf,
		Strength:   clamp01(strength),
		Reason:     why,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: take,
	}
}

var clamp01 = indicator.Clamp01

func last(candles []models.Candle) models.Candle {
	if len(candles) == 0 {
		return models.Candle{}
	}
	return candles[len(candles)-1]
}
