package signal

import (
	"math"

	"signalflow/internal/indicator"
	"signalflow/internal/models"
)

// SentimentExtreme fades crowd extremes: deeply oversold or overbought 1h RSI
// together with price stretched well away from its mean. Target is the mean.
type SentimentExtreme struct {
	RSIPeriod  int
	Oversold   float64
	Overbought float64
	SMAPeriod  int
	StretchATR float64
	StopATR    float64
}

func (d *SentimentExtreme) Name() string { return "sentiment_extreme" }

func (d *SentimentExtreme) Detect(symbol string, snap models.MarketSnapshot) *models.Candidate {
	rsiPeriod, smaPeriod := d.RSIPeriod, d.SMAPeriod
	if rsiPeriod <= 0 {
		rsiPeriod = 14
	}
	if smaPeriod <= 0 {
		smaPeriod = 20
	}
	oversold, overbought := d.Oversold, d.Overbought
	if oversold <= 0 {
		oversold = 25
	}
	if overbought <= 0 {
		overbought = 75
	}
	stretchMin, stopATR := d.StretchATR, d.StopATR
	if stretchMin <= 0 {
		stretchMin = 2
	}
	if stopATR <= 0 {
		stopATR = 1
	}

	candles := snap.Candles(models.Timeframe1h)
	if len(candles) <= rsiPeriod || len(candles) < smaPeriod || len(candles) < 16 {
		return nil
	}
	closes := indicator.Closes(candles)
	price := closes[len(closes)-1]
	rsi := indicator.RSI(closes, rsiPeriod)
	sma := indicator.SMA(closes, smaPeriod)
	atr := indicator.ATR(candles, 14)
	if atr <= 0 {
		return nil
	}
	stretch := (price - sma) / atr

	var (
		dir     models.Direction
		rsiEdge float64
	)
	switch {
	case rsi <= oversold && stretch <= -stretchMin:
		dir, rsiEdge = models.DirectionBuy, (oversold-rsi)/oversold
	case rsi >= overbought && stretch >= stretchMin:
		dir, rsiEdge = models.DirectionSell, (rsi-overbought)/(100-overbought)
	default:
		return nil
	}
	strength := 0.4 + 0.4*clamp01(rsiEdge) + 0.2*clamp01((math.Abs(stretch)-stretchMin)/stretchMin)
	stop := price - float64(dir.Sign())*stopATR*atr
	return candidate(symbol, d.Name(), models.Timeframe1h, dir, strength, price, stop, sma,
		reason("rsi", rsi, "sma", sma, "stretch_atr", stretch))
}
