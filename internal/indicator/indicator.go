// Package indicator implements the price statistics shared by detectors,
// the regime classifier and the scorer. Inputs are ordered oldest first and
// every function returns a zero value instead of panicking on short input.
package indicator

import (
	"math"

	"signalflow/internal/models"
)

func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func Volumes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev is the sample standard deviation.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := Mean(values)
	acc := 0.0
	for _, v := range values {
		d := v - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(n-1))
}

func Tail(values []float64, n int) []float64 {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

// SMA returns the simple average of the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	return Mean(values[len(values)-period:])
}

// EMA returns the exponential moving average series seeded with the SMA of the
// first period values. The result has len(values)-period+1 points.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)
	prev := Mean(values[:period])
	out = append(out, prev)
	for _, v := range values[period:] {
		prev = v*k + prev*(1-k)
		out = append(out, prev)
	}
	return out
}

func EMALast(values []float64, period int) float64 {
	series := EMA(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// RSI uses Wilder smoothing. A flat series reads 50.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) <= period {
		return 0
	}
	gain, loss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgGain == 0 && avgLoss == 0 {
		return 50
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR is the Wilder average true range over period bars.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) <= period {
		return 0
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1]
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))
		trs = append(trs, tr)
	}
	atr := Mean(trs[:period])
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

type Band struct {
	Middle float64
	Upper  float64
	Lower  float64
}

// Width is (upper-lower)/middle.
func (b Band) Width() float64 {
	if b.Middle == 0 {
		return 0
	}
	return (b.Upper - b.Lower) / b.Middle
}

// PercentB locates price inside the band: 0 at lower, 1 at upper.
func (b Band) PercentB(price float64) float64 {
	span := b.Upper - b.Lower
	if span == 0 {
		return 0.5
	}
	return (price - b.Lower) / span
}

func Bollinger(values []float64, period int, k float64) Band {
	if period <= 1 || len(values) < period {
		return Band{}
	}
	window := values[len(values)-period:]
	mid := Mean(window)
	sd := populationStdDev(window, mid)
	return Band{Middle: mid, Upper: mid + k*sd, Lower: mid - k*sd}
}

// BollingerWidths returns the band width at every bar from period-1 onward.
func BollingerWidths(values []float64, period int, k float64) []float64 {
	if period <= 1 || len(values) < period {
		return nil
	}
	out := make([]float64, 0, len(values)-period+1)
	for end := period; end <= len(values); end++ {
		out = append(out, Bollinger(values[:end], period, k).Width())
	}
	return out
}

func populationStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	acc := 0.0
	for _, v := range values {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(values)))
}

// Returns are simple bar-to-bar returns; non-positive prices contribute 0.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// LogReturns computes ln(C_t / C_{t-1}).
func LogReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 || values[i] <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(values[i]/values[i-1]))
	}
	return out
}

// Correlation is the Pearson coefficient over the common tail of a and b.
func Correlation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 3 {
		return 0
	}
	a, b = a[len(a)-n:], b[len(b)-n:]
	ma, mb := Mean(a), Mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

// EfficiencyRatio is |net move| / path length over values, in [0,1].
func EfficiencyRatio(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	path := 0.0
	for i := 1; i < len(values); i++ {
		path += math.Abs(values[i] - values[i-1])
	}
	if path == 0 {
		return 0
	}
	return math.Abs(values[len(values)-1]-values[0]) / path
}

// SwingLevels returns pivot highs and lows: bars whose high (low) is the
// extreme of the wing bars on either side.
func SwingLevels(candles []models.Candle, wing int) (highs, lows []float64) {
	if wing <= 0 || len(candles) < 2*wing+1 {
		return nil, nil
	}
	for i := wing; i < len(candles)-wing; i++ {
		isHigh, isLow := true, true
		for j := i - wing; j <= i+wing; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, candles[i].High)
		}
		if isLow {
			lows = append(lows, candles[i].Low)
		}
	}
	return highs, lows
}

func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
