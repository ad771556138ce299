package market

import "github.com/shopspring/decimal"

// This file is the Indicator Engine (spec.md §4.3): pure functions over
// []Candle, no internal caching, no NaN propagation. It is intentionally
// stdlib-only — DESIGN.md records why no third-party numerics library
// from the examples fit: the indicator set here is small, closed-form,
// and decimal-typed throughout (not []float64), so a generic TA library
// expecting float64 series would force lossy conversions at every call.

// closes extracts the close column, oldest first.
func closes(candles []Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// SMA is the simple moving average of the last `period` values; returns
// zero (neutral default) if there is insufficient history.
func SMA(values []decimal.Decimal, period int) decimal.Decimal {
	if len(values) < period || period <= 0 {
		return decimal.Zero
	}
	window := values[len(values)-period:]
	sum := decimal.Zero
	for _, v := range window {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// EMASeries returns the exponential moving average series for `period`,
// seeded by the SMA of the first `period` values: element 0 corresponds to
// values[period-1], so the result has len(values)-period+1 elements; nil
// if too short.
func EMASeries(values []decimal.Decimal, period int) []decimal.Decimal {
	if len(values) < period || period <= 0 {
		return nil
	}
	k := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(period + 1)))
	out := make([]decimal.Decimal, len(values))
	seed := SMA(values[:period], period)
	out[period-1] = seed
	prev := seed
	for i := period; i < len(values); i++ {
		ema := values[i].Sub(prev).Mul(k).Add(prev)
		out[i] = ema
		prev = ema
	}
	return out[period-1:]
}

// EMA returns the latest EMA(period) value, or zero if insufficient history.
func EMA(values []decimal.Decimal, period int) decimal.Decimal {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return decimal.Zero
	}
	return series[len(series)-1]
}

// RSI computes the latest RSI(period) from the simple averages of the last
// `period` gains and losses. Neutral default 50 when there isn't enough
// history or there was no price movement; 100 when there were gains but
// no losses.
func RSI(candles []Candle, period int) decimal.Decimal {
	if len(candles) < period+1 {
		return decimal.NewFromInt(50)
	}
	var gainSum, lossSum decimal.Decimal
	vals := closes(candles)
	for i := len(vals) - period; i < len(vals); i++ {
		diff := vals[i].Sub(vals[i-1])
		if diff.IsPositive() {
			gainSum = gainSum.Add(diff)
		} else {
			lossSum = lossSum.Add(diff.Abs())
		}
	}
	avgGain := gainSum.Div(decimal.NewFromInt(int64(period)))
	avgLoss := lossSum.Div(decimal.NewFromInt(int64(period)))
	if avgLoss.IsZero() {
		if avgGain.IsZero() {
			return decimal.NewFromInt(50)
		}
		return decimal.NewFromInt(100)
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// MACDResult holds the MACD line, signal line, and histogram.
type MACDResult struct {
	MACD      decimal.Decimal
	Signal    decimal.Decimal
	Histogram decimal.Decimal
}

// MACD computes MACD(fast, slow, signal) from closing prices; zero-valued
// result when there isn't enough history for the slow EMA.
func MACD(candles []Candle, fast, slow, signal int) MACDResult {
	vals := closes(candles)
	fastSeries := EMASeries(vals, fast)
	slowSeries := EMASeries(vals, slow)
	if len(fastSeries) == 0 || len(slowSeries) == 0 {
		return MACDResult{}
	}
	// align both series to the shorter (slow) tail
	offset := len(fastSeries) - len(slowSeries)
	if offset < 0 {
		offset = 0
	}
	macdLine := make([]decimal.Decimal, len(slowSeries))
	for i := range slowSeries {
		fi := i + offset
		if fi < 0 || fi >= len(fastSeries) {
			macdLine[i] = decimal.Zero
			continue
		}
		macdLine[i] = fastSeries[fi].Sub(slowSeries[i])
	}
	signalSeries := EMASeries(macdLine, signal)
	if len(signalSeries) == 0 {
		latest := macdLine[len(macdLine)-1]
		return MACDResult{MACD: latest, Signal: decimal.Zero, Histogram: latest}
	}
	latestMACD := macdLine[len(macdLine)-1]
	latestSignal := signalSeries[len(signalSeries)-1]
	return MACDResult{MACD: latestMACD, Signal: latestSignal, Histogram: latestMACD.Sub(latestSignal)}
}

// KDJResult holds the stochastic oscillator's K, D, and J lines.
type KDJResult struct{ K, D, J decimal.Decimal }

// KDJ computes KDJ(n, kPeriod, dPeriod) using the conventional smoothing
// (K/D seeded at 50). Neutral (50,50,50) when history is insufficient.
func KDJ(candles []Candle, n, kSmooth, dSmooth int) KDJResult {
	if len(candles) < n {
		return KDJResult{decimal.NewFromInt(50), decimal.NewFromInt(50), decimal.NewFromInt(50)}
	}
	k := decimal.NewFromInt(50)
	d := decimal.NewFromInt(50)
	kFactor := decimal.NewFromInt(int64(kSmooth - 1))
	kDenom := decimal.NewFromInt(int64(kSmooth))
	dFactor := decimal.NewFromInt(int64(dSmooth - 1))
	dDenom := decimal.NewFromInt(int64(dSmooth))

	for i := n - 1; i < len(candles); i++ {
		window := candles[i-n+1 : i+1]
		low, high := window[0].Low, window[0].High
		for _, c := range window {
			if c.Low.LessThan(low) {
				low = c.Low
			}
			if c.High.GreaterThan(high) {
				high = c.High
			}
		}
		var rsv decimal.Decimal
		spread := high.Sub(low)
		if spread.IsZero() {
			rsv = decimal.NewFromInt(50)
		} else {
			rsv = candles[i].Close.Sub(low).Div(spread).Mul(decimal.NewFromInt(100))
		}
		k = k.Mul(kFactor).Add(rsv).Div(kDenom)
		d = d.Mul(dFactor).Add(k).Div(dDenom)
	}
	j := decimal.NewFromInt(3).Mul(k).Sub(decimal.NewFromInt(2).Mul(d))
	return KDJResult{K: k, D: d, J: j}
}

// BollingerResult holds the middle/upper/lower bands.
type BollingerResult struct{ Mid, Upper, Lower decimal.Decimal }

// Bollinger computes Bollinger(period, numStdDev) bands on closing price.
func Bollinger(candles []Candle, period int, numStdDev decimal.Decimal) BollingerResult {
	vals := closes(candles)
	mid := SMA(vals, period)
	if mid.IsZero() || len(vals) < period {
		return BollingerResult{}
	}
	window := vals[len(vals)-period:]
	var sumSq decimal.Decimal
	for _, v := range window {
		diff := v.Sub(mid)
		sumSq = sumSq.Add(diff.Mul(diff))
	}
	variance := sumSq.Div(decimal.NewFromInt(int64(period)))
	stdDev := sqrtDecimal(variance)
	band := stdDev.Mul(numStdDev)
	return BollingerResult{Mid: mid, Upper: mid.Add(band), Lower: mid.Sub(band)}
}

// BandWidthPct is (upper-lower)/mid * 100, used by the Range-Market
// Detector; zero when mid is zero to avoid division by zero (spec.md §4.3).
func (b BollingerResult) BandWidthPct() decimal.Decimal {
	if b.Mid.IsZero() {
		return decimal.Zero
	}
	return b.Upper.Sub(b.Lower).Div(b.Mid).Mul(decimal.NewFromInt(100))
}

// ATR computes the Average True Range over `period` candles.
func ATR(candles []Candle, period int) decimal.Decimal {
	if len(candles) < period+1 {
		return decimal.Zero
	}
	var sum decimal.Decimal
	for i := len(candles) - period; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		tr1 := candles[i].High.Sub(candles[i].Low)
		tr2 := candles[i].High.Sub(prevClose).Abs()
		tr3 := candles[i].Low.Sub(prevClose).Abs()
		tr := tr1
		if tr2.GreaterThan(tr) {
			tr = tr2
		}
		if tr3.GreaterThan(tr) {
			tr = tr3
		}
		sum = sum.Add(tr)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// VolumeRatio is current_volume / SMA(20, volume); division by zero
// yields the neutral default 1.0 (spec.md §4.3).
func VolumeRatio(candles []Candle, period int) decimal.Decimal {
	if len(candles) == 0 {
		return decimal.NewFromInt(1)
	}
	volumes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		volumes[i] = c.Volume
	}
	avg := SMA(volumes, period)
	if avg.IsZero() {
		return decimal.NewFromInt(1)
	}
	return candles[len(candles)-1].Volume.Div(avg)
}

// sqrtDecimal computes a square root via Newton's method on
// decimal.Decimal, avoiding a float64 round-trip for the variance.
func sqrtDecimal(v decimal.Decimal) decimal.Decimal {
	if !v.IsPositive() {
		return decimal.Zero
	}
	x := v
	two := decimal.NewFromInt(2)
	for i := 0; i < 40; i++ {
		next := x.Add(v.Div(x)).Div(two)
		if next.Sub(x).Abs().LessThan(decimal.NewFromFloat(0.0000001)) {
			return next
		}
		x = next
	}
	return x
}
