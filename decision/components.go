package decision

import (
	"github.com/shopspring/decimal"

	"ApexCore/market"
	"ApexCore/store"
)

// Component names are the enumeration spec.md §9 asks for in place of the
// source's dict-keyed dynamic dispatch. Each name doubles as the
// signal_scoring_weights primary key and as a fingerprint token.
const (
	CompBreakoutStrong     = "breakout_strong"
	CompPosition72hLong    = "position_72h_low"
	CompPosition72hShort   = "position_72h_high"
	CompMomentum24hBull    = "momentum_24h_bull"
	CompMomentum24hBear    = "momentum_24h_bear"
	CompTrend1hBull        = "trend_1h_bull"
	CompTrend1hBear        = "trend_1h_bear"
	CompTrend1dBull        = "trend_1d_bull"
	CompTrend1dBear        = "trend_1d_bear"
	CompVolatilityHigh     = "volatility_high"
	CompConsecutive10hBull = "consecutive_10h_bull"
	CompConsecutive10hBear = "consecutive_10h_bear"
	CompVolumePowerDual    = "volume_power_dual"
	CompBreakoutThroughHi  = "breakout_through_high"
	CompBreakoutThroughLo  = "breakdown_through_low"
)

// longOnly and shortOnly list the components that are semantically
// incompatible with SHORT and LONG respectively — consulted by the
// direction-contradiction filter (spec.md §4.6.2).
var longOnly = map[string]bool{
	CompPosition72hLong: true, CompMomentum24hBull: true, CompTrend1hBull: true, CompTrend1dBull: true,
	CompConsecutive10hBull: true, CompBreakoutThroughHi: true,
}
var shortOnly = map[string]bool{
	CompPosition72hShort: true, CompMomentum24hBear: true, CompTrend1hBear: true, CompTrend1dBear: true,
	CompConsecutive10hBear: true, CompBreakoutThroughLo: true,
}

// opposesSide reports whether component is semantically opposite to side.
func opposesSide(component string, side store.Side) bool {
	if side == store.Long {
		return shortOnly[component]
	}
	return longOnly[component]
}

// contribution is one scoring component's weighted vote.
type contribution struct {
	Component string
	Side      store.Side
	Score     decimal.Decimal
}

// weighted applies the (component, side) weight from the snapshot.
func weighted(weights map[string]store.ScoringWeight, component string, side store.Side, base decimal.Decimal) decimal.Decimal {
	w, ok := weights[component]
	if !ok {
		return decimal.Zero
	}
	factor := w.WeightLong
	if side == store.Short {
		factor = w.WeightShort
	}
	return base.Mul(factor)
}

// symbolFrame bundles the multi-timeframe candle data and derived stats
// the component functions operate on.
type symbolFrame struct {
	Daily    []market.Candle // >= 30
	Hourly   []market.Candle // >= 72
	M15      []market.Candle // >= 48
	Price    decimal.Decimal
}

// breakoutStrong is the highest-priority, exclusive component (spec.md
// §4.6): last 15m candle breaks the 24h high/low by >= 0.5%, 15m move
// >= 0.5%, volume ratio > 2x 20-bar average.
func breakoutStrong(f symbolFrame) (contribution, string, decimal.Decimal, bool) {
	if len(f.M15) < 2 || len(f.Hourly) < 24 {
		return contribution{}, "", decimal.Zero, false
	}
	last := f.M15[len(f.M15)-1]
	prev := f.M15[len(f.M15)-2]
	if prev.Close.IsZero() {
		return contribution{}, "", decimal.Zero, false
	}
	move15m := last.Close.Sub(prev.Close).Div(prev.Close).Mul(decimal.NewFromInt(100))
	volRatio := market.VolumeRatio(f.M15, 20)

	high24h, low24h := rollingHighLow(f.Hourly[len(f.Hourly)-24:])

	breaksHigh := !high24h.IsZero() && last.Close.Sub(high24h).Div(high24h).Mul(decimal.NewFromInt(100)).GreaterThanOrEqual(decimal.NewFromFloat(0.5))
	breaksLow := !low24h.IsZero() && low24h.Sub(last.Close).Div(low24h).Mul(decimal.NewFromInt(100)).GreaterThanOrEqual(decimal.NewFromFloat(0.5))

	strongVolume := volRatio.GreaterThan(decimal.NewFromInt(2))
	strongMove := move15m.Abs().GreaterThanOrEqual(decimal.NewFromFloat(0.5))

	switch {
	case breaksHigh && strongMove && move15m.IsPositive() && strongVolume:
		return contribution{Component: CompBreakoutStrong, Side: store.Long, Score: decimal.NewFromInt(50)}, "anchor_high", high24h, true
	case breaksLow && strongMove && move15m.IsNegative() && strongVolume:
		return contribution{Component: CompBreakoutStrong, Side: store.Short, Score: decimal.NewFromInt(50)}, "anchor_low", low24h, true
	}
	return contribution{}, "", decimal.Zero, false
}

func rollingHighLow(candles []market.Candle) (high, low decimal.Decimal) {
	if len(candles) == 0 {
		return decimal.Zero, decimal.Zero
	}
	high, low = candles[0].High, candles[0].Low
	for _, c := range candles {
		if c.High.GreaterThan(high) {
			high = c.High
		}
		if c.Low.LessThan(low) {
			low = c.Low
		}
	}
	return high, low
}

// position72hRange scores based on where price sits in the 72h range:
// <30% tilts LONG, >70% tilts SHORT; the middle band (30-70%) contributes
// nothing to either side.
func position72hRange(f symbolFrame, weights map[string]store.ScoringWeight) []contribution {
	window := lastNHourly(f.Hourly, 72)
	if len(window) < 24 {
		return nil
	}
	high, low := rollingHighLow(window)
	spread := high.Sub(low)
	if spread.IsZero() {
		return nil
	}
	pos := f.Price.Sub(low).Div(spread).Mul(decimal.NewFromInt(100))

	switch {
	case pos.LessThan(decimal.NewFromInt(30)):
		return []contribution{{Component: CompPosition72hLong, Side: store.Long, Score: weighted(weights, CompPosition72hLong, store.Long, decimal.NewFromInt(15))}}
	case pos.GreaterThan(decimal.NewFromInt(70)):
		return []contribution{{Component: CompPosition72hShort, Side: store.Short, Score: weighted(weights, CompPosition72hShort, store.Short, decimal.NewFromInt(15))}}
	default:
		return nil
	}
}

func lastNHourly(candles []market.Candle, n int) []market.Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

// momentum24h: |change| > 3% tilts the corresponding side.
func momentum24h(f symbolFrame, weights map[string]store.ScoringWeight) []contribution {
	window := lastNHourly(f.Hourly, 24)
	if len(window) < 24 {
		return nil
	}
	first := window[0].Close
	if first.IsZero() {
		return nil
	}
	changePct := f.Price.Sub(first).Div(first).Mul(decimal.NewFromInt(100))
	if changePct.Abs().LessThanOrEqual(decimal.NewFromInt(3)) {
		return nil
	}
	if changePct.IsPositive() {
		return []contribution{{Component: CompMomentum24hBull, Side: store.Long, Score: weighted(weights, CompMomentum24hBull, store.Long, decimal.NewFromInt(12))}}
	}
	return []contribution{{Component: CompMomentum24hBear, Side: store.Short, Score: weighted(weights, CompMomentum24hBear, store.Short, decimal.NewFromInt(12))}}
}

// trend1h: count bullish vs bearish of last 48 candles; strong majority
// tilts the matching side.
func trend1h(f symbolFrame, weights map[string]store.ScoringWeight) []contribution {
	window := lastNHourly(f.Hourly, 48)
	if len(window) < 48 {
		return nil
	}
	bull, bear := countDirectional(window)
	total := bull + bear
	if total == 0 {
		return nil
	}
	majority := decimal.NewFromInt(int64(bull)).Div(decimal.NewFromInt(int64(total)))
	switch {
	case majority.GreaterThanOrEqual(decimal.NewFromFloat(0.65)):
		return []contribution{{Component: CompTrend1hBull, Side: store.Long, Score: weighted(weights, CompTrend1hBull, store.Long, decimal.NewFromInt(10))}}
	case majority.LessThanOrEqual(decimal.NewFromFloat(0.35)):
		return []contribution{{Component: CompTrend1hBear, Side: store.Short, Score: weighted(weights, CompTrend1hBear, store.Short, decimal.NewFromInt(10))}}
	}
	return nil
}

// trend1d mirrors trend1h on daily candles, used by the timeframe-
// consistency filter (neutral 1d is allowed).
func trend1d(f symbolFrame) (string, bool) {
	if len(f.Daily) < 30 {
		return "", false
	}
	bull, bear := countDirectional(f.Daily)
	total := bull + bear
	if total == 0 {
		return "", false
	}
	majority := decimal.NewFromInt(int64(bull)).Div(decimal.NewFromInt(int64(total)))
	switch {
	case majority.GreaterThanOrEqual(decimal.NewFromFloat(0.65)):
		return CompTrend1dBull, true
	case majority.LessThanOrEqual(decimal.NewFromFloat(0.35)):
		return CompTrend1dBear, true
	}
	return "", false
}

func countDirectional(candles []market.Candle) (bull, bear int) {
	for i := 1; i < len(candles); i++ {
		if candles[i].Close.GreaterThan(candles[i-1].Close) {
			bull++
		} else if candles[i].Close.LessThan(candles[i-1].Close) {
			bear++
		}
	}
	return bull, bear
}

// volatility24h: (24h high-low / price) > 5% gives an equal bonus to both
// sides (it doesn't pick a direction on its own).
func volatility24h(f symbolFrame, weights map[string]store.ScoringWeight) ([]contribution, bool) {
	window := lastNHourly(f.Hourly, 24)
	if len(window) < 24 || f.Price.IsZero() {
		return nil, false
	}
	high, low := rollingHighLow(window)
	ratio := high.Sub(low).Div(f.Price).Mul(decimal.NewFromInt(100))
	if ratio.LessThanOrEqual(decimal.NewFromInt(5)) {
		return nil, false
	}
	return []contribution{
		{Component: CompVolatilityHigh, Side: store.Long, Score: weighted(weights, CompVolatilityHigh, store.Long, decimal.NewFromInt(5))},
		{Component: CompVolatilityHigh, Side: store.Short, Score: weighted(weights, CompVolatilityHigh, store.Short, decimal.NewFromInt(5))},
	}, true
}

// consecutive10hBias: >= 7 bullish (bearish) of the last 10 hourly candles
// with a moderate cumulative move (above 0.5% and below 8%). The 72h range
// position is not checked here.
func consecutive10hBias(f symbolFrame, weights map[string]store.ScoringWeight) []contribution {
	window := lastNHourly(f.Hourly, 10)
	if len(window) < 10 {
		return nil
	}
	bull, bear := countDirectional(window)
	cumMove := decimal.Zero
	if !window[0].Close.IsZero() {
		cumMove = window[len(window)-1].Close.Sub(window[0].Close).Div(window[0].Close).Mul(decimal.NewFromInt(100))
	}
	moderate := cumMove.Abs().GreaterThan(decimal.NewFromFloat(0.5)) && cumMove.Abs().LessThan(decimal.NewFromInt(8))
	if !moderate {
		return nil
	}
	switch {
	case bull >= 7:
		return []contribution{{Component: CompConsecutive10hBull, Side: store.Long, Score: weighted(weights, CompConsecutive10hBull, store.Long, decimal.NewFromInt(8))}}
	case bear >= 7:
		return []contribution{{Component: CompConsecutive10hBear, Side: store.Short, Score: weighted(weights, CompConsecutive10hBear, store.Short, decimal.NewFromInt(8))}}
	}
	return nil
}

// volumeWeightedPower: counts "strong bull"/"strong bear" candles
// (volume > 1.2x average) on 1h and 15m; simultaneous strong majority on
// both windows is a premium component.
func volumeWeightedPower(f symbolFrame, weights map[string]store.ScoringWeight) []contribution {
	h1Bull, h1Bear := strongCandleCounts(lastNHourly(f.Hourly, 48))
	m15Bull, m15Bear := strongCandleCounts(f.M15)

	h1Side := directionFromCounts(h1Bull, h1Bear)
	m15Side := directionFromCounts(m15Bull, m15Bear)

	if h1Side == "" || m15Side == "" || h1Side != m15Side {
		return nil
	}
	side := store.Side(h1Side)
	return []contribution{{Component: CompVolumePowerDual, Side: side, Score: weighted(weights, CompVolumePowerDual, side, decimal.NewFromInt(6))}}
}

func strongCandleCounts(candles []market.Candle) (bull, bear int) {
	if len(candles) == 0 {
		return 0, 0
	}
	avgVol := market.SMA(volumesOf(candles), min(len(candles), 20))
	for i := 1; i < len(candles); i++ {
		strongVolume := !avgVol.IsZero() && candles[i].Volume.GreaterThan(avgVol.Mul(decimal.NewFromFloat(1.2)))
		if !strongVolume {
			continue
		}
		if candles[i].Close.GreaterThan(candles[i-1].Close) {
			bull++
		} else if candles[i].Close.LessThan(candles[i-1].Close) {
			bear++
		}
	}
	return bull, bear
}

func volumesOf(candles []market.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func directionFromCounts(bull, bear int) string {
	total := bull + bear
	if total == 0 {
		return ""
	}
	if decimal.NewFromInt(int64(bull)).Div(decimal.NewFromInt(int64(total))).GreaterThanOrEqual(decimal.NewFromFloat(0.6)) {
		return string(store.Long)
	}
	if decimal.NewFromInt(int64(bear)).Div(decimal.NewFromInt(int64(total))).GreaterThanOrEqual(decimal.NewFromFloat(0.6)) {
		return string(store.Short)
	}
	return ""
}

// breakoutThrough: breakout-through-high (LONG) / breakdown-through-low
// (SHORT) with volume confirmation, distinct from the exclusive
// breakoutStrong component by using a lower threshold on the 24h range.
func breakoutThrough(f symbolFrame, weights map[string]store.ScoringWeight) []contribution {
	window := lastNHourly(f.Hourly, 24)
	if len(window) < 24 || len(f.M15) == 0 {
		return nil
	}
	high, low := rollingHighLow(window)
	volRatio := market.VolumeRatio(f.M15, 20)
	if volRatio.LessThanOrEqual(decimal.NewFromFloat(1.2)) {
		return nil
	}
	switch {
	case !high.IsZero() && f.Price.GreaterThan(high):
		return []contribution{{Component: CompBreakoutThroughHi, Side: store.Long, Score: weighted(weights, CompBreakoutThroughHi, store.Long, decimal.NewFromInt(10))}}
	case !low.IsZero() && f.Price.LessThan(low):
		return []contribution{{Component: CompBreakoutThroughLo, Side: store.Short, Score: weighted(weights, CompBreakoutThroughLo, store.Short, decimal.NewFromInt(10))}}
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
