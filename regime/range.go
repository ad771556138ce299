package regime

import (
	"context"

	"github.com/shopspring/decimal"

	"ApexCore/market"
)

// RangeDetector classifies the current market as trend or range from
// Bollinger width, recent high-low spread, and directional persistence
// on 15m/1h (spec.md §4.5).
type RangeDetector struct {
	klines *market.KlineAccessor
}

func NewRangeDetector(klines *market.KlineAccessor) *RangeDetector {
	return &RangeDetector{klines: klines}
}

// Classification is the Range-Market Detector's verdict for one symbol.
type Classification struct {
	Mode   string // "trend" | "range"
	Reason string
}

const (
	narrowBandWidthPct  = 4.0  // Bollinger width below this suggests range
	narrowHighLowSpread = 3.0  // 24h high-low spread (%) below this suggests range
	trendPersistenceMin = 0.65 // fraction of same-direction candles suggesting trend
)

// Classify evaluates one benchmark symbol (typically BTC, the account's
// primary regime proxy) and returns "trend" or "range".
func (r *RangeDetector) Classify(ctx context.Context, symbol string) (Classification, error) {
	h1, err := r.klines.Get(ctx, symbol, "1h", 24)
	if err != nil {
		return Classification{}, err
	}
	m15, err := r.klines.Get(ctx, symbol, "15m", market.MinCandlesFloor)
	if err != nil {
		return Classification{}, err
	}
	if len(h1) < 24 || len(m15) < market.MinCandlesFloor {
		return Classification{Mode: "range", Reason: "insufficient history, defaulting to range (pause new entries)"}, nil
	}

	bands := market.Bollinger(m15, 20, decimal.NewFromInt(2))
	bandWidth := bands.BandWidthPct()

	high, low := h1[0].High, h1[0].Low
	for _, c := range h1 {
		if c.High.GreaterThan(high) {
			high = c.High
		}
		if c.Low.LessThan(low) {
			low = c.Low
		}
	}
	var spreadPct decimal.Decimal
	if !low.IsZero() {
		spreadPct = high.Sub(low).Div(low).Mul(decimal.NewFromInt(100))
	}

	upCount := 0
	for i := 1; i < len(h1); i++ {
		if h1[i].Close.GreaterThan(h1[i-1].Close) {
			upCount++
		}
	}
	persistence := decimal.NewFromInt(int64(upCount)).Div(decimal.NewFromInt(int64(len(h1) - 1)))
	directional := persistence.GreaterThanOrEqual(decimal.NewFromFloat(trendPersistenceMin)) ||
		persistence.LessThanOrEqual(decimal.NewFromFloat(1-trendPersistenceMin))

	if bandWidth.LessThan(decimal.NewFromFloat(narrowBandWidthPct)) &&
		spreadPct.LessThan(decimal.NewFromFloat(narrowHighLowSpread)) && !directional {
		return Classification{Mode: "range", Reason: "narrow Bollinger width and high-low spread, no directional persistence"}, nil
	}
	return Classification{Mode: "trend", Reason: "directional persistence or wide range"}, nil
}
