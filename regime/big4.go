// Package regime implements the Big4 Regime Detector, its synchronized
// bottom/top reversal sub-detector, the Range-Market Detector, and the
// Mode Switcher (spec.md §4.4-4.5).
package regime

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/internal/logger"
	"ApexCore/market"
)

// Signal is the market-wide directional read from the Big4 benchmarks.
type Signal string

const (
	Bullish Signal = "BULLISH"
	Bearish Signal = "BEARISH"
	Neutral Signal = "NEUTRAL"
)

// SymbolDetail is the per-benchmark contribution to the aggregate signal.
type SymbolDetail struct {
	Symbol   string
	Signal   Signal
	Strength decimal.Decimal
}

// Result is the Big4 Regime Detector's output (spec.md §4.4), cached with
// a fixed TTL since it is also spec.md §3's in-memory-only Regime
// Detection Result entity.
type Result struct {
	OverallSignal Signal
	SignalStrength decimal.Decimal
	Details       []SymbolDetail
	DetectedAt    time.Time
}

const (
	detectionCadence = 15 * time.Minute
	cacheTTL         = 60 * time.Minute
	lookbackCandles  = 16 // ~4h of 15m candles
)

// Detector runs the Big4 Regime Detector and its reversal sub-detector.
// The in-memory cache is replaced atomically by pointer swap, never
// mutated in place, per spec.md §5's shared-resource policy.
type Detector struct {
	klines  *market.KlineAccessor
	symbols [4]string

	mu        sync.RWMutex
	cache     *Result
	detectAt  time.Time
	reversals ReversalState
}

func NewDetector(klines *market.KlineAccessor, big4Symbols [4]string) *Detector {
	return &Detector{klines: klines, symbols: big4Symbols}
}

// Detect returns the cached result if the detection cadence has not
// elapsed, otherwise recomputes. On recomputation failure with an
// existing cache, the previous cache is kept; with no cache, NEUTRAL/0 is
// returned (spec.md §4.4).
func (d *Detector) Detect(ctx context.Context) *Result {
	d.mu.RLock()
	cache := d.cache
	last := d.detectAt
	d.mu.RUnlock()

	if cache != nil && time.Since(last) < detectionCadence {
		return cache
	}

	fresh, err := d.compute(ctx)
	if err != nil {
		logger.Warnf("regime: big4 detection failed, keeping previous cache: %v", err)
		if cache != nil && time.Since(cache.DetectedAt) < cacheTTL {
			return cache
		}
		if cache == nil {
			return &Result{OverallSignal: Neutral, SignalStrength: decimal.Zero, DetectedAt: time.Now().UTC()}
		}
		return cache
	}

	d.mu.Lock()
	d.cache = fresh
	d.detectAt = fresh.DetectedAt
	d.mu.Unlock()
	return fresh
}

func (d *Detector) compute(ctx context.Context) (*Result, error) {
	details := make([]SymbolDetail, 0, 4)
	bullCount, bearCount := 0, 0
	var strengthSum decimal.Decimal

	for _, sym := range d.symbols {
		candles, err := d.klines.Get(ctx, sym, "15m", lookbackCandles)
		if err != nil {
			return nil, err
		}
		if len(candles) < lookbackCandles {
			continue // insufficient history for this symbol; excluded from quorum
		}
		sig, strength := symbolSignal(candles)
		details = append(details, SymbolDetail{Symbol: sym, Signal: sig, Strength: strength})
		switch sig {
		case Bullish:
			bullCount++
		case Bearish:
			bearCount++
		}
		strengthSum = strengthSum.Add(strength)
	}

	if len(details) < 3 {
		// absence of quorum (fewer than 3 of 4 symbols usable)
		return &Result{OverallSignal: Neutral, SignalStrength: decimal.Zero, Details: details, DetectedAt: time.Now().UTC()}
	}

	overall := Neutral
	consistency := 0
	switch {
	case bullCount > bearCount && bullCount*2 > len(details):
		overall = Bullish
		consistency = bullCount
	case bearCount > bullCount && bearCount*2 > len(details):
		overall = Bearish
		consistency = bearCount
	}

	avgStrength := strengthSum.Div(decimal.NewFromInt(int64(len(details))))
	consistencyWeight := decimal.NewFromInt(int64(consistency)).Div(decimal.NewFromInt(int64(len(details))))
	overallStrength := avgStrength.Mul(consistencyWeight)
	if overallStrength.GreaterThan(decimal.NewFromInt(100)) {
		overallStrength = decimal.NewFromInt(100)
	}

	return &Result{OverallSignal: overall, SignalStrength: overallStrength, Details: details, DetectedAt: time.Now().UTC()}
}

// symbolSignal computes a per-symbol directional bias and momentum
// strength from the last ~4h of 15m candles (spec.md §4.4 "design
// level" method): net directional move over the window plus a simple
// momentum measure (ratio of up-candles).
func symbolSignal(candles []market.Candle) (Signal, decimal.Decimal) {
	first := candles[0].Close
	last := candles[len(candles)-1].Close
	if first.IsZero() {
		return Neutral, decimal.Zero
	}
	changePct := last.Sub(first).Div(first).Mul(decimal.NewFromInt(100))

	upCount := 0
	for i := 1; i < len(candles); i++ {
		if candles[i].Close.GreaterThan(candles[i-1].Close) {
			upCount++
		}
	}
	momentum := decimal.NewFromInt(int64(upCount)).Div(decimal.NewFromInt(int64(len(candles) - 1)))

	strength := changePct.Abs().Mul(decimal.NewFromInt(10)).Add(momentum.Mul(decimal.NewFromInt(50)))
	if strength.GreaterThan(decimal.NewFromInt(100)) {
		strength = decimal.NewFromInt(100)
	}

	switch {
	case changePct.GreaterThan(decimal.NewFromFloat(0.3)) && momentum.GreaterThanOrEqual(decimal.NewFromFloat(0.5)):
		return Bullish, strength
	case changePct.LessThan(decimal.NewFromFloat(-0.3)) && momentum.LessThanOrEqual(decimal.NewFromFloat(0.5)):
		return Bearish, strength
	default:
		return Neutral, strength
	}
}
