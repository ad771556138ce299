package regime

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/internal/logger"
	"ApexCore/market"
	"ApexCore/store"
)

// ReversalState tracks the two armed blocks the synchronized-reversal
// sub-detector can trigger (spec.md §4.4). Both decrement with wall time
// and clear automatically — there is no explicit "disarm" call, only
// "is it still within its window" checks.
type ReversalState struct {
	BottomReversalArmedAt time.Time // SHORT entries blocked, SHORTs force-closed
	TopReversalArmedAt    time.Time // LONG entries blocked, LONGs force-closed
}

const (
	reversalWindow       = 4 * time.Hour
	reversalLowWithin    = 2 * time.Hour // earliest extreme must fall within this window
	reversalBounceMinPct = 3.0
	reversalIndexSpread  = 2 // candles
	reversalQuorum       = 3 // of 4 symbols
)

// BottomShortBlocked reports whether the 4-hour SHORT entry block armed
// by a synchronized bottom reversal is still active.
func (r ReversalState) BottomShortBlocked(now time.Time) bool {
	return !r.BottomReversalArmedAt.IsZero() && now.Sub(r.BottomReversalArmedAt) < reversalWindow
}

// TopLongBlocked reports whether the 4-hour LONG entry block armed by a
// synchronized top reversal is still active.
func (r ReversalState) TopLongBlocked(now time.Time) bool {
	return !r.TopReversalArmedAt.IsZero() && now.Sub(r.TopReversalArmedAt) < reversalWindow
}

// Reversals returns the detector's current armed-block state.
func (d *Detector) Reversals() ReversalState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reversals
}

// ForceCloseRequest is published when a synchronized reversal fires,
// asking the Exit Optimizer to close every open position on the given
// side (spec.md §9: "brain/risk publish force-close requests; the Exit
// Optimizer subscribes" — breaks the brain/trader back-pointer cycle the
// source used).
type ForceCloseRequest struct {
	Side   store.Side
	Reason string
}

// CheckReversals evaluates both synchronized-reversal predicates over the
// Big4 benchmarks' last ~4h of 15m candles and arms blocks as needed. It
// returns any force-close requests that must be published this tick.
func (d *Detector) CheckReversals(ctx context.Context) ([]ForceCloseRequest, error) {
	bySymbol := make(map[string][]market.Candle, 4)
	for _, sym := range d.symbols {
		candles, err := d.klines.Get(ctx, sym, "15m", lookbackCandles)
		if err != nil {
			return nil, err
		}
		if len(candles) < lookbackCandles {
			continue
		}
		bySymbol[sym] = candles
	}
	if len(bySymbol) < reversalQuorum {
		return nil, nil
	}

	var requests []ForceCloseRequest
	now := time.Now().UTC()

	if lowIdx, bounced, earliestAgo, ok := synchronizedExtreme(bySymbol, true); ok {
		if bounced >= reversalQuorum && earliestAgo <= reversalLowWithin && indexSpreadOK(lowIdx) {
			d.mu.Lock()
			d.reversals.BottomReversalArmedAt = now
			d.mu.Unlock()
			logger.Warnf("regime: Big4同步触底反转 detected, arming 4h SHORT block")
			requests = append(requests, ForceCloseRequest{Side: store.Short, Reason: "EMERGENCY: Big4同步触底反转"})
		}
	}

	if highIdx, pulled, earliestAgo, ok := synchronizedExtreme(bySymbol, false); ok {
		if pulled >= reversalQuorum && earliestAgo <= reversalLowWithin && indexSpreadOK(highIdx) {
			d.mu.Lock()
			d.reversals.TopReversalArmedAt = now
			d.mu.Unlock()
			logger.Warnf("regime: Big4同步顶部反转 detected, arming 4h LONG block")
			requests = append(requests, ForceCloseRequest{Side: store.Long, Reason: "EMERGENCY: Big4同步顶部反转"})
		}
	}

	return requests, nil
}

// synchronizedExtreme finds, for each symbol, the index of its lowest low
// (bottom=true) or highest high (bottom=false) within the window, then
// counts how many symbols have since retraced >= reversalBounceMinPct
// from that extreme. Returns the set of extreme indices, the retrace
// count, and how long ago the earliest extreme occurred.
func synchronizedExtreme(bySymbol map[string][]market.Candle, bottom bool) (indices []int, retraced int, earliestAgo time.Duration, ok bool) {
	earliestAgo = -1
	for _, candles := range bySymbol {
		idx := extremeIndex(candles, bottom)
		indices = append(indices, idx)

		extreme := candles[idx].Low
		last := candles[len(candles)-1].Close
		if !bottom {
			extreme = candles[idx].High
		}
		var movePct decimal.Decimal
		if !extreme.IsZero() {
			if bottom {
				movePct = last.Sub(extreme).Div(extreme).Mul(decimal.NewFromInt(100))
			} else {
				movePct = extreme.Sub(last).Div(extreme).Mul(decimal.NewFromInt(100))
			}
		}
		if movePct.GreaterThanOrEqual(decimal.NewFromFloat(reversalBounceMinPct)) {
			retraced++
		}

		ago := time.Duration(len(candles)-1-idx) * 15 * time.Minute
		if earliestAgo < 0 || ago > earliestAgo {
			earliestAgo = ago
		}
	}
	return indices, retraced, earliestAgo, len(indices) > 0
}

func extremeIndex(candles []market.Candle, bottom bool) int {
	best := 0
	for i, c := range candles {
		if bottom {
			if c.Low.LessThan(candles[best].Low) {
				best = i
			}
		} else {
			if c.High.GreaterThan(candles[best].High) {
				best = i
			}
		}
	}
	return best
}

func indexSpreadOK(indices []int) bool {
	if len(indices) == 0 {
		return false
	}
	minI, maxI := indices[0], indices[0]
	for _, i := range indices {
		if i < minI {
			minI = i
		}
		if i > maxI {
			maxI = i
		}
	}
	return maxI-minI <= reversalIndexSpread
}
