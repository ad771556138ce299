// Package market implements the Price Feed Gateway, the K-Line Store
// Accessor, and the pure-function Indicator Engine (spec.md §4.1-4.3).
package market

import "github.com/shopspring/decimal"

// Candle is the fixed record spec.md §9 asks for in place of the source's
// duck-typed candle dicts: open_time, open, high, low, close, volume.
type Candle struct {
	OpenTime int64 // epoch millis
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// MinCandlesFloor is the universal minimum history length callers must
// check before computing indicators (spec.md §4.2).
const MinCandlesFloor = 30
