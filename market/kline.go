package market

import (
	"context"

	"ApexCore/store"
)

// KlineAccessor is the K-Line Store Accessor (spec.md §4.2): returns an
// ordered finite sequence of candles, oldest first, delegating storage to
// the State Store's KlineStore.
type KlineAccessor struct {
	klines *store.KlineStore
}

func NewKlineAccessor(klines *store.KlineStore) *KlineAccessor {
	return &KlineAccessor{klines: klines}
}

// Get returns up to `limit` candles for (symbol, timeframe), oldest first.
// Insufficient history returns a shorter (possibly empty) slice, never an
// error; callers must check length against MinCandlesFloor.
func (a *KlineAccessor) Get(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	rows, err := a.klines.Recent(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candle, len(rows))
	for i, r := range rows {
		out[i] = Candle{OpenTime: r.OpenTime, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
	}
	return out, nil
}
