package store

import (
	"context"

	"ApexCore/internal/errs"
)

// KlineStore persists OHLCV candles. The out-of-scope ingestion system is
// the only writer; the core only reads through KlineAccessor (spec.md §4.2).
type KlineStore struct{ db *DB }

func NewKlineStore(db *DB) *KlineStore { return &KlineStore{db: db} }

// Recent returns up to `limit` candles for (symbol, timeframe), oldest
// first, as spec.md §4.2 requires. Fewer than requested (including zero)
// is a valid, non-error result; callers must check length before computing
// indicators.
func (s *KlineStore) Recent(ctx context.Context, symbol, timeframe string, limit int) ([]Kline, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, timeframe, open_time, open_price, high_price, low_price, close_price, volume
		FROM kline_data WHERE symbol = ? AND timeframe = ? ORDER BY open_time DESC LIMIT ?`, symbol, timeframe, limit)
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "kline.Recent", err)
	}
	defer rows.Close()

	var out []Kline
	for rows.Next() {
		var k Kline
		if err := rows.Scan(&k.Symbol, &k.Timeframe, &k.OpenTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, errs.New(errs.TransientInfra, "kline.Recent.scan", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.TransientInfra, "kline.Recent.rows", err)
	}
	// reverse: query returns newest-first, accessor contract is oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// LatestClose returns the most recent candle's close price for a timeframe,
// used by the Price Feed Gateway's stale-price fallback (spec.md §4.1).
func (s *KlineStore) LatestClose(ctx context.Context, symbol, timeframe string) (*Kline, error) {
	row := s.db.QueryRowContext(ctx, `SELECT symbol, timeframe, open_time, open_price, high_price, low_price, close_price, volume
		FROM kline_data WHERE symbol = ? AND timeframe = ? ORDER BY open_time DESC LIMIT 1`, symbol, timeframe)
	var k Kline
	if err := row.Scan(&k.Symbol, &k.Timeframe, &k.OpenTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
		return nil, err
	}
	return &k, nil
}
