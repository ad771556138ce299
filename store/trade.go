package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/internal/errs"
)

const tradeColumns = `trade_id, position_id, account_id, symbol, side, price, quantity, notional_value,
	leverage, margin, fee, realized_pnl, pnl_pct, roi, entry_price, close_price, order_id, trade_time, created_at`

func insertTrade(ctx context.Context, tx *sql.Tx, t *Trade) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO futures_trades (`+tradeColumns+`) VALUES
		(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.TradeID, t.PositionID, t.AccountID, t.Symbol, string(t.Side), t.Price, t.Quantity, t.NotionalValue,
		t.Leverage, t.Margin, t.Fee, t.RealizedPnL, t.PnLPct, t.ROI, t.EntryPrice, t.ClosePrice, t.OrderID, t.TradeTime, t.CreatedAt)
	if err != nil {
		return errs.New(errs.TransientInfra, "trade.insert", err)
	}
	return nil
}

// TradeStore provides read access for the Adaptive Optimizer (spec.md §4.10),
// which mines realized outcomes grouped by (fingerprint, side).
type TradeStore struct{ db *DB }

func NewTradeStore(db *DB) *TradeStore { return &TradeStore{db: db} }

// FingerprintOutcome is one (fingerprint, side) aggregate over a window.
type FingerprintOutcome struct {
	Fingerprint string
	Side        Side
	Samples     int
	WinRate     decimal.Decimal
	AvgPnL      decimal.Decimal
}

// SinceWithFingerprints joins trades to their position's entry_signal_type
// and position_side over [since, now) and aggregates win rate / average
// P&L per (fingerprint, side), feeding the Adaptive Optimizer and the
// Signal Decision Brain's quality filter.
func (s *TradeStore) SinceWithFingerprints(ctx context.Context, accountID string, since time.Time) ([]FingerprintOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.entry_signal_type, p.position_side,
		       COUNT(*) AS samples,
		       SUM(CASE WHEN t.realized_pnl > 0 THEN 1 ELSE 0 END) AS wins,
		       AVG(t.realized_pnl) AS avg_pnl
		FROM futures_trades t
		JOIN futures_positions p ON p.id = t.position_id
		WHERE t.account_id = ? AND t.trade_time >= ?
		GROUP BY p.entry_signal_type, p.position_side`, accountID, since.UTC())
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "trade.SinceWithFingerprints", err)
	}
	defer rows.Close()

	var out []FingerprintOutcome
	for rows.Next() {
		var o FingerprintOutcome
		var side string
		var samples, wins int
		var avgPnL decimal.Decimal
		if err := rows.Scan(&o.Fingerprint, &side, &samples, &wins, &avgPnL); err != nil {
			return nil, errs.New(errs.TransientInfra, "trade.SinceWithFingerprints.scan", err)
		}
		o.Side = Side(side)
		o.Samples = samples
		o.AvgPnL = avgPnL
		if samples > 0 {
			o.WinRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(samples))).Mul(decimal.NewFromInt(100))
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SymbolOutcome is one symbol's realized performance aggregate over a
// window, feeding the Adaptive Optimizer's per-symbol rating (spec.md
// §4.10: "cumulative drawdown and hit rate per symbol").
type SymbolOutcome struct {
	Symbol             string
	Samples            int
	WinRate            decimal.Decimal
	CumulativeDrawdown decimal.Decimal // largest peak-to-trough drop in running realized P&L, as a positive number
}

// SinceBySymbol aggregates realized trades per symbol over [since, now):
// hit rate from win/sample counts, and cumulative drawdown from the
// running sum of realized P&L ordered by trade_time.
func (s *TradeStore) SinceBySymbol(ctx context.Context, accountID string, since time.Time) ([]SymbolOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, realized_pnl, trade_time
		FROM futures_trades
		WHERE account_id = ? AND trade_time >= ?
		ORDER BY symbol, trade_time ASC`, accountID, since.UTC())
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "trade.SinceBySymbol", err)
	}
	defer rows.Close()

	type acc struct {
		samples, wins       int
		running, peak, maxDD decimal.Decimal
	}
	bySymbol := map[string]*acc{}
	var order []string
	for rows.Next() {
		var symbol string
		var pnl decimal.Decimal
		var tradeTime time.Time
		if err := rows.Scan(&symbol, &pnl, &tradeTime); err != nil {
			return nil, errs.New(errs.TransientInfra, "trade.SinceBySymbol.scan", err)
		}
		a, ok := bySymbol[symbol]
		if !ok {
			a = &acc{}
			bySymbol[symbol] = a
			order = append(order, symbol)
		}
		a.samples++
		if pnl.IsPositive() {
			a.wins++
		}
		a.running = a.running.Add(pnl)
		if a.running.GreaterThan(a.peak) {
			a.peak = a.running
		}
		drop := a.peak.Sub(a.running)
		if drop.GreaterThan(a.maxDD) {
			a.maxDD = drop
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]SymbolOutcome, 0, len(order))
	for _, symbol := range order {
		a := bySymbol[symbol]
		o := SymbolOutcome{Symbol: symbol, Samples: a.samples, CumulativeDrawdown: a.maxDD}
		if a.samples > 0 {
			o.WinRate = decimal.NewFromInt(int64(a.wins)).Div(decimal.NewFromInt(int64(a.samples))).Mul(decimal.NewFromInt(100))
		}
		out = append(out, o)
	}
	return out, nil
}

// UnrealizedTotal is computed by callers (trader.risk) from live positions
// and current prices; TradeStore only persists realized history.
