package store

import (
	"context"
	"database/sql"

	"ApexCore/internal/errs"
)

const orderColumns = `order_id, account_id, position_id, symbol, side, order_type, leverage, price,
	quantity, executed_quantity, total_value, executed_value, fee, fee_rate, status, avg_fill_price,
	fill_time, realized_pnl, pnl_pct, order_source, notes`

func insertOrder(ctx context.Context, tx *sql.Tx, o *Order) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO futures_orders (`+orderColumns+`) VALUES
		(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.OrderID, o.AccountID, o.PositionID, o.Symbol, string(o.Side), o.OrderType, o.Leverage, o.Price,
		o.Quantity, o.ExecutedQuantity, o.TotalValue, o.ExecutedValue, o.Fee, o.FeeRate, o.Status, o.AvgFillPrice,
		o.FillTime, o.RealizedPnL, o.PnLPct, o.OrderSource, o.Notes)
	if err != nil {
		return errs.New(errs.TransientInfra, "order.insert", err)
	}
	return nil
}

// OrderStore provides read access for the Risk & Emergency Layer's
// consecutive-stop-loss breaker (spec.md §4.9).
type OrderStore struct{ db *DB }

func NewOrderStore(db *DB) *OrderStore { return &OrderStore{db: db} }

// RecentCloseNotes returns the `notes` field of the most recent N close
// orders for the account, newest first.
func (s *OrderStore) RecentCloseNotes(ctx context.Context, accountID string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT notes FROM futures_orders
		WHERE account_id = ? AND side IN ('CLOSE_LONG','CLOSE_SHORT')
		ORDER BY fill_time DESC LIMIT ?`, accountID, n)
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "order.RecentCloseNotes", err)
	}
	defer rows.Close()
	var notes []string
	for rows.Next() {
		var note string
		if err := rows.Scan(&note); err != nil {
			return nil, errs.New(errs.TransientInfra, "order.RecentCloseNotes.scan", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}
