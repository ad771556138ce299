package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ApexCore/internal/errs"
)

// PositionStore owns all position lifecycle transitions. It is the only
// type that ever writes `status`, preserving spec.md §8 property 3
// (single-closer): every caller that wants to close a position goes
// through OpenAndClose-style methods here, never raw UPDATEs elsewhere.
type PositionStore struct {
	db       *DB
	accounts *AccountStore
}

func NewPositionStore(db *DB, accounts *AccountStore) *PositionStore {
	return &PositionStore{db: db, accounts: accounts}
}

// ActiveByAccountSymbolSide returns the single building/open position for
// (accountID, symbol, side), if any. Used to enforce spec.md §8 property 1
// before an insert.
func (s *PositionStore) ActiveByAccountSymbolSide(ctx context.Context, accountID, symbol string, side Side) (*Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM futures_positions
		WHERE account_id = ? AND symbol = ? AND position_side = ? AND status IN ('building','open')`,
		accountID, symbol, string(side))
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "position.ActiveByAccountSymbolSide", err)
	}
	return p, nil
}

// LastClosed returns the most recently closed position for (accountID,
// symbol, side), or nil if none exists. Used by the cooldown filter
// (spec.md §4.6.7).
func (s *PositionStore) LastClosed(ctx context.Context, accountID, symbol string, side Side) (*Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM futures_positions
		WHERE account_id = ? AND symbol = ? AND position_side = ? AND status = 'closed'
		ORDER BY close_time DESC LIMIT 1`, accountID, symbol, string(side))
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "position.LastClosed", err)
	}
	return p, nil
}

// Get loads one position by ID regardless of status, used by the Exit
// Optimizer's monitor loop and its supervisor (spec.md §4.8).
func (s *PositionStore) Get(ctx context.Context, id string) (*Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM futures_positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.ContractViolation, "position.Get", fmt.Errorf("position %s not found", id))
	}
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "position.Get", err)
	}
	return p, nil
}

// AllOpenOrBuilding lists every non-closed position for the account, the
// set the Exit Optimizer's supervisor reconciles its monitor map against.
func (s *PositionStore) AllOpenOrBuilding(ctx context.Context, accountID string) ([]*Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionColumns+` FROM futures_positions
		WHERE account_id = ? AND status IN ('building','open') ORDER BY open_time`, accountID)
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "position.AllOpenOrBuilding", err)
	}
	defer rows.Close()
	var out []*Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, errs.New(errs.TransientInfra, "position.AllOpenOrBuilding.scan", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OpenImmediate inserts a new `open` position and debits/freezes margin in
// one transaction (spec.md §4.7a, §4.11, §5). Fails with Conflict if an
// active position already exists for (symbol, side) — enforced by the
// unique index AND a preceding existence check inside the same tx, since
// the check-then-insert race is exactly what the unique key guards against.
func (s *PositionStore) OpenImmediate(ctx context.Context, p *Position) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = StatusOpen
	now := time.Now().UTC()
	p.UpdatedAt = now

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM futures_positions
			WHERE account_id = ? AND symbol = ? AND position_side = ? AND status IN ('building','open')`,
			p.AccountID, p.Symbol, string(p.Side)).Scan(&exists); err != nil {
			return errs.New(errs.TransientInfra, "position.OpenImmediate.check", err)
		}
		if exists > 0 {
			return errs.New(errs.Conflict, "position.OpenImmediate", fmt.Errorf("active %s position already exists for %s", p.Side, p.Symbol))
		}
		if err := s.accounts.DebitAvailableCreditFrozen(ctx, tx, p.AccountID, p.Margin); err != nil {
			return err
		}
		return insertPosition(ctx, tx, p)
	})
}

// OpenBuilding inserts a new `building` position with zero quantity for
// batched entry (spec.md §4.7b). Margin is debited per-slice by AppendFill,
// not here.
func (s *PositionStore) OpenBuilding(ctx context.Context, p *Position) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Status = StatusBuilding
	p.Quantity = decimal.Zero
	now := time.Now().UTC()
	p.UpdatedAt = now

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM futures_positions
			WHERE account_id = ? AND symbol = ? AND position_side = ? AND status IN ('building','open')`,
			p.AccountID, p.Symbol, string(p.Side)).Scan(&exists); err != nil {
			return errs.New(errs.TransientInfra, "position.OpenBuilding.check", err)
		}
		if exists > 0 {
			return errs.New(errs.Conflict, "position.OpenBuilding", fmt.Errorf("active %s position already exists for %s", p.Side, p.Symbol))
		}
		return insertPosition(ctx, tx, p)
	})
}

// AppendFill records one batched-entry slice fill: debits margin for the
// slice, increases quantity/notional, and promotes `building` to `open`
// on the first fill (spec.md §4.7b).
func (s *PositionStore) AppendFill(ctx context.Context, positionID string, sliceMargin, sliceQty, fillPrice decimal.Decimal) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := lockPosition(ctx, tx, positionID)
		if err != nil {
			return err
		}
		if p.Status == StatusClosed {
			return errs.New(errs.Conflict, "position.AppendFill", fmt.Errorf("position %s already closed", positionID))
		}
		if err := s.accounts.DebitAvailableCreditFrozen(ctx, tx, p.AccountID, sliceMargin); err != nil {
			return err
		}
		newQty := p.Quantity.Add(sliceQty)
		newAvg := p.AvgEntryPrice
		if p.Quantity.IsZero() {
			newAvg = fillPrice
		} else {
			newAvg = p.AvgEntryPrice.Mul(p.Quantity).Add(fillPrice.Mul(sliceQty)).Div(newQty)
		}
		status := p.Status
		if status == StatusBuilding {
			status = StatusOpen
		}
		_, err = tx.ExecContext(ctx, `UPDATE futures_positions SET quantity = ?, avg_entry_price = ?,
			margin = margin + ?, notional_value = notional_value + ?, status = ?, updated_at = ?
			WHERE id = ?`, newQty, newAvg, sliceMargin, sliceQty.Mul(fillPrice), string(status), time.Now().UTC(), positionID)
		if err != nil {
			return errs.New(errs.TransientInfra, "position.AppendFill.update", err)
		}
		return nil
	})
}

// CloseResult is the outcome the Exit Optimizer feeds back after a close.
type CloseResult struct {
	OrderID     string
	TradeID     string
	RealizedPnL decimal.Decimal
	FullyClosed bool
}

// Close executes a full or partial close: inserts the order+trade rows,
// credits realized P&L and returns margin, and — only on full close —
// marks the position `closed`. Re-invoking on an already-closed position
// is a no-op returning (nil, nil), satisfying spec.md §8 property 7.
//
// closeFraction is clamped to 1.0 when the residual margin after a
// partial close would fall under minResidualMargin (spec.md §3, §4.8.3).
func (s *PositionStore) Close(ctx context.Context, positionID string, closePrice decimal.Decimal, closeFraction decimal.Decimal, reason string, fee decimal.Decimal, minResidualMargin decimal.Decimal) (*CloseResult, error) {
	var result *CloseResult
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		p, err := lockPosition(ctx, tx, positionID)
		if err != nil {
			return err
		}
		if p.Status == StatusClosed {
			result = nil
			return nil // idempotent no-op: property 7
		}

		fraction := closeFraction
		if fraction.GreaterThan(decimal.NewFromInt(1)) {
			fraction = decimal.NewFromInt(1)
		}
		residualMargin := p.Margin.Mul(decimal.NewFromInt(1).Sub(fraction))
		full := fraction.GreaterThanOrEqual(decimal.NewFromInt(1)) || (residualMargin.LessThan(minResidualMargin) && residualMargin.GreaterThan(decimal.Zero))
		if full {
			fraction = decimal.NewFromInt(1)
		}

		closeQty := p.Quantity.Mul(fraction)
		closeMargin := p.Margin.Mul(fraction)
		var pnl decimal.Decimal
		if p.Side == Long {
			pnl = closePrice.Sub(p.AvgEntryPrice).Mul(closeQty)
		} else {
			pnl = p.AvgEntryPrice.Sub(closePrice).Mul(closeQty)
		}
		pnl = pnl.Sub(fee)

		orderSide := OrderCloseLong
		if p.Side == Short {
			orderSide = OrderCloseShort
		}
		now := time.Now().UTC()
		order := &Order{
			OrderID:      uuid.NewString(),
			AccountID:    p.AccountID,
			PositionID:   p.ID,
			Symbol:       p.Symbol,
			Side:         orderSide,
			OrderType:    "MARKET",
			Leverage:     p.Leverage,
			Price:        closePrice,
			Quantity:     closeQty,
			TotalValue:   closeQty.Mul(closePrice),
			Fee:          fee,
			Status:       "FILLED",
			AvgFillPrice: closePrice,
			FillTime:     &now,
			RealizedPnL:  pnl,
			Notes:        reason,
		}
		if p.EntryPrice.IsPositive() {
			order.PnLPct = pnl.Div(p.EntryPrice.Mul(closeQty)).Mul(decimal.NewFromInt(100))
		}
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}

		trade := &Trade{
			TradeID:       uuid.NewString(),
			PositionID:    p.ID,
			AccountID:     p.AccountID,
			Symbol:        p.Symbol,
			Side:          orderSide,
			Price:         closePrice,
			Quantity:      closeQty,
			NotionalValue: closeQty.Mul(closePrice),
			Leverage:      p.Leverage,
			Margin:        closeMargin,
			Fee:           fee,
			RealizedPnL:   pnl,
			PnLPct:        order.PnLPct,
			EntryPrice:    p.AvgEntryPrice,
			ClosePrice:    closePrice,
			OrderID:       order.OrderID,
			TradeTime:     now,
			CreatedAt:     now,
		}
		if closeMargin.IsPositive() {
			trade.ROI = pnl.Div(closeMargin).Mul(decimal.NewFromInt(100))
		}
		if err := insertTrade(ctx, tx, trade); err != nil {
			return err
		}

		if err := s.accounts.ReleaseFrozenAndRealize(ctx, tx, p.AccountID, closeMargin, pnl, pnl.IsPositive()); err != nil {
			return err
		}

		newStatus := p.Status
		var closeTime *time.Time
		newQty := p.Quantity.Sub(closeQty)
		newMargin := p.Margin.Sub(closeMargin)
		newRealized := p.RealizedPnL.Add(pnl)
		if full {
			newStatus = StatusClosed
			newQty = decimal.Zero
			newMargin = decimal.Zero
			closeTime = &now
		}
		p.AppendNote(fmt.Sprintf("close fraction=%s price=%s reason=%s pnl=%s", fraction.String(), closePrice.String(), reason, pnl.String()))

		_, err = tx.ExecContext(ctx, `UPDATE futures_positions SET quantity = ?, margin = ?, status = ?,
			realized_pnl = ?, close_time = ?, notes = ?, updated_at = ? WHERE id = ?`,
			newQty, newMargin, string(newStatus), newRealized, closeTime, p.Notes, now, p.ID)
		if err != nil {
			return errs.New(errs.TransientInfra, "position.Close.update", err)
		}

		result = &CloseResult{OrderID: order.OrderID, TradeID: trade.TradeID, RealizedPnL: pnl, FullyClosed: full}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStops adjusts stop-loss/take-profit in place (trailing stop,
// reversal-driven tightening). Does not touch status or quantity.
func (s *PositionStore) UpdateStops(ctx context.Context, positionID string, stopLoss, takeProfit decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `UPDATE futures_positions SET stop_loss_price = ?, take_profit_price = ?, updated_at = ?
		WHERE id = ? AND status != 'closed'`, stopLoss, takeProfit, time.Now().UTC(), positionID)
	if err != nil {
		return errs.New(errs.TransientInfra, "position.UpdateStops", err)
	}
	return nil
}

func lockPosition(ctx context.Context, tx *sql.Tx, id string) (*Position, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM futures_positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.ContractViolation, "position.lock", fmt.Errorf("position %s not found", id))
	}
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "position.lock", err)
	}
	return p, nil
}

const positionColumns = `id, account_id, symbol, position_side, quantity, entry_price, avg_entry_price,
	leverage, notional_value, margin, open_time, close_time, stop_loss_price, take_profit_price,
	entry_signal_type, entry_reason, entry_score, signal_components, max_hold_minutes, timeout_at,
	status, realized_pnl, notes, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row scanner) (*Position, error) {
	var p Position
	var side, status string
	if err := row.Scan(&p.ID, &p.AccountID, &p.Symbol, &side, &p.Quantity, &p.EntryPrice, &p.AvgEntryPrice,
		&p.Leverage, &p.NotionalValue, &p.Margin, &p.OpenTime, &p.CloseTime, &p.StopLossPrice, &p.TakeProfitPrice,
		&p.EntrySignalType, &p.EntryReason, &p.EntryScore, &p.SignalComponents, &p.MaxHoldMinutes, &p.TimeoutAt,
		&status, &p.RealizedPnL, &p.Notes, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Side = Side(side)
	p.Status = PositionStatus(status)
	return &p, nil
}

func insertPosition(ctx context.Context, tx *sql.Tx, p *Position) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO futures_positions (`+positionColumns+`) VALUES
		(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.AccountID, p.Symbol, string(p.Side), p.Quantity, p.EntryPrice, p.AvgEntryPrice,
		p.Leverage, p.NotionalValue, p.Margin, p.OpenTime, p.CloseTime, p.StopLossPrice, p.TakeProfitPrice,
		p.EntrySignalType, p.EntryReason, p.EntryScore, p.SignalComponents, p.MaxHoldMinutes, p.TimeoutAt,
		string(p.Status), p.RealizedPnL, p.Notes, p.UpdatedAt)
	if err != nil {
		return errs.New(errs.TransientInfra, "position.insert", err)
	}
	return nil
}
