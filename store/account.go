package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/internal/errs"
)

// AccountStore provides access to futures_trading_accounts, mirroring the
// teacher's per-entity *Store types (NewStrategyStore, NewTacticStore).
type AccountStore struct{ db *DB }

func NewAccountStore(db *DB) *AccountStore { return &AccountStore{db: db} }

// Get loads the account row, autocommit (read-only; spec.md §4.11).
func (s *AccountStore) Get(ctx context.Context, accountID string) (*Account, error) {
	return getAccountTx(ctx, s.db.DB, accountID)
}

func getAccountTx(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}, accountID string) (*Account, error) {
	row := q.QueryRowContext(ctx, `SELECT id, account_id, current_balance, frozen_balance,
		realized_pnl, total_trades, winning_trades, losing_trades, win_rate, updated_at
		FROM futures_trading_accounts WHERE account_id = ?`, accountID)

	var a Account
	if err := row.Scan(&a.ID, &a.AccountID, &a.CurrentBalance, &a.FrozenBalance,
		&a.RealizedPnL, &a.TotalTrades, &a.WinningTrades, &a.LosingTrades, &a.WinRate, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.New(errs.ContractViolation, "account.Get", fmt.Errorf("account %s not found", accountID))
		}
		return nil, errs.New(errs.TransientInfra, "account.Get", err)
	}
	return &a, nil
}

// EnsureExists creates the account row if absent, with current_balance
// set to startingBalance and every other balance and counter at zero.
func (s *AccountStore) EnsureExists(ctx context.Context, accountID string, startingBalance decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO futures_trading_accounts
		(account_id, current_balance, frozen_balance, realized_pnl, total_trades, winning_trades, losing_trades, win_rate, updated_at)
		SELECT ?, ?, 0, 0, 0, 0, 0, 0, ?
		WHERE NOT EXISTS (SELECT 1 FROM futures_trading_accounts WHERE account_id = ?)`,
		accountID, startingBalance, time.Now().UTC(), accountID)
	if err != nil {
		return errs.New(errs.TransientInfra, "account.EnsureExists", err)
	}
	return nil
}

// DebitAvailableCreditFrozen moves `amount` from available to frozen margin
// inside tx, preserving the balance invariant (spec.md §3). Used by the
// Entry Executor as part of the open-position transaction.
func (s *AccountStore) DebitAvailableCreditFrozen(ctx context.Context, tx *sql.Tx, accountID string, amount decimal.Decimal) error {
	res, err := tx.ExecContext(ctx, `UPDATE futures_trading_accounts
		SET current_balance = current_balance - ?, frozen_balance = frozen_balance + ?, updated_at = ?
		WHERE account_id = ? AND current_balance >= ?`,
		amount, amount, time.Now().UTC(), accountID, amount)
	if err != nil {
		return errs.New(errs.TransientInfra, "account.DebitAvailableCreditFrozen", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.New(errs.RiskReject, "account.DebitAvailableCreditFrozen", fmt.Errorf("insufficient available balance for %s", accountID))
	}
	return nil
}

// ReleaseFrozenAndRealize returns `marginReturned` from frozen to available,
// posts `realizedPnL` (may be negative), bumps the win/loss counters and
// recomputes win_rate, all inside tx (spec.md §8 property 2).
func (s *AccountStore) ReleaseFrozenAndRealize(ctx context.Context, tx *sql.Tx, accountID string, marginReturned, realizedPnL decimal.Decimal, won bool) error {
	winInc, loseInc := 0, 0
	if won {
		winInc = 1
	} else {
		loseInc = 1
	}
	// win_rate is assigned before the counters: MySQL applies SET
	// assignments left to right, so later ones see the updated columns.
	_, err := tx.ExecContext(ctx, `UPDATE futures_trading_accounts
		SET current_balance = current_balance + ? + ?,
		    frozen_balance = frozen_balance - ?,
		    realized_pnl = realized_pnl + ?,
		    win_rate = (winning_trades + ?) / (total_trades + 1) * 100,
		    total_trades = total_trades + 1,
		    winning_trades = winning_trades + ?,
		    losing_trades = losing_trades + ?,
		    updated_at = ?
		WHERE account_id = ?`,
		marginReturned, realizedPnL, marginReturned, realizedPnL, winInc, winInc, loseInc, time.Now().UTC(), accountID)
	if err != nil {
		return errs.New(errs.TransientInfra, "account.ReleaseFrozenAndRealize", err)
	}
	return nil
}

// SnapshotEquity records a point-in-time equity reading, feeding the
// Adaptive Optimizer's drawdown bookkeeping (SPEC_FULL §9 supplement,
// grounded on the teacher's saveEquitySnapshot).
func (s *AccountStore) SnapshotEquity(ctx context.Context, accountID string, equity decimal.Decimal, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO account_equity_snapshots (account_id, snapshot_time, equity)
		VALUES (?, ?, ?)`, accountID, at.UTC(), equity)
	if err != nil {
		return errs.New(errs.TransientInfra, "account.SnapshotEquity", err)
	}
	return nil
}
