package optimizer

import (
	"context"
	"testing"

	"ApexCore/store"
)

// optimizerSQLiteSchema is the subset of tables this package's tests touch.
var optimizerSQLiteSchema = []string{
	`CREATE TABLE futures_trading_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL UNIQUE,
		current_balance TEXT NOT NULL DEFAULT '0',
		frozen_balance TEXT NOT NULL DEFAULT '0',
		realized_pnl TEXT NOT NULL DEFAULT '0',
		total_trades INTEGER NOT NULL DEFAULT 0,
		winning_trades INTEGER NOT NULL DEFAULT 0,
		losing_trades INTEGER NOT NULL DEFAULT 0,
		win_rate TEXT NOT NULL DEFAULT '0',
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE futures_positions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		position_side TEXT NOT NULL,
		quantity TEXT NOT NULL DEFAULT '0',
		entry_price TEXT NOT NULL,
		avg_entry_price TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		notional_value TEXT NOT NULL,
		margin TEXT NOT NULL,
		open_time DATETIME NOT NULL,
		close_time DATETIME,
		stop_loss_price TEXT NOT NULL,
		take_profit_price TEXT NOT NULL,
		entry_signal_type TEXT NOT NULL,
		entry_reason TEXT NOT NULL DEFAULT '',
		entry_score TEXT NOT NULL DEFAULT '0',
		signal_components TEXT NOT NULL DEFAULT '',
		max_hold_minutes INTEGER NOT NULL DEFAULT 0,
		timeout_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		realized_pnl TEXT NOT NULL DEFAULT '0',
		notes TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX uniq_active_exposure ON futures_positions (account_id, symbol, position_side, status)
		WHERE status IN ('building','open')`,
	`CREATE TABLE futures_orders (
		order_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		order_type TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		executed_quantity TEXT NOT NULL DEFAULT '0',
		total_value TEXT NOT NULL,
		executed_value TEXT NOT NULL DEFAULT '0',
		fee TEXT NOT NULL DEFAULT '0',
		fee_rate TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		avg_fill_price TEXT NOT NULL DEFAULT '0',
		fill_time DATETIME,
		realized_pnl TEXT NOT NULL DEFAULT '0',
		pnl_pct TEXT NOT NULL DEFAULT '0',
		order_source TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE futures_trades (
		trade_id TEXT PRIMARY KEY,
		position_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		notional_value TEXT NOT NULL,
		leverage INTEGER NOT NULL,
		margin TEXT NOT NULL,
		fee TEXT NOT NULL DEFAULT '0',
		realized_pnl TEXT NOT NULL DEFAULT '0',
		pnl_pct TEXT NOT NULL DEFAULT '0',
		roi TEXT NOT NULL DEFAULT '0',
		entry_price TEXT NOT NULL,
		close_price TEXT NOT NULL DEFAULT '0',
		order_id TEXT NOT NULL,
		trade_time DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE kline_data (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		open_time INTEGER NOT NULL,
		open_price TEXT NOT NULL,
		high_price TEXT NOT NULL,
		low_price TEXT NOT NULL,
		close_price TEXT NOT NULL,
		volume TEXT NOT NULL,
		PRIMARY KEY (symbol, timeframe, open_time)
	)`,
	`CREATE TABLE signal_blacklist (
		signal_type TEXT NOT NULL,
		position_side TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (signal_type, position_side)
	)`,
	`CREATE TABLE signal_quality_stats (
		signal_type TEXT NOT NULL,
		position_side TEXT NOT NULL,
		sample_count INTEGER NOT NULL DEFAULT 0,
		win_rate TEXT NOT NULL DEFAULT '0',
		avg_pnl TEXT NOT NULL DEFAULT '0',
		threshold_adjustment TEXT NOT NULL DEFAULT '0',
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (signal_type, position_side)
	)`,
}

// newTestDBForOptimizer mirrors store's own newTestDB helper, which is
// unexported and package-private.
func newTestDBForOptimizer(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenSQLite("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, stmt := range optimizerSQLiteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return db
}
