package store

// schemaStatements holds one CREATE TABLE IF NOT EXISTS per spec.md §6
// table, in dependency order. Column sets match §6 exactly; additional
// bookkeeping columns (created_at/updated_at) follow the teacher's
// convention in store/tactics.go.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS futures_trading_accounts (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		account_id VARCHAR(64) NOT NULL UNIQUE,
		current_balance DECIMAL(24,8) NOT NULL DEFAULT 0,
		frozen_balance DECIMAL(24,8) NOT NULL DEFAULT 0,
		realized_pnl DECIMAL(24,8) NOT NULL DEFAULT 0,
		total_trades INT NOT NULL DEFAULT 0,
		winning_trades INT NOT NULL DEFAULT 0,
		losing_trades INT NOT NULL DEFAULT 0,
		win_rate DECIMAL(9,4) NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS futures_positions (
		id VARCHAR(36) PRIMARY KEY,
		account_id VARCHAR(64) NOT NULL,
		symbol VARCHAR(32) NOT NULL,
		position_side VARCHAR(8) NOT NULL,
		quantity DECIMAL(24,8) NOT NULL DEFAULT 0,
		entry_price DECIMAL(24,8) NOT NULL,
		avg_entry_price DECIMAL(24,8) NOT NULL,
		leverage INT NOT NULL,
		notional_value DECIMAL(24,8) NOT NULL,
		margin DECIMAL(24,8) NOT NULL,
		open_time DATETIME NOT NULL,
		close_time DATETIME NULL,
		stop_loss_price DECIMAL(24,8) NOT NULL,
		take_profit_price DECIMAL(24,8) NOT NULL,
		entry_signal_type VARCHAR(255) NOT NULL,
		entry_reason VARCHAR(512) NOT NULL DEFAULT '',
		entry_score DECIMAL(9,4) NOT NULL DEFAULT 0,
		signal_components TEXT NOT NULL DEFAULT '',
		max_hold_minutes INT NOT NULL DEFAULT 0,
		timeout_at DATETIME NOT NULL,
		status VARCHAR(16) NOT NULL,
		realized_pnl DECIMAL(24,8) NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		updated_at DATETIME NOT NULL,
		active_flag TINYINT AS (CASE WHEN status IN ('building','open') THEN 1 END) STORED,
		UNIQUE KEY uniq_active_exposure (account_id, symbol, position_side, active_flag)
	)`,

	`CREATE TABLE IF NOT EXISTS futures_orders (
		order_id VARCHAR(36) PRIMARY KEY,
		account_id VARCHAR(64) NOT NULL,
		position_id VARCHAR(36) NOT NULL,
		symbol VARCHAR(32) NOT NULL,
		side VARCHAR(16) NOT NULL,
		order_type VARCHAR(16) NOT NULL,
		leverage INT NOT NULL,
		price DECIMAL(24,8) NOT NULL,
		quantity DECIMAL(24,8) NOT NULL,
		executed_quantity DECIMAL(24,8) NOT NULL DEFAULT 0,
		total_value DECIMAL(24,8) NOT NULL,
		executed_value DECIMAL(24,8) NOT NULL DEFAULT 0,
		fee DECIMAL(24,8) NOT NULL DEFAULT 0,
		fee_rate DECIMAL(9,6) NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL,
		avg_fill_price DECIMAL(24,8) NOT NULL DEFAULT 0,
		fill_time DATETIME NULL,
		realized_pnl DECIMAL(24,8) NOT NULL DEFAULT 0,
		pnl_pct DECIMAL(9,4) NOT NULL DEFAULT 0,
		order_source VARCHAR(32) NOT NULL DEFAULT '',
		notes VARCHAR(512) NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS futures_trades (
		trade_id VARCHAR(36) PRIMARY KEY,
		position_id VARCHAR(36) NOT NULL,
		account_id VARCHAR(64) NOT NULL,
		symbol VARCHAR(32) NOT NULL,
		side VARCHAR(16) NOT NULL,
		price DECIMAL(24,8) NOT NULL,
		quantity DECIMAL(24,8) NOT NULL,
		notional_value DECIMAL(24,8) NOT NULL,
		leverage INT NOT NULL,
		margin DECIMAL(24,8) NOT NULL,
		fee DECIMAL(24,8) NOT NULL DEFAULT 0,
		realized_pnl DECIMAL(24,8) NOT NULL DEFAULT 0,
		pnl_pct DECIMAL(9,4) NOT NULL DEFAULT 0,
		roi DECIMAL(9,4) NOT NULL DEFAULT 0,
		entry_price DECIMAL(24,8) NOT NULL,
		close_price DECIMAL(24,8) NOT NULL DEFAULT 0,
		order_id VARCHAR(36) NOT NULL,
		trade_time DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS trading_symbol_rating (
		symbol VARCHAR(32) PRIMARY KEY,
		rating_level INT NOT NULL DEFAULT 0,
		margin_multiplier DECIMAL(9,4) NOT NULL DEFAULT 1,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS signal_blacklist (
		signal_type VARCHAR(255) NOT NULL,
		position_side VARCHAR(8) NOT NULL,
		is_active TINYINT NOT NULL DEFAULT 1,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (signal_type, position_side)
	)`,

	`CREATE TABLE IF NOT EXISTS signal_scoring_weights (
		signal_component VARCHAR(128) PRIMARY KEY,
		weight_long DECIMAL(9,4) NOT NULL DEFAULT 0,
		weight_short DECIMAL(9,4) NOT NULL DEFAULT 0,
		is_active TINYINT NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS adaptive_params (
		param_type VARCHAR(64) NOT NULL,
		param_key VARCHAR(64) NOT NULL,
		param_value DECIMAL(18,6) NOT NULL,
		PRIMARY KEY (param_type, param_key)
	)`,

	`CREATE TABLE IF NOT EXISTS symbol_volatility_profile (
		symbol VARCHAR(32) PRIMARY KEY,
		long_fixed_tp_pct DECIMAL(9,4) NOT NULL,
		short_fixed_tp_pct DECIMAL(9,4) NOT NULL,
		updated_at DATETIME NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS trading_control (
		account_id VARCHAR(64) NOT NULL,
		trading_type VARCHAR(16) NOT NULL,
		trading_enabled TINYINT NOT NULL DEFAULT 1,
		PRIMARY KEY (account_id, trading_type)
	)`,

	`CREATE TABLE IF NOT EXISTS kline_data (
		symbol VARCHAR(32) NOT NULL,
		timeframe VARCHAR(8) NOT NULL,
		open_time BIGINT NOT NULL,
		open_price DECIMAL(24,8) NOT NULL,
		high_price DECIMAL(24,8) NOT NULL,
		low_price DECIMAL(24,8) NOT NULL,
		close_price DECIMAL(24,8) NOT NULL,
		volume DECIMAL(24,8) NOT NULL,
		PRIMARY KEY (symbol, timeframe, open_time)
	)`,

	`CREATE TABLE IF NOT EXISTS market_mode_state (
		account_id VARCHAR(64) NOT NULL,
		trading_type VARCHAR(16) NOT NULL,
		mode_type VARCHAR(16) NOT NULL,
		switched_at DATETIME NOT NULL,
		last_reason VARCHAR(512) NOT NULL DEFAULT '',
		triggering_signal VARCHAR(32) NOT NULL DEFAULT '',
		PRIMARY KEY (account_id, trading_type)
	)`,

	`CREATE TABLE IF NOT EXISTS decision_cycles (
		id VARCHAR(36) PRIMARY KEY,
		account_id VARCHAR(64) NOT NULL,
		started_at DATETIME NOT NULL,
		candidates TEXT NOT NULL DEFAULT '',
		actions_taken TEXT NOT NULL DEFAULT '',
		notes VARCHAR(1024) NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS signal_quality_stats (
		signal_type VARCHAR(255) NOT NULL,
		position_side VARCHAR(8) NOT NULL,
		sample_count INT NOT NULL DEFAULT 0,
		win_rate DECIMAL(9,4) NOT NULL DEFAULT 0,
		avg_pnl DECIMAL(24,8) NOT NULL DEFAULT 0,
		threshold_adjustment DECIMAL(9,4) NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (signal_type, position_side)
	)`,

	`CREATE TABLE IF NOT EXISTS account_equity_snapshots (
		account_id VARCHAR(64) NOT NULL,
		snapshot_time DATETIME NOT NULL,
		equity DECIMAL(24,8) NOT NULL,
		PRIMARY KEY (account_id, snapshot_time)
	)`,
}
