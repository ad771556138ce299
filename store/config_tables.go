package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/internal/errs"
)

// RatingStore provides access to trading_symbol_rating.
type RatingStore struct{ db *DB }

func NewRatingStore(db *DB) *RatingStore { return &RatingStore{db: db} }

// Whitelist returns every rated symbol with level < Forbidden, the
// universe the Signal Decision Brain is restricted to (spec.md §4.6).
func (s *RatingStore) Whitelist(ctx context.Context) ([]SymbolRating, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, rating_level, margin_multiplier, updated_at
		FROM trading_symbol_rating WHERE rating_level < ?`, RatingForbidden)
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "rating.Whitelist", err)
	}
	defer rows.Close()
	var out []SymbolRating
	for rows.Next() {
		var r SymbolRating
		if err := rows.Scan(&r.Symbol, &r.RatingLevel, &r.MarginMultiplier, &r.UpdatedAt); err != nil {
			return nil, errs.New(errs.TransientInfra, "rating.Whitelist.scan", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Upsert inserts or updates a symbol's rating, used by the Adaptive
// Optimizer when `auto_apply` promotes/demotes a symbol.
func (s *RatingStore) Upsert(ctx context.Context, r SymbolRating) error {
	r.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO trading_symbol_rating (symbol, rating_level, margin_multiplier, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE rating_level = VALUES(rating_level), margin_multiplier = VALUES(margin_multiplier), updated_at = VALUES(updated_at)`,
		r.Symbol, r.RatingLevel, r.MarginMultiplier, r.UpdatedAt)
	if err != nil {
		return errs.New(errs.TransientInfra, "rating.Upsert", err)
	}
	return nil
}

// BlacklistStore provides access to signal_blacklist.
type BlacklistStore struct{ db *DB }

func NewBlacklistStore(db *DB) *BlacklistStore { return &BlacklistStore{db: db} }

// ActiveSnapshot returns the set of currently-active (fingerprint, side)
// tuples as a lookup set — consulted at decision time per spec.md §4.6.3.
func (s *BlacklistStore) ActiveSnapshot(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT signal_type, position_side FROM signal_blacklist WHERE is_active = 1`)
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "blacklist.ActiveSnapshot", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var sig, side string
		if err := rows.Scan(&sig, &side); err != nil {
			return nil, errs.New(errs.TransientInfra, "blacklist.ActiveSnapshot.scan", err)
		}
		out[sig+"|"+side] = true
	}
	return out, rows.Err()
}

// Add activates a (fingerprint, side) block, used by the Adaptive Optimizer
// when it flags a blacklist candidate.
func (s *BlacklistStore) Add(ctx context.Context, fingerprint string, side Side) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO signal_blacklist (signal_type, position_side, is_active, updated_at)
		VALUES (?, ?, 1, ?)
		ON DUPLICATE KEY UPDATE is_active = 1, updated_at = VALUES(updated_at)`,
		fingerprint, string(side), time.Now().UTC())
	if err != nil {
		return errs.New(errs.TransientInfra, "blacklist.Add", err)
	}
	return nil
}

// WeightsStore provides access to signal_scoring_weights.
type WeightsStore struct{ db *DB }

func NewWeightsStore(db *DB) *WeightsStore { return &WeightsStore{db: db} }

// Snapshot loads every active weight row — the Brain reads this once per
// scan as an immutable snapshot (spec.md §5: "reloaded atomically").
func (s *WeightsStore) Snapshot(ctx context.Context) (map[string]ScoringWeight, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT signal_component, weight_long, weight_short, is_active
		FROM signal_scoring_weights WHERE is_active = 1`)
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "weights.Snapshot", err)
	}
	defer rows.Close()
	out := map[string]ScoringWeight{}
	for rows.Next() {
		var w ScoringWeight
		var active bool
		if err := rows.Scan(&w.Component, &w.WeightLong, &w.WeightShort, &active); err != nil {
			return nil, errs.New(errs.TransientInfra, "weights.Snapshot.scan", err)
		}
		w.IsActive = active
		out[w.Component] = w
	}
	return out, rows.Err()
}

// Upsert sets a component's weights, used by the Adaptive Optimizer.
func (s *WeightsStore) Upsert(ctx context.Context, w ScoringWeight) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO signal_scoring_weights (signal_component, weight_long, weight_short, is_active)
		VALUES (?, ?, ?, 1)
		ON DUPLICATE KEY UPDATE weight_long = VALUES(weight_long), weight_short = VALUES(weight_short)`,
		w.Component, w.WeightLong, w.WeightShort)
	if err != nil {
		return errs.New(errs.TransientInfra, "weights.Upsert", err)
	}
	return nil
}

// ParamsStore provides access to adaptive_params.
type ParamsStore struct{ db *DB }

func NewParamsStore(db *DB) *ParamsStore { return &ParamsStore{db: db} }

// Snapshot loads every adaptive parameter keyed "type|key".
func (s *ParamsStore) Snapshot(ctx context.Context) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT param_type, param_key, param_value FROM adaptive_params`)
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "params.Snapshot", err)
	}
	defer rows.Close()
	out := map[string]decimal.Decimal{}
	for rows.Next() {
		var t, k string
		var v decimal.Decimal
		if err := rows.Scan(&t, &k, &v); err != nil {
			return nil, errs.New(errs.TransientInfra, "params.Snapshot.scan", err)
		}
		out[t+"|"+k] = v
	}
	return out, rows.Err()
}

// Set upserts a single adaptive parameter.
func (s *ParamsStore) Set(ctx context.Context, paramType, key string, value decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO adaptive_params (param_type, param_key, param_value)
		VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE param_value = VALUES(param_value)`, paramType, key, value)
	if err != nil {
		return errs.New(errs.TransientInfra, "params.Set", err)
	}
	return nil
}

// VolatilityStore provides access to symbol_volatility_profile.
type VolatilityStore struct{ db *DB }

func NewVolatilityStore(db *DB) *VolatilityStore { return &VolatilityStore{db: db} }

func (s *VolatilityStore) Get(ctx context.Context, symbol string) (*VolatilityProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT symbol, long_fixed_tp_pct, short_fixed_tp_pct, updated_at
		FROM symbol_volatility_profile WHERE symbol = ?`, symbol)
	var v VolatilityProfile
	if err := row.Scan(&v.Symbol, &v.LongFixedTPPct, &v.ShortFixedTPPct, &v.UpdatedAt); err != nil {
		return nil, err // callers treat "not found" as "fall back to adaptive default"
	}
	return &v, nil
}

func (s *VolatilityStore) Upsert(ctx context.Context, v VolatilityProfile) error {
	v.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO symbol_volatility_profile (symbol, long_fixed_tp_pct, short_fixed_tp_pct, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE long_fixed_tp_pct = VALUES(long_fixed_tp_pct), short_fixed_tp_pct = VALUES(short_fixed_tp_pct), updated_at = VALUES(updated_at)`,
		v.Symbol, v.LongFixedTPPct, v.ShortFixedTPPct, v.UpdatedAt)
	if err != nil {
		return errs.New(errs.TransientInfra, "volatility.Upsert", err)
	}
	return nil
}

// ModeStore provides access to market_mode_state.
type ModeStore struct{ db *DB }

func NewModeStore(db *DB) *ModeStore { return &ModeStore{db: db} }

func (s *ModeStore) Get(ctx context.Context, accountID, tradingType string) (*ModeState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT account_id, trading_type, mode_type, switched_at, last_reason, triggering_signal
		FROM market_mode_state WHERE account_id = ? AND trading_type = ?`, accountID, tradingType)
	var m ModeState
	var mode string
	if err := row.Scan(&m.AccountID, &m.TradingType, &mode, &m.SwitchedAt, &m.LastReason, &m.TriggeringSignal); err != nil {
		return nil, err
	}
	m.Mode = TradingMode(mode)
	return &m, nil
}

// Switch records a mode transition. Callers (regime.ModeSwitcher) must
// have already verified the confirmation window, cooldown, and absence of
// building positions (spec.md §4.5, §8 property 8) before calling this.
func (s *ModeStore) Switch(ctx context.Context, m ModeState) error {
	m.SwitchedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `INSERT INTO market_mode_state (account_id, trading_type, mode_type, switched_at, last_reason, triggering_signal)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE mode_type = VALUES(mode_type), switched_at = VALUES(switched_at),
		last_reason = VALUES(last_reason), triggering_signal = VALUES(triggering_signal)`,
		m.AccountID, m.TradingType, string(m.Mode), m.SwitchedAt, m.LastReason, m.TriggeringSignal)
	if err != nil {
		return errs.New(errs.TransientInfra, "mode.Switch", err)
	}
	return nil
}

// ControlStore provides access to trading_control, the per-account kill
// switch.
type ControlStore struct{ db *DB }

func NewControlStore(db *DB) *ControlStore { return &ControlStore{db: db} }

func (s *ControlStore) Enabled(ctx context.Context, accountID, tradingType string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT trading_enabled FROM trading_control WHERE account_id = ? AND trading_type = ?`,
		accountID, tradingType)
	var enabled bool
	if err := row.Scan(&enabled); err != nil {
		return true, nil // absent row defaults to enabled
	}
	return enabled, nil
}

func (s *ControlStore) SetEnabled(ctx context.Context, accountID, tradingType string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO trading_control (account_id, trading_type, trading_enabled)
		VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE trading_enabled = VALUES(trading_enabled)`,
		accountID, tradingType, enabled)
	if err != nil {
		return errs.New(errs.TransientInfra, "control.SetEnabled", err)
	}
	return nil
}
