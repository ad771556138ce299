package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/internal/errs"
)

// QualityStatsStore persists signal_quality_stats: the per-(fingerprint,
// side) sample count, win rate, average P&L, and threshold adjustment
// spec.md §3 names as "Signal Quality Statistics". The Adaptive Optimizer
// is the sole writer; the Signal Decision Brain consults the in-memory
// snapshot the optimizer reloads into decision.QualityManager after each
// write, rather than querying this table per scan.
type QualityStatsStore struct{ db *DB }

func NewQualityStatsStore(db *DB) *QualityStatsStore { return &QualityStatsStore{db: db} }

// Upsert records one (fingerprint, side) aggregate for the window the
// Adaptive Optimizer just mined.
func (s *QualityStatsStore) Upsert(ctx context.Context, fingerprint string, side Side, samples int, winRate, avgPnL, thresholdAdjustment decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO signal_quality_stats
		(signal_type, position_side, sample_count, win_rate, avg_pnl, threshold_adjustment, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE sample_count = VALUES(sample_count), win_rate = VALUES(win_rate),
		avg_pnl = VALUES(avg_pnl), threshold_adjustment = VALUES(threshold_adjustment), updated_at = VALUES(updated_at)`,
		fingerprint, string(side), samples, winRate, avgPnL, thresholdAdjustment, time.Now().UTC())
	if err != nil {
		return errs.New(errs.TransientInfra, "qualitystats.Upsert", err)
	}
	return nil
}

// All returns every persisted row, used to rehydrate decision.QualityManager
// on process start (before the first daily optimizer run has a chance to).
func (s *QualityStatsStore) All(ctx context.Context) ([]FingerprintOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT signal_type, position_side, sample_count, win_rate, avg_pnl FROM signal_quality_stats`)
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "qualitystats.All", err)
	}
	defer rows.Close()
	var out []FingerprintOutcome
	for rows.Next() {
		var o FingerprintOutcome
		var side string
		if err := rows.Scan(&o.Fingerprint, &side, &o.Samples, &o.WinRate, &o.AvgPnL); err != nil {
			return nil, errs.New(errs.TransientInfra, "qualitystats.All.scan", err)
		}
		o.Side = Side(side)
		out = append(out, o)
	}
	return out, rows.Err()
}
