package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ApexCore/internal/errs"
)

// DecisionCycle is the audit-trail row persisted once per scan cycle,
// grounded on the teacher's store.DecisionRecord/DecisionAction pattern
// and added here to satisfy spec.md §7's "operators observe ... the
// persisted audit trail" requirement (SPEC_FULL §9 supplement).
type DecisionCycle struct {
	ID           string
	AccountID    string
	StartedAt    time.Time
	Candidates   string // JSON-encoded list of symbols/scores considered
	ActionsTaken string // JSON-encoded list of executed actions
	Notes        string
}

// DecisionCycleStore persists decision_cycles rows.
type DecisionCycleStore struct{ db *DB }

func NewDecisionCycleStore(db *DB) *DecisionCycleStore { return &DecisionCycleStore{db: db} }

func (s *DecisionCycleStore) Record(ctx context.Context, c DecisionCycle) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO decision_cycles (id, account_id, started_at, candidates, actions_taken, notes)
		VALUES (?, ?, ?, ?, ?, ?)`, c.ID, c.AccountID, c.StartedAt.UTC(), c.Candidates, c.ActionsTaken, c.Notes)
	if err != nil {
		return errs.New(errs.TransientInfra, "decisioncycle.Record", err)
	}
	return nil
}
