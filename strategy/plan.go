// Package strategy turns a Signal Decision Brain candidate into an entry
// plan: immediate vs batched, and whether the candidate is eligible at
// all under the current market mode (spec.md §4.7, §4.5).
package strategy

import (
	"ApexCore/decision"
	"ApexCore/store"
)

// EntryStyle selects how the Entry Executor fills the position.
type EntryStyle string

const (
	StyleImmediate EntryStyle = "immediate"
	StyleBatched    EntryStyle = "batched"
	StyleRejected   EntryStyle = "rejected"
)

// EntryPlan is a strategy module's verdict for one candidate.
type EntryPlan struct {
	Candidate *decision.Candidate
	Style     EntryStyle
	Reason    string
}

// Module is implemented by each strategy family (trend-follow/breakout,
// mean-reversion). The scan cycle picks one module per cycle from the
// Mode Switcher's current mode; synchronized-reversal blocks are applied
// earlier, inside the Brain.
type Module interface {
	Plan(cand *decision.Candidate, mode store.TradingMode) EntryPlan
}
