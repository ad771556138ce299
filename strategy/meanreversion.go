package strategy

import (
	"ApexCore/decision"
	"ApexCore/store"
)

// MeanReversionModule is the range-market strategy family: present and
// fully implementable, but gated off by default (SPEC_FULL §9 Open
// Question 2 — "keep the strategy implementable but gated off by
// default", mirroring the source's range-strategy module being disabled
// at the top of its main loop).
type MeanReversionModule struct {
	Enabled bool
}

func NewMeanReversionModule(enabled bool) *MeanReversionModule {
	return &MeanReversionModule{Enabled: enabled}
}

func (m *MeanReversionModule) Plan(cand *decision.Candidate, mode store.TradingMode) EntryPlan {
	if !m.Enabled {
		return EntryPlan{Candidate: cand, Style: StyleRejected, Reason: "range-mode entries disabled by configuration"}
	}
	if mode != store.ModeRange {
		return EntryPlan{Candidate: cand, Style: StyleRejected, Reason: "mean-reversion only considered in range mode"}
	}
	// Mean-reversion entries are always immediate: batching a fade trade
	// across a bounded range defeats its own premise (spec.md §4.7b
	// restricts batched entry to trend mode).
	return EntryPlan{Candidate: cand, Style: StyleImmediate, Reason: "range mode: immediate mean-reversion entry"}
}
