package strategy

import (
	"ApexCore/decision"
	"ApexCore/store"
)

// TrendModule is the trend-follow/breakout strategy: the default, always-
// enabled generator. It only produces plans in trend mode (spec.md §4.5
// "range mode forbids entries"); in range mode it rejects every
// candidate so exits keep running but no new trend-follow positions open.
type TrendModule struct {
	// BatchEntryEnabled mirrors the config flag; batched entry is only
	// used for non-reversal, non-range-strategy signals in trend mode
	// (spec.md §4.7b).
	BatchEntryEnabled bool
}

func NewTrendModule(batchEntryEnabled bool) *TrendModule {
	return &TrendModule{BatchEntryEnabled: batchEntryEnabled}
}

func (m *TrendModule) Plan(cand *decision.Candidate, mode store.TradingMode) EntryPlan {
	if mode != store.ModeTrend {
		return EntryPlan{Candidate: cand, Style: StyleRejected, Reason: "range mode forbids new trend-follow entries"}
	}

	// The exclusive breakout component always enters immediately: its
	// whole premise is reacting to a move already in progress.
	if cand.BreakoutInfo != "" {
		return EntryPlan{Candidate: cand, Style: StyleImmediate, Reason: "strong breakout: immediate entry"}
	}

	if m.BatchEntryEnabled {
		return EntryPlan{Candidate: cand, Style: StyleBatched, Reason: "trend mode, non-reversal signal: batched entry"}
	}
	return EntryPlan{Candidate: cand, Style: StyleImmediate, Reason: "batch entry disabled: immediate entry"}
}
