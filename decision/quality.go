package decision

import (
	"sync"

	"github.com/shopspring/decimal"

	"ApexCore/store"
)

// QualityManager is the "quality filter" of spec.md §3 / GLOSSARY: a
// per-(fingerprint, side) threshold adjustment derived from realized
// performance, allowed to raise but never lower the base entry threshold.
// It implements the Brain's QualitySource via a snapshot swapped
// atomically by the Adaptive Optimizer after each daily run.
type QualityManager struct {
	mu        sync.RWMutex
	snapshot  map[string]decimal.Decimal // "fingerprint|side" -> adjustment
}

func NewQualityManager() *QualityManager {
	return &QualityManager{snapshot: map[string]decimal.Decimal{}}
}

// ThresholdAdjustment implements QualitySource.
func (q *QualityManager) ThresholdAdjustment(fingerprint string, side store.Side) decimal.Decimal {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.snapshot[fingerprint+"|"+string(side)]
}

// minSamplesForAdjustment gates how many realized trades a fingerprint
// needs before its win rate is trusted enough to move the threshold.
const (
	minSamplesForAdjustment = 10
	poorWinRateThreshold    = 35 // percent
	adjustmentStep          = 10
)

// Reload replaces the snapshot from a window of realized outcomes
// (store.FingerprintOutcome), raising the threshold for signals with poor
// historical win rates. Never lowers below zero adjustment.
func (q *QualityManager) Reload(outcomes []store.FingerprintOutcome) {
	next := make(map[string]decimal.Decimal, len(outcomes))
	for _, o := range outcomes {
		if o.Samples < minSamplesForAdjustment {
			continue
		}
		if o.WinRate.LessThan(decimal.NewFromInt(poorWinRateThreshold)) {
			next[o.Fingerprint+"|"+string(o.Side)] = decimal.NewFromInt(adjustmentStep)
		}
	}
	q.mu.Lock()
	q.snapshot = next
	q.mu.Unlock()
}
