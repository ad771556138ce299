package regime

import (
	"context"
	"fmt"
	"time"

	"ApexCore/internal/errs"
	"ApexCore/store"
)

// Switcher is the Mode Switcher (spec.md §4.5): consults the Big4 signal
// and the Range Detector, and persists a mode transition only when the
// classification has persisted across a confirmation window, the
// per-switch cooldown has elapsed, and the account has no in-flight
// building positions (spec.md §8 property 8).
type Switcher struct {
	modes     *store.ModeStore
	positions *store.PositionStore
	rangeDet  *RangeDetector
	big4      *Detector

	confirmationWindow time.Duration
	cooldown           time.Duration

	// confirmation tracking: consecutive observations of a pending mode.
	pendingMode string
	pendingSince time.Time
}

func NewSwitcher(modes *store.ModeStore, positions *store.PositionStore, rangeDet *RangeDetector, big4 *Detector) *Switcher {
	return &Switcher{
		modes:              modes,
		positions:          positions,
		rangeDet:           rangeDet,
		big4:               big4,
		confirmationWindow: 30 * time.Minute,
		cooldown:           1 * time.Hour,
	}
}

// Evaluate runs one mode-switch evaluation tick for (accountID,
// tradingType, benchmarkSymbol). It is a no-op (returns nil, nil) when no
// switch is warranted.
func (s *Switcher) Evaluate(ctx context.Context, accountID, tradingType, benchmarkSymbol string) (*store.ModeState, error) {
	classification, err := s.rangeDet.Classify(ctx, benchmarkSymbol)
	if err != nil {
		return nil, err
	}

	current, err := s.modes.Get(ctx, accountID, tradingType)
	if err != nil {
		current = &store.ModeState{AccountID: accountID, TradingType: tradingType, Mode: store.ModeTrend, SwitchedAt: time.Now().UTC()}
	}

	if string(current.Mode) == classification.Mode {
		s.pendingMode = ""
		return nil, nil
	}

	now := time.Now().UTC()
	if s.pendingMode != classification.Mode {
		s.pendingMode = classification.Mode
		s.pendingSince = now
		return nil, nil // start the confirmation window; do not switch yet
	}
	if now.Sub(s.pendingSince) < s.confirmationWindow {
		return nil, nil // still confirming
	}
	if now.Sub(current.SwitchedAt) < s.cooldown {
		return nil, nil // per-switch cooldown not elapsed
	}

	return s.commit(ctx, accountID, tradingType, classification)
}

// ManualOverride forces a mode transition, bypassing confirmation but not
// cooldown (spec.md §4.5).
func (s *Switcher) ManualOverride(ctx context.Context, accountID, tradingType string, mode store.TradingMode, reason string) (*store.ModeState, error) {
	current, err := s.modes.Get(ctx, accountID, tradingType)
	if err == nil && time.Since(current.SwitchedAt) < s.cooldown {
		return nil, errs.New(errs.RiskReject, "mode.ManualOverride", fmt.Errorf("cooldown not elapsed since last switch"))
	}
	return s.commit(ctx, accountID, tradingType, Classification{Mode: string(mode), Reason: "manual override: " + reason})
}

func (s *Switcher) commit(ctx context.Context, accountID, tradingType string, classification Classification) (*store.ModeState, error) {
	building, err := s.positions.AllOpenOrBuilding(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, p := range building {
		if p.Status == store.StatusBuilding {
			return nil, errs.New(errs.RiskReject, "mode.commit", fmt.Errorf("cannot switch mode with in-flight building positions"))
		}
	}

	result := s.big4.Detect(ctx)
	next := store.ModeState{
		AccountID:        accountID,
		TradingType:      tradingType,
		Mode:             store.TradingMode(classification.Mode),
		LastReason:       classification.Reason,
		TriggeringSignal: string(result.OverallSignal),
	}
	if err := s.modes.Switch(ctx, next); err != nil {
		return nil, err
	}
	s.pendingMode = ""
	return &next, nil
}
