package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/internal/errs"
	"ApexCore/internal/logger"
	"ApexCore/market"
	"ApexCore/regime"
	"ApexCore/store"
)

const (
	baseThreshold  = 35
	cooldownWindow = 15 * time.Minute
)

// Candidate is the Brain's output for one symbol (spec.md §4.6): a
// chosen side, score, and the retained fingerprint components.
type Candidate struct {
	Symbol        string
	Side          store.Side
	Score         decimal.Decimal
	CurrentPrice  decimal.Decimal
	Components    []string
	Fingerprint   string
	BreakoutInfo  string // non-empty when the exclusive breakout component fired
	// BreakoutAnchorPrice is the 24h high (LONG) or low (SHORT) that was
	// broken, set only when BreakoutInfo is non-empty. The Entry Executor
	// anchors the stop-loss here instead of a percentage offset (spec.md
	// §4.6).
	BreakoutAnchorPrice decimal.Decimal
}

// Config toggles the feature-flagged filters (SPEC_FULL §9 Open Questions
// 1-2): anti-FOMO is preserved but relaxed by default; range-mode entries
// stay gated off at the strategy layer, not here.
type Config struct {
	AntiFOMOEnabled bool
}

// Brain is the Signal Decision Brain.
type Brain struct {
	klines    *market.KlineAccessor
	gateway   *market.Gateway
	ratings   *store.RatingStore
	weights   *store.WeightsStore
	blacklist *store.BlacklistStore
	positions *store.PositionStore
	big4      *regime.Detector
	quality   QualitySource
	control   *store.ControlStore
	cfg       Config
}

// QualitySource supplies the per-(fingerprint, side) threshold adjustment
// the quality manager raises for poorly-performing signals (spec.md §3
// "Signal Quality Statistics").
type QualitySource interface {
	ThresholdAdjustment(fingerprint string, side store.Side) decimal.Decimal
}

func NewBrain(klines *market.KlineAccessor, gateway *market.Gateway, ratings *store.RatingStore,
	weights *store.WeightsStore, blacklist *store.BlacklistStore, positions *store.PositionStore,
	big4 *regime.Detector, quality QualitySource, control *store.ControlStore, cfg Config) *Brain {
	return &Brain{klines: klines, gateway: gateway, ratings: ratings, weights: weights,
		blacklist: blacklist, positions: positions, big4: big4, quality: quality, control: control, cfg: cfg}
}

// Whitelist returns every symbol the Brain is allowed to consider this
// scan (rating level < Forbidden), per spec.md §4.6.
func (b *Brain) Whitelist(ctx context.Context) ([]store.SymbolRating, error) {
	return b.ratings.Whitelist(ctx)
}

// Evaluate runs the full scoring and filter chain for one symbol. A nil
// Candidate with a nil error means "no signal" (not every symbol
// produces a candidate every scan); a non-nil error of Kind RiskReject or
// StaleData also means "no candidate, logged and not retried this tick".
func (b *Brain) Evaluate(ctx context.Context, accountID string, rating store.SymbolRating, reversals regime.ReversalState, emergencyBlocked func(side store.Side) bool) (*Candidate, error) {
	if b.control != nil {
		enabled, err := b.control.Enabled(ctx, accountID, "futures")
		if err != nil {
			return nil, err
		}
		if !enabled {
			return nil, errs.New(errs.RiskReject, "brain.Evaluate", fmt.Errorf("%s: trading disabled by kill switch", rating.Symbol))
		}
	}

	price, _, err := b.gateway.GetPrice(ctx, rating.Symbol)
	if err != nil {
		return nil, err // StaleData: abort silently per spec.md §7
	}

	daily, err := b.klines.Get(ctx, rating.Symbol, "1d", 30)
	if err != nil {
		return nil, err
	}
	hourly, err := b.klines.Get(ctx, rating.Symbol, "1h", 72)
	if err != nil {
		return nil, err
	}
	m15, err := b.klines.Get(ctx, rating.Symbol, "15m", 48)
	if err != nil {
		return nil, err
	}
	if len(daily) < 30 || len(hourly) < 72 || len(m15) < 48 {
		return nil, errs.New(errs.StaleData, "brain.Evaluate", fmt.Errorf("insufficient history for %s", rating.Symbol))
	}

	frame := symbolFrame{Daily: daily, Hourly: hourly, M15: m15, Price: price}
	weights, err := b.weights.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	cand := b.score(frame, weights)
	if cand == nil {
		return nil, nil
	}
	cand.Symbol = rating.Symbol
	cand.CurrentPrice = price

	blacklist, err := b.blacklist.ActiveSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	return b.applyFilters(ctx, accountID, cand, frame, blacklist, reversals, emergencyBlocked)
}

// score computes the two parallel scores and picks the winning side,
// implementing the exclusive breakout short-circuit and the otherwise
// additive component sum (spec.md §4.6).
func (b *Brain) score(f symbolFrame, weights map[string]store.ScoringWeight) *Candidate {
	if bo, anchor, anchorPrice, ok := breakoutStrong(f); ok {
		return &Candidate{Side: bo.Side, Score: bo.Score, Components: []string{bo.Component}, BreakoutInfo: anchor, BreakoutAnchorPrice: anchorPrice}
	}

	var longScore, shortScore decimal.Decimal
	longComponents := map[string]bool{}
	shortComponents := map[string]bool{}

	record := func(cs []contribution) {
		for _, c := range cs {
			if c.Side == store.Long {
				longScore = longScore.Add(c.Score)
				longComponents[c.Component] = true
			} else {
				shortScore = shortScore.Add(c.Score)
				shortComponents[c.Component] = true
			}
		}
	}

	record(position72hRange(f, weights))
	record(momentum24h(f, weights))
	record(trend1h(f, weights))
	if vol, ok := volatility24h(f, weights); ok {
		record(vol)
	}
	record(consecutive10hBias(f, weights))
	record(volumeWeightedPower(f, weights))
	record(breakoutThrough(f, weights))

	side := store.Long
	score := longScore
	components := longComponents
	if shortScore.GreaterThan(longScore) {
		side = store.Short
		score = shortScore
		components = shortComponents
	}
	if score.IsZero() {
		return nil
	}

	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	return &Candidate{Side: side, Score: score, Components: names}
}

// applyFilters runs the ordered gate chain after side selection (spec.md
// §4.6 steps 1-8).
func (b *Brain) applyFilters(ctx context.Context, accountID string, cand *Candidate, f symbolFrame,
	blacklist map[string]bool, reversals regime.ReversalState, emergencyBlocked func(store.Side) bool) (*Candidate, error) {

	// step 2: direction-contradiction filter, recompute fingerprint
	retained := cand.Components[:0:0]
	for _, c := range cand.Components {
		if !opposesSide(c, cand.Side) {
			retained = append(retained, c)
		}
	}
	cand.Components = retained
	cand.Fingerprint = Fingerprint(retained)
	if cand.Fingerprint == "" {
		return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: fingerprint empty after contradiction filter", cand.Symbol))
	}

	// step 1: threshold gate, raised by the quality filter
	threshold := decimal.NewFromInt(baseThreshold)
	if b.quality != nil {
		threshold = threshold.Add(b.quality.ThresholdAdjustment(cand.Fingerprint, cand.Side))
	}
	if cand.Score.LessThan(threshold) {
		return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: score %s below threshold %s", cand.Symbol, cand.Score, threshold))
	}

	// step 3: signal blacklist
	if blacklist[cand.Fingerprint+"|"+string(cand.Side)] {
		return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: (%s,%s) blacklisted", cand.Symbol, cand.Fingerprint, cand.Side))
	}

	// step 4: timeframe-consistency filter (15m/1h via components already
	// retained above; 1d checked directly, neutral 1d allowed)
	if dailyTrend, ok := trend1d(f); ok {
		if cand.Side == store.Long && dailyTrend == CompTrend1dBear {
			return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: LONG against bearish 1d trend", cand.Symbol))
		}
		if cand.Side == store.Short && dailyTrend == CompTrend1dBull {
			return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: SHORT against bullish 1d trend", cand.Symbol))
		}
	}

	// step 5: position-high validation for SHORT (and mirror for LONG)
	if cand.Side == store.Short && !shortPositionHighValid(f) {
		return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: shorting into strength without corroborating weakness", cand.Symbol))
	}
	if cand.Side == store.Long && !longPositionLowValid(f) {
		return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: going long into weakness without corroborating strength", cand.Symbol))
	}

	// step 6: anti-FOMO filter, feature-flagged per SPEC_FULL §9 OQ1
	if b.cfg.AntiFOMOEnabled {
		window := lastNHourly(f.Hourly, 24)
		if len(window) >= 2 {
			high, low := rollingHighLow(window)
			spread := high.Sub(low)
			if !spread.IsZero() {
				pos := f.Price.Sub(low).Div(spread).Mul(decimal.NewFromInt(100))
				if cand.Side == store.Long && pos.GreaterThan(decimal.NewFromInt(80)) {
					return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: anti-FOMO, LONG above 80%% of 24h range", cand.Symbol))
				}
				if cand.Side == store.Short && pos.LessThan(decimal.NewFromInt(20)) {
					return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: anti-FOMO, SHORT below 20%% of 24h range", cand.Symbol))
				}
			}
		}
	}

	// step 7: cooldown
	last, err := b.positions.LastClosed(ctx, accountID, cand.Symbol, cand.Side)
	if err != nil {
		return nil, err
	}
	if last != nil && last.CloseTime != nil && time.Since(*last.CloseTime) < cooldownWindow {
		return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: 平仓后15分钟冷却期内", cand.Symbol))
	}

	// step 8: emergency blocks
	if cand.Side == store.Short && reversals.BottomShortBlocked(time.Now().UTC()) {
		return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: Big4同步触底反转, SHORT blocked", cand.Symbol))
	}
	if cand.Side == store.Long && reversals.TopLongBlocked(time.Now().UTC()) {
		return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: Big4同步顶部反转, LONG blocked", cand.Symbol))
	}
	if emergencyBlocked != nil && emergencyBlocked(cand.Side) {
		return nil, errs.New(errs.RiskReject, "brain.applyFilters", fmt.Errorf("%s: circuit-breaker active", cand.Symbol))
	}

	logger.Infof("brain: candidate %s %s score=%s fingerprint=%s", cand.Symbol, cand.Side, cand.Score, cand.Fingerprint)
	return cand, nil
}

// shortPositionHighValid requires corroborating evidence of weakening
// upward pressure before shorting into strength (spec.md §4.6.5):
// declining volume over the recent window and frequent upper shadows.
func shortPositionHighValid(f symbolFrame) bool {
	window := lastNHourly(f.Hourly, 10)
	if len(window) < 10 {
		return true // insufficient data to corroborate is not itself a rejection
	}
	firstHalfVol := market.SMA(volumesOf(window[:5]), 5)
	secondHalfVol := market.SMA(volumesOf(window[5:]), 5)
	decliningVolume := secondHalfVol.LessThan(firstHalfVol)

	upperShadowCount := 0
	for _, c := range window {
		body := c.Close.Sub(c.Open).Abs()
		upperShadow := c.High.Sub(decimalMax(c.Open, c.Close))
		if body.IsPositive() && upperShadow.GreaterThan(body) {
			upperShadowCount++
		}
	}
	return decliningVolume || upperShadowCount >= 3
}

// longPositionLowValid is the mirror of shortPositionHighValid.
func longPositionLowValid(f symbolFrame) bool {
	window := lastNHourly(f.Hourly, 10)
	if len(window) < 10 {
		return true
	}
	firstHalfVol := market.SMA(volumesOf(window[:5]), 5)
	secondHalfVol := market.SMA(volumesOf(window[5:]), 5)
	decliningVolume := secondHalfVol.LessThan(firstHalfVol)

	lowerShadowCount := 0
	for _, c := range window {
		body := c.Close.Sub(c.Open).Abs()
		lowerShadow := decimalMin(c.Open, c.Close).Sub(c.Low)
		if body.IsPositive() && lowerShadow.GreaterThan(body) {
			lowerShadowCount++
		}
	}
	return decliningVolume || lowerShadowCount >= 3
}

func decimalMax(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func decimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
