package trader

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/decision"
	"ApexCore/internal/errs"
	"ApexCore/internal/logger"
	"ApexCore/market"
	"ApexCore/metrics"
	"ApexCore/regime"
	"ApexCore/store"
)

// Close reason strings, persisted verbatim in order/trade notes (spec.md
// §4.8, scenarios C/D/F use these as literal expected outcomes).
const (
	ReasonStopLoss      = "止损"
	ReasonTakeProfit    = "止盈"
	ReasonPartialLadder = "止盈-阶梯"
	ReasonTrailingStop  = "移动止盈"
	ReasonTimeout       = "超时"
	ReasonReversalPrefix = "反向信号: "
	ReasonEmergencyPrefix = "EMERGENCY: "
	ReasonOppositeBreakout = "反向平仓: breakout_strong"
)

// LadderStep is one partial take-profit band (spec.md §4.8.3).
type LadderStep struct {
	PnLPct        decimal.Decimal
	CloseFraction decimal.Decimal
}

// ExitConfig toggles the optional smart-exit behaviors (SmartExitEnabled
// in internal/config), mirroring spec.md §6 "smart_exit flag".
type ExitConfig struct {
	SmartExitEnabled        bool
	Ladder                  []LadderStep
	TrailingActivationPct   decimal.Decimal
	TrailingDistancePct     decimal.Decimal
	MonitorInterval         time.Duration
	MinResidualMarginUSDT   decimal.Decimal
	FeeRate                 decimal.Decimal
	ReversalScoreThreshold  decimal.Decimal
	RangeModeTimeoutCap     time.Duration
}

// DefaultExitConfig mirrors the teacher's built-in constants, adapted to
// spec.md §4.8's ladder/trailing/timeout defaults.
func DefaultExitConfig(smartExit bool) ExitConfig {
	return ExitConfig{
		SmartExitEnabled: smartExit,
		Ladder: []LadderStep{
			{PnLPct: decimal.NewFromInt(2), CloseFraction: decimal.NewFromFloat(0.5)},
			{PnLPct: decimal.NewFromInt(4), CloseFraction: decimal.NewFromFloat(0.3)},
		},
		TrailingActivationPct:  decimal.NewFromInt(3),
		TrailingDistancePct:    decimal.NewFromInt(1),
		MonitorInterval:        5 * time.Second,
		MinResidualMarginUSDT:  decimal.NewFromInt(minResidualMarginUSDT),
		FeeRate:                decimal.NewFromFloat(0.0004),
		ReversalScoreThreshold: decimal.NewFromInt(45),
		RangeModeTimeoutCap:    4 * time.Hour,
	}
}

// QualityUpdater is implemented by decision.QualityManager's data source:
// the Exit Optimizer reports every full close so the Adaptive Optimizer's
// next run (and, for immediate feedback, the quality snapshot) can react.
// In this engine the optimizer itself mines closed trades directly, so the
// Exit Optimizer's obligation is only to persist the order/trade rows —
// this interface exists for callers (e.g. tests) that want a notification
// hook without depending on the optimizer package.
type QualityUpdater interface {
	OnClose(symbol string, fingerprint string, side store.Side, won bool, pnl decimal.Decimal)
}

// ModeSource supplies the current trading mode, which clamps the timeout
// cap (spec.md §4.8.6: "range mode uses a shorter cap").
type ModeSource interface {
	CurrentMode(ctx context.Context, accountID, tradingType string) store.TradingMode
}

// ExitOptimizer is the Exit Optimizer (spec.md §4.8): the single source
// of truth for closes. It runs one monitor goroutine per open/building
// position, mirroring the teacher's vwapCollectors map/mutex pattern
// (SPEC_FULL §5), and a supervisor that reconciles the monitor set
// against the database.
type ExitOptimizer struct {
	positions *store.PositionStore
	gateway   *market.Gateway
	brain     *decision.Brain
	big4      *regime.Detector
	modes     ModeSource
	quality   QualityUpdater
	accountID string
	cfg       ExitConfig

	mu       sync.Mutex
	monitors map[string]context.CancelFunc
	peaks    map[string]decimal.Decimal // positionID -> best favorable price since trailing activated

	forceClose chan regime.ForceCloseRequest

	emergencyBlocked func(side store.Side) bool
}

func NewExitOptimizer(positions *store.PositionStore, gateway *market.Gateway, brain *decision.Brain,
	big4 *regime.Detector, modes ModeSource, quality QualityUpdater, accountID string, cfg ExitConfig) *ExitOptimizer {
	return &ExitOptimizer{
		positions:  positions,
		gateway:    gateway,
		brain:      brain,
		big4:       big4,
		modes:      modes,
		quality:    quality,
		accountID:  accountID,
		cfg:        cfg,
		monitors:   make(map[string]context.CancelFunc),
		peaks:      make(map[string]decimal.Decimal),
		forceClose: make(chan regime.ForceCloseRequest, 16),
	}
}

// SetEmergencyBlocked wires the Risk & Emergency Layer's combined
// circuit-breaker predicate. Emergency forced closes are not gated by it;
// it is only passed through to decision.Brain when the optimizer
// evaluates a reversal-exit candidate.
func (e *ExitOptimizer) SetEmergencyBlocked(fn func(side store.Side) bool) {
	e.emergencyBlocked = fn
}

// PublishForceClose queues a force-close request for one side on the
// channel the monitor goroutines read. Each request is received by a
// single monitor, which closes its own position only if the side
// matches; RunEmergencyTick is the path that closes every open position
// on a side. This is the event-channel replacement for the source's
// brain-to-trader back-pointer (SPEC_FULL §9 Design Notes).
func (e *ExitOptimizer) PublishForceClose(req regime.ForceCloseRequest) {
	select {
	case e.forceClose <- req:
	default:
		logger.Warnf("exit: force-close channel full, dropping request for side %s", req.Side)
	}
}

// Register starts a monitor goroutine for positionID if one is not
// already running (spec.md §5: monitor tasks are peers of the scanner).
func (e *ExitOptimizer) Register(positionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.monitors[positionID]; ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.monitors[positionID] = cancel
	go e.monitor(ctx, positionID)
}

// unregister removes positionID from the monitor set. Called by the
// monitor itself once the position observes status=closed.
func (e *ExitOptimizer) unregister(positionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.monitors[positionID]; ok {
		cancel()
		delete(e.monitors, positionID)
	}
	delete(e.peaks, positionID)
}

// monitored returns the current set of monitored position IDs, used by
// the supervisor.
func (e *ExitOptimizer) monitored() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]bool, len(e.monitors))
	for id := range e.monitors {
		out[id] = true
	}
	return out
}

// monitor is the per-position evaluation loop (spec.md §4.8): seconds
// cadence, evaluates exit conditions in order, and also drains
// force-close requests matching this position's side.
func (e *ExitOptimizer) monitor(ctx context.Context, positionID string) {
	interval := e.cfg.MonitorInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.forceClose:
			e.handleForceClose(ctx, positionID, req)
		case <-ticker.C:
			if e.evaluateOnce(ctx, positionID) {
				return
			}
		}
	}
}

// handleForceClose closes positionID if it matches req.Side. A request
// read from the shared channel is consumed by this monitor alone and is
// not re-queued for other monitors; closing every position on a side
// goes through RunEmergencyTick instead.
func (e *ExitOptimizer) handleForceClose(ctx context.Context, positionID string, req regime.ForceCloseRequest) {
	p, err := e.positions.Get(ctx, positionID)
	if err != nil || p.Status == store.StatusClosed || p.Side != req.Side {
		return
	}
	price, _, err := e.gateway.GetPrice(ctx, p.Symbol)
	if err != nil {
		logger.Warnf("exit: emergency close for %s aborted, no price: %v", p.Symbol, err)
		return
	}
	e.close(ctx, p, price, ReasonEmergencyPrefix+req.Reason, decimal.NewFromInt(1))
}

// RunEmergencyTick is called by the scanner/risk layer once per main
// scan to force-close every open position on req.Side (spec.md §4.4,
// §8 property 6), independent of each monitor's private channel.
func (e *ExitOptimizer) RunEmergencyTick(ctx context.Context, req regime.ForceCloseRequest) {
	positions, err := e.positions.AllOpenOrBuilding(ctx, e.accountID)
	if err != nil {
		logger.Errorf("exit: emergency tick failed to list positions: %v", err)
		return
	}
	for _, p := range positions {
		if p.Side != req.Side {
			continue
		}
		price, _, err := e.gateway.GetPrice(ctx, p.Symbol)
		if err != nil {
			logger.Warnf("exit: emergency close for %s aborted, no price: %v", p.Symbol, err)
			continue
		}
		e.close(ctx, p, price, ReasonEmergencyPrefix+req.Reason, decimal.NewFromInt(1))
	}
}

// evaluateOnce runs one tick of the ordered exit-condition chain for one
// position. Returns true if the monitor should stop (position closed or
// no longer found).
func (e *ExitOptimizer) evaluateOnce(ctx context.Context, positionID string) bool {
	p, err := e.positions.Get(ctx, positionID)
	if err != nil {
		if errs.Is(err, errs.ContractViolation) {
			e.unregister(positionID)
			return true
		}
		logger.Warnf("exit: monitor %s failed to load position: %v", positionID, err)
		return false
	}
	if p.Status == store.StatusClosed {
		e.unregister(positionID)
		return true
	}
	if p.Status == store.StatusBuilding {
		return false // batched entry still accumulating; nothing to exit yet
	}

	price, _, err := e.gateway.GetPrice(ctx, p.Symbol)
	if err != nil {
		return false // StaleData: skip this tick, retry next (spec.md §4.1)
	}

	// 1. hard stop-loss
	if crossedStop(p, price) {
		e.close(ctx, p, price, ReasonStopLoss, decimal.NewFromInt(1))
		return false
	}

	// 2. take-profit
	if crossedTakeProfit(p, price) {
		e.close(ctx, p, price, ReasonTakeProfit, decimal.NewFromInt(1))
		return false
	}

	pnlPct := positionPnLPct(p, price)
	unrealized, _ := pnlPct.Mul(p.Margin).Div(decimal.NewFromInt(100)).Float64()
	metrics.UpdatePositionMetrics(p.AccountID, p.Symbol, string(p.Side), unrealized, time.Since(p.OpenTime).Seconds())

	if e.cfg.SmartExitEnabled {
		// 3. partial take-profit ladder
		if frac, ok := e.ladderStep(positionID, pnlPct); ok {
			e.close(ctx, p, price, ReasonPartialLadder, frac)
			return false
		}

		// 4. trailing stop after threshold profit
		if e.trailingTriggered(p, price, pnlPct) {
			e.close(ctx, p, price, ReasonTrailingStop, decimal.NewFromInt(1))
			return false
		}
	}

	// 5. reversal exit
	if e.brain != nil {
		if cand := e.checkReversalSignal(ctx, p); cand != nil {
			e.close(ctx, p, price, ReasonReversalPrefix+cand.Fingerprint, decimal.NewFromInt(1))
			return false
		}
	}

	// 6. timeout
	timeoutAt := p.TimeoutAt
	if e.modes != nil && e.modes.CurrentMode(ctx, p.AccountID, "futures") == store.ModeRange {
		cap := p.OpenTime.Add(e.cfg.RangeModeTimeoutCap)
		if cap.Before(timeoutAt) {
			timeoutAt = cap
		}
	}
	if !time.Now().UTC().Before(timeoutAt) {
		e.close(ctx, p, price, ReasonTimeout, decimal.NewFromInt(1))
		return false
	}

	return false
}

func crossedStop(p *store.Position, price decimal.Decimal) bool {
	if p.Side == store.Long {
		return price.LessThanOrEqual(p.StopLossPrice)
	}
	return price.GreaterThanOrEqual(p.StopLossPrice)
}

func crossedTakeProfit(p *store.Position, price decimal.Decimal) bool {
	if p.Side == store.Long {
		return price.GreaterThanOrEqual(p.TakeProfitPrice)
	}
	return price.LessThanOrEqual(p.TakeProfitPrice)
}

// positionPnLPct is the unrealized P&L as a percentage of margin, the
// basis for the ladder bands and the trailing-stop activation threshold.
func positionPnLPct(p *store.Position, price decimal.Decimal) decimal.Decimal {
	if p.Margin.IsZero() {
		return decimal.Zero
	}
	var pnl decimal.Decimal
	if p.Side == store.Long {
		pnl = price.Sub(p.AvgEntryPrice).Mul(p.Quantity)
	} else {
		pnl = p.AvgEntryPrice.Sub(price).Mul(p.Quantity)
	}
	return pnl.Div(p.Margin).Mul(decimal.NewFromInt(100))
}

// ladderStep finds the next unreached ladder band for positionID. Bands
// are consumed in order by tracking a high-water mark in e.peaks keyed
// "ladder:<id>" as a cheap in-memory cursor (spec.md §4.8.3: "optional").
func (e *ExitOptimizer) ladderStep(positionID string, pnlPct decimal.Decimal) (decimal.Decimal, bool) {
	e.mu.Lock()
	reached := e.peaks["ladder:"+positionID]
	e.mu.Unlock()

	for _, step := range e.cfg.Ladder {
		if step.PnLPct.LessThanOrEqual(reached) {
			continue
		}
		if pnlPct.GreaterThanOrEqual(step.PnLPct) {
			e.mu.Lock()
			e.peaks["ladder:"+positionID] = step.PnLPct
			e.mu.Unlock()
			return step.CloseFraction, true
		}
		break // bands are ascending; stop at the first not-yet-reached one
	}
	return decimal.Zero, false
}

// trailingTriggered ratchets a peak favorable price once pnlPct crosses
// the activation threshold, then fires once price retraces by the
// configured distance from that peak (spec.md §4.8.4).
func (e *ExitOptimizer) trailingTriggered(p *store.Position, price, pnlPct decimal.Decimal) bool {
	key := "trail:" + p.ID
	e.mu.Lock()
	peak, tracked := e.peaks[key]
	if !tracked && pnlPct.LessThan(e.cfg.TrailingActivationPct) {
		e.mu.Unlock()
		return false
	}
	if !tracked || (p.Side == store.Long && price.GreaterThan(peak)) || (p.Side == store.Short && price.LessThan(peak)) {
		e.peaks[key] = price
		peak = price
	}
	e.mu.Unlock()

	if p.Side == store.Long {
		retrace := peak.Sub(price).Div(peak).Mul(decimal.NewFromInt(100))
		return retrace.GreaterThanOrEqual(e.cfg.TrailingDistancePct)
	}
	retrace := price.Sub(peak).Div(peak).Mul(decimal.NewFromInt(100))
	return retrace.GreaterThanOrEqual(e.cfg.TrailingDistancePct)
}

// checkReversalSignal asks the Brain whether the opposite side now
// qualifies as a candidate with sufficient strength to exit early
// (spec.md §4.8.5). A nil brain disables this check entirely.
func (e *ExitOptimizer) checkReversalSignal(ctx context.Context, p *store.Position) *decision.Candidate {
	opposite := p.Side.Opposite()
	rating := store.SymbolRating{Symbol: p.Symbol, MarginMultiplier: decimal.NewFromInt(1)}
	var reversals regime.ReversalState
	if e.big4 != nil {
		reversals = e.big4.Reversals()
	}
	cand, err := e.brain.Evaluate(ctx, e.accountID, rating, reversals, e.emergencyBlocked)
	if err != nil || cand == nil {
		return nil
	}
	if cand.Side != opposite {
		return nil
	}
	if cand.Score.LessThan(e.cfg.ReversalScoreThreshold) {
		return nil
	}
	return cand
}

// close performs the full-or-partial close through store.PositionStore
// and reports the outcome to the QualityUpdater on full close (spec.md
// §4.8: "on full close — updates the quality statistics").
func (e *ExitOptimizer) close(ctx context.Context, p *store.Position, price decimal.Decimal, reason string, fraction decimal.Decimal) {
	fee := p.Quantity.Mul(fraction).Mul(price).Mul(e.cfg.FeeRate)
	result, err := e.positions.Close(ctx, p.ID, price, fraction, reason, fee, e.cfg.MinResidualMarginUSDT)
	if err != nil {
		logger.Errorf("exit: close %s failed: %v", p.ID, err)
		return
	}
	if result == nil {
		return // idempotent no-op: already closed (spec.md §8 property 7)
	}
	logger.Infof("exit: closed %s %s fraction=%s reason=%s pnl=%s", p.Symbol, p.Side, fraction, reason, result.RealizedPnL)
	metrics.RecordClose(p.AccountID, reason)
	if result.FullyClosed {
		e.unregister(p.ID)
		metrics.ClearPositionMetrics(p.AccountID, p.Symbol, string(p.Side))
		metrics.RecordTrade(p.AccountID, result.RealizedPnL.IsPositive())
		if e.quality != nil {
			e.quality.OnClose(p.Symbol, p.EntrySignalType, p.Side, result.RealizedPnL.IsPositive(), result.RealizedPnL)
		}
	}
}

// CloseOpposite fully closes an opposite-side position ahead of a strong
// breakout entry on the same symbol (spec.md §4.6/§154).
func (e *ExitOptimizer) CloseOpposite(ctx context.Context, p *store.Position, price decimal.Decimal) {
	e.close(ctx, p, price, ReasonOppositeBreakout, decimal.NewFromInt(1))
}

// Supervise implements spec.md §4.8's health supervision: it verifies the
// monitored position-ID set equals the non-closed position rows and that
// no position has passed timeout_at without action. On mismatch it
// cancels and respawns every monitor from the database (spec.md §8
// property 4).
func (e *ExitOptimizer) Supervise(ctx context.Context) error {
	dbPositions, err := e.positions.AllOpenOrBuilding(ctx, e.accountID)
	if err != nil {
		return err
	}
	want := make(map[string]*store.Position, len(dbPositions))
	for _, p := range dbPositions {
		want[p.ID] = p
	}
	have := e.monitored()

	mismatch := len(want) != len(have)
	if !mismatch {
		for id := range want {
			if !have[id] {
				mismatch = true
				break
			}
		}
	}

	overdue := false
	now := time.Now().UTC()
	for _, p := range dbPositions {
		if p.Status == store.StatusOpen && now.Sub(p.TimeoutAt) > e.cfg.MonitorInterval {
			overdue = true
			break
		}
	}

	if !mismatch && !overdue {
		return nil
	}

	logger.Warnf("exit: supervisor reconciling monitors (mismatch=%v overdue=%v): %d wanted, %d running",
		mismatch, overdue, len(want), len(have))

	e.mu.Lock()
	for id, cancel := range e.monitors {
		cancel()
		delete(e.monitors, id)
	}
	e.mu.Unlock()

	for id := range want {
		e.Register(id)
	}
	return nil
}
