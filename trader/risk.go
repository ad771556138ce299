package trader

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/internal/logger"
	"ApexCore/market"
	"ApexCore/metrics"
	"ApexCore/regime"
	"ApexCore/store"
)

// RiskConfig holds the Risk & Emergency Layer's two circuit-breaker
// thresholds (spec.md §4.9).
type RiskConfig struct {
	FloatingLossThreshold decimal.Decimal // negative USDT; breached when floating P&L <= this
	FloatingLossBlock     time.Duration
	ConsecutiveStopLosses int // K
	ConsecutiveWindow     int // N most recent close orders examined
	ConsecutiveBlock      time.Duration
}

// DefaultRiskConfig mirrors spec.md §4.9's named defaults.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		FloatingLossThreshold: decimal.NewFromInt(-600),
		FloatingLossBlock:     2 * time.Hour,
		ConsecutiveStopLosses: 5,
		ConsecutiveWindow:     10,
		ConsecutiveBlock:      2 * time.Hour,
	}
}

// RiskLayer is the Risk & Emergency Layer (spec.md §4.9): it aggregates
// the two circuit breakers into a single emergencyBlocked(side) predicate
// consumed by decision.Brain and forwards synchronized-reversal
// force-close requests from the Big4 detector to the Exit Optimizer.
type RiskLayer struct {
	positions *store.PositionStore
	orders    *store.OrderStore
	gateway   *market.Gateway
	big4      *regime.Detector
	exit      *ExitOptimizer
	accountID string
	cfg       RiskConfig

	mu                 sync.RWMutex
	floatingBlockUntil time.Time
	consecBlockUntil   time.Time
}

func NewRiskLayer(positions *store.PositionStore, orders *store.OrderStore, gateway *market.Gateway,
	big4 *regime.Detector, exit *ExitOptimizer, accountID string, cfg RiskConfig) *RiskLayer {
	return &RiskLayer{positions: positions, orders: orders, gateway: gateway, big4: big4, exit: exit, accountID: accountID, cfg: cfg}
}

// Blocked implements decision.QualitySource-shaped callback signature used
// by the Brain's step-8 emergency gate and the Exit Optimizer's reversal
// check: once either breaker trips, entries and reversal-driven exits on
// both sides are refused until the block window elapses (spec.md §4.9).
//
// Both breakers are symmetric: they block entries on both sides, since a
// floating-loss or stop-loss streak reflects a misreading of the whole
// market, not one direction (spec.md §4.9 "all new entries are blocked").
func (r *RiskLayer) Blocked(side store.Side) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	now := time.Now().UTC()
	return now.Before(r.floatingBlockUntil) || now.Before(r.consecBlockUntil)
}

// Tick runs one evaluation pass of both breakers plus the Big4 reversal
// sub-detector, to be called once per main scan cycle (spec.md §5).
func (r *RiskLayer) Tick(ctx context.Context) error {
	if err := r.checkFloatingLoss(ctx); err != nil {
		return err
	}
	if err := r.checkConsecutiveStopLosses(ctx); err != nil {
		return err
	}
	r.reportBreakerState()
	return r.checkReversals(ctx)
}

// reportBreakerState refreshes the active/inactive gauges every tick so a
// breaker's expiry is reflected even without a new trip (the Inc'd counter
// above only fires on the rising edge).
func (r *RiskLayer) reportBreakerState() {
	now := time.Now().UTC()
	r.mu.RLock()
	floatingActive := now.Before(r.floatingBlockUntil)
	consecActive := now.Before(r.consecBlockUntil)
	r.mu.RUnlock()
	metrics.CircuitBreakerActive.WithLabelValues(r.accountID, "floating_loss").Set(boolToFloat(floatingActive))
	metrics.CircuitBreakerActive.WithLabelValues(r.accountID, "consecutive_stop_loss").Set(boolToFloat(consecActive))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// checkFloatingLoss sums unrealized P&L across every open position and
// arms the block when it breaches the (negative) threshold.
func (r *RiskLayer) checkFloatingLoss(ctx context.Context) error {
	positions, err := r.positions.AllOpenOrBuilding(ctx, r.accountID)
	if err != nil {
		return err
	}
	var total decimal.Decimal
	for _, p := range positions {
		if p.Status != store.StatusOpen {
			continue
		}
		price, _, err := r.gateway.GetPrice(ctx, p.Symbol)
		if err != nil {
			continue // stale price for one symbol doesn't abort the aggregate
		}
		var pnl decimal.Decimal
		if p.Side == store.Long {
			pnl = price.Sub(p.AvgEntryPrice).Mul(p.Quantity)
		} else {
			pnl = p.AvgEntryPrice.Sub(price).Mul(p.Quantity)
		}
		total = total.Add(pnl)
	}

	if total.LessThanOrEqual(r.cfg.FloatingLossThreshold) {
		r.mu.Lock()
		alreadyArmed := time.Now().UTC().Before(r.floatingBlockUntil)
		r.floatingBlockUntil = time.Now().UTC().Add(r.cfg.FloatingLossBlock)
		r.mu.Unlock()
		if !alreadyArmed {
			logger.Warnf("risk: aggregate floating loss %s breached threshold %s, blocking entries for %s", total, r.cfg.FloatingLossThreshold, r.cfg.FloatingLossBlock)
			metrics.SetCircuitBreaker(r.accountID, "floating_loss", true)
		}
	}
	return nil
}

// checkConsecutiveStopLosses examines the most recent N close orders and
// arms the block when K or more of them are stop-loss closes.
func (r *RiskLayer) checkConsecutiveStopLosses(ctx context.Context) error {
	notes, err := r.orders.RecentCloseNotes(ctx, r.accountID, r.cfg.ConsecutiveWindow)
	if err != nil {
		return err
	}
	count := 0
	for _, n := range notes {
		if strings.Contains(n, ReasonStopLoss) {
			count++
		}
	}
	if count >= r.cfg.ConsecutiveStopLosses {
		r.mu.Lock()
		alreadyArmed := time.Now().UTC().Before(r.consecBlockUntil)
		r.consecBlockUntil = time.Now().UTC().Add(r.cfg.ConsecutiveBlock)
		r.mu.Unlock()
		if !alreadyArmed {
			logger.Warnf("risk: %d/%d recent closes were stop-losses, blocking entries for %s", count, r.cfg.ConsecutiveWindow, r.cfg.ConsecutiveBlock)
			metrics.SetCircuitBreaker(r.accountID, "consecutive_stop_loss", true)
		}
	}
	return nil
}

// checkReversals asks the Big4 detector for synchronized-reversal
// force-close requests and forwards them to the Exit Optimizer, which
// fans each one out to every matching open position in one pass.
func (r *RiskLayer) checkReversals(ctx context.Context) error {
	if r.big4 == nil || r.exit == nil {
		return nil
	}
	requests, err := r.big4.CheckReversals(ctx)
	if err != nil {
		return err
	}
	for _, req := range requests {
		metrics.RecordReversalBlock(string(req.Side))
		r.exit.RunEmergencyTick(ctx, req)
	}
	return nil
}
