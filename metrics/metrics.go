// Package metrics exposes the engine's Prometheus surface, following the
// teacher's promauto.With(Registry) var-block-plus-Update* helper shape
// (SPEC_FULL §9 Ambient Stack). Unlike the teacher this core runs a
// single account, never calls out to an AI model, and cares about
// regime/circuit-breaker state the teacher's metrics never tracked —
// the var block below reflects those differences rather than mirroring
// the teacher's label set.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry is the custom prometheus registry for the engine's metrics.
	Registry = prometheus.NewRegistry()

	mu sync.RWMutex

	// ============================================
	// Account / Equity Metrics
	// ============================================

	AccountEquityTotal = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "account",
			Name:      "equity_total",
			Help:      "Current total equity (available + frozen) in USDT",
		},
		[]string{"account_id"},
	)

	AccountBalanceAvailable = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "account",
			Name:      "balance_available",
			Help:      "Available (unfrozen) balance in USDT",
		},
		[]string{"account_id"},
	)

	AccountMarginUsed = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "account",
			Name:      "margin_used",
			Help:      "Frozen margin in USDT",
		},
		[]string{"account_id"},
	)

	AccountWinRate = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "account",
			Name:      "win_rate",
			Help:      "Win rate percentage over all realized trades",
		},
		[]string{"account_id"},
	)

	TradesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Subsystem: "account",
			Name:      "trades_total",
			Help:      "Total number of realized trades",
		},
		[]string{"account_id", "result"}, // result: "win", "loss"
	)

	// ============================================
	// Position Metrics
	// ============================================

	PositionsOpenCount = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "position",
			Name:      "open_count",
			Help:      "Number of open or building positions",
		},
		[]string{"account_id"},
	)

	PositionUnrealizedPnL = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "position",
			Name:      "unrealized_pnl",
			Help:      "Unrealized P&L per position in USDT",
		},
		[]string{"account_id", "symbol", "side"},
	)

	PositionHoldDuration = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "position",
			Name:      "hold_duration_seconds",
			Help:      "Duration a position has been held, in seconds",
		},
		[]string{"account_id", "symbol", "side"},
	)

	PositionClosesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Subsystem: "position",
			Name:      "closes_total",
			Help:      "Total closes by reason (the Exit Optimizer's close reason string)",
		},
		[]string{"account_id", "reason"},
	)

	// ============================================
	// Signal Decision Brain Metrics
	// ============================================

	DecisionCandidatesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Subsystem: "decision",
			Name:      "candidates_total",
			Help:      "Candidates produced by the Signal Decision Brain per side",
		},
		[]string{"account_id", "side"},
	)

	DecisionCycleDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "apexcore",
			Subsystem: "decision",
			Name:      "cycle_duration_seconds",
			Help:      "Decision cycle (one full symbol scan) duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"account_id"},
	)

	// ============================================
	// Market Regime Controller Metrics
	// ============================================

	RegimeSignalStrength = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "regime",
			Name:      "signal_strength",
			Help:      "Big4 overall signal strength, 0-100",
		},
		[]string{"signal"}, // BULLISH, BEARISH, NEUTRAL
	)

	RegimeModeSwitchesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Subsystem: "regime",
			Name:      "mode_switches_total",
			Help:      "Trend/range mode switches",
		},
		[]string{"account_id", "to_mode"},
	)

	ReversalBlocksTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Subsystem: "regime",
			Name:      "reversal_blocks_total",
			Help:      "Synchronized-reversal blocks armed, by side blocked",
		},
		[]string{"side"},
	)

	// ============================================
	// Risk & Emergency Layer Metrics
	// ============================================

	CircuitBreakerTrippedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Subsystem: "risk",
			Name:      "circuit_breaker_tripped_total",
			Help:      "Circuit breaker trips, by breaker name (floating_loss, consecutive_stop_loss)",
		},
		[]string{"account_id", "breaker"},
	)

	CircuitBreakerActive = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "risk",
			Name:      "circuit_breaker_active",
			Help:      "Whether a breaker's entry block is currently active (1) or not (0)",
		},
		[]string{"account_id", "breaker"},
	)

	// ============================================
	// Adaptive Optimizer Metrics
	// ============================================

	OptimizerRunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Subsystem: "optimizer",
			Name:      "runs_total",
			Help:      "Daily optimizer runs",
		},
		[]string{"account_id"},
	)

	OptimizerBlacklistedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apexcore",
			Subsystem: "optimizer",
			Name:      "blacklisted_total",
			Help:      "Signal fingerprints blacklisted by the optimizer",
		},
		[]string{"account_id"},
	)

	// ============================================
	// System Metrics
	// ============================================

	SystemUptime = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "system",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)

	EngineRunning = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "apexcore",
			Subsystem: "system",
			Name:      "running",
			Help:      "Whether the engine is running (1) or stopped (0)",
		},
		[]string{"account_id"},
	)
)

// UpdateAccountMetrics updates the account-level equity/balance gauges.
func UpdateAccountMetrics(accountID string, equity, available, marginUsed, winRate float64) {
	mu.Lock()
	defer mu.Unlock()

	AccountEquityTotal.WithLabelValues(accountID).Set(equity)
	AccountBalanceAvailable.WithLabelValues(accountID).Set(available)
	AccountMarginUsed.WithLabelValues(accountID).Set(marginUsed)
	AccountWinRate.WithLabelValues(accountID).Set(winRate)
}

// RecordTrade increments the win/loss counter for one realized trade.
func RecordTrade(accountID string, isWin bool) {
	result := "loss"
	if isWin {
		result = "win"
	}
	TradesTotal.WithLabelValues(accountID, result).Inc()
}

// UpdatePositionMetrics updates per-position gauges; called once per
// monitor tick by the Exit Optimizer.
func UpdatePositionMetrics(accountID, symbol, side string, unrealizedPnL, holdDurationSeconds float64) {
	mu.Lock()
	defer mu.Unlock()

	PositionUnrealizedPnL.WithLabelValues(accountID, symbol, side).Set(unrealizedPnL)
	PositionHoldDuration.WithLabelValues(accountID, symbol, side).Set(holdDurationSeconds)
}

// ClearPositionMetrics removes a closed position's gauges so stale series
// don't linger in /metrics output.
func ClearPositionMetrics(accountID, symbol, side string) {
	mu.Lock()
	defer mu.Unlock()

	PositionUnrealizedPnL.DeleteLabelValues(accountID, symbol, side)
	PositionHoldDuration.DeleteLabelValues(accountID, symbol, side)
}

// RecordClose increments the close-reason counter, reusing the Exit
// Optimizer's reason strings as the label value.
func RecordClose(accountID, reason string) {
	PositionClosesTotal.WithLabelValues(accountID, reason).Inc()
}

// RecordCandidate increments the per-side candidate counter.
func RecordCandidate(accountID, side string) {
	DecisionCandidatesTotal.WithLabelValues(accountID, side).Inc()
}

// RecordCycleDuration records one decision-cycle duration.
func RecordCycleDuration(accountID string, durationSeconds float64) {
	DecisionCycleDuration.WithLabelValues(accountID).Observe(durationSeconds)
}

// UpdateRegimeSignal records the Big4 detector's latest overall read.
func UpdateRegimeSignal(signal string, strength float64) {
	RegimeSignalStrength.Reset()
	RegimeSignalStrength.WithLabelValues(signal).Set(strength)
}

// RecordModeSwitch increments the mode-switch counter.
func RecordModeSwitch(accountID, toMode string) {
	RegimeModeSwitchesTotal.WithLabelValues(accountID, toMode).Inc()
}

// RecordReversalBlock increments the synchronized-reversal block counter.
func RecordReversalBlock(side string) {
	ReversalBlocksTotal.WithLabelValues(side).Inc()
}

// SetCircuitBreaker records whether a named breaker's block is active.
func SetCircuitBreaker(accountID, breaker string, active bool) {
	val := 0.0
	if active {
		val = 1.0
		CircuitBreakerTrippedTotal.WithLabelValues(accountID, breaker).Inc()
	}
	CircuitBreakerActive.WithLabelValues(accountID, breaker).Set(val)
}

// RecordOptimizerRun increments the daily optimizer run counter.
func RecordOptimizerRun(accountID string) {
	OptimizerRunsTotal.WithLabelValues(accountID).Inc()
}

// RecordBlacklist increments the optimizer blacklist counter.
func RecordBlacklist(accountID string) {
	OptimizerBlacklistedTotal.WithLabelValues(accountID).Inc()
}

// SetEngineRunning sets whether the engine is running for accountID.
func SetEngineRunning(accountID string, running bool) {
	val := 0.0
	if running {
		val = 1.0
	}
	EngineRunning.WithLabelValues(accountID).Set(val)
}

// Init registers the standard Go process collectors, matching the
// teacher's registration of runtime/process metrics alongside its own.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
