// Command core is the composition root: it wires the State Store Access
// Layer, Price Feed Gateway, Signal Decision Brain, Market Regime
// Controller, strategy modules, Entry Executor, Exit Optimizer, Risk &
// Emergency Layer and Adaptive Optimizer into one running engine, the
// same way the teacher's main wired AutoTrader (trader/auto_trader.go)
// around one *store.Store and one mcp.AIClient per account.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ApexCore/decision"
	"ApexCore/exchange"
	"ApexCore/internal/config"
	"ApexCore/internal/logger"
	"ApexCore/market"
	"ApexCore/metrics"
	"ApexCore/optimizer"
	"ApexCore/regime"
	"ApexCore/scheduler"
	"ApexCore/store"
	"ApexCore/strategy"
	"ApexCore/trader"
)

const startingBalanceUSDT = 10000 // seed balance for a brand-new account row

func main() {
	configPath := flag.String("config", "config.yaml", "path to the engine's YAML configuration file")
	jsonLogs := flag.Bool("json-logs", false, "emit structured JSON logs instead of console output")
	metricsAddr := flag.String("metrics-addr", ":9100", "listen address for the Prometheus /metrics endpoint")
	flag.Parse()

	logger.Configure(*jsonLogs, zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("core: config load failed: %v", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.Database.DSN())
	if err != nil {
		logger.Errorf("core: database connect failed: %v", err)
		os.Exit(1)
	}
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	cancelMigrate()
	if err != nil {
		logger.Errorf("core: schema migration failed: %v", err)
		os.Exit(1)
	}

	accounts := store.NewAccountStore(db)
	positions := store.NewPositionStore(db, accounts)
	orders := store.NewOrderStore(db)
	trades := store.NewTradeStore(db)
	ratings := store.NewRatingStore(db)
	blacklist := store.NewBlacklistStore(db)
	weights := store.NewWeightsStore(db)
	params := store.NewParamsStore(db)
	volatility := store.NewVolatilityStore(db)
	modeStore := store.NewModeStore(db)
	klineStore := store.NewKlineStore(db)
	qualityStats := store.NewQualityStatsStore(db)
	cycles := store.NewDecisionCycleStore(db)
	control := store.NewControlStore(db)

	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), 10*time.Second)
	err = accounts.EnsureExists(bootstrapCtx, cfg.AccountID, decimal.NewFromInt(startingBalanceUSDT))
	cancelBootstrap()
	if err != nil {
		logger.Errorf("core: account bootstrap failed: %v", err)
		os.Exit(1)
	}

	klines := market.NewKlineAccessor(klineStore)
	stream := exchange.NewMarkPriceStream()
	gateway := market.NewGateway(stream, klines)

	var big4Symbols [4]string
	copy(big4Symbols[:], cfg.Big4Symbols)
	big4 := regime.NewDetector(klines, big4Symbols)
	rangeDetector := regime.NewRangeDetector(klines)
	modeSwitcher := regime.NewSwitcher(modeStore, positions, rangeDetector, big4)
	modeSource := modeSourceAdapter{modes: modeStore}

	quality := decision.NewQualityManager()
	rehydrateCtx, cancelRehydrate := context.WithTimeout(context.Background(), 10*time.Second)
	outcomes, err := qualityStats.All(rehydrateCtx)
	cancelRehydrate()
	if err != nil {
		logger.Warnf("core: quality stats rehydration failed, starting with empty snapshot: %v", err)
	} else {
		quality.Reload(outcomes)
	}

	brain := decision.NewBrain(klines, gateway, ratings, weights, blacklist, positions, big4, quality, control,
		decision.Config{AntiFOMOEnabled: cfg.AntiFOMOEnabled})

	trendModule := strategy.NewTrendModule(cfg.BatchEntryEnabled)
	rangeModule := strategy.NewMeanReversionModule(cfg.RangeModeEntriesEnabled)

	exchClient := exchange.NewBinanceClient(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.Testnet)

	exit := trader.NewExitOptimizer(positions, gateway, brain, big4, modeSource, noopQualityUpdater{},
		cfg.AccountID, trader.DefaultExitConfig(cfg.SmartExitEnabled))
	entry := trader.NewEntryExecutor(gateway, positions, params, volatility, big4, exchClient, exit, cfg.AccountID)
	risk := trader.NewRiskLayer(positions, orders, gateway, big4, exit, cfg.AccountID, trader.DefaultRiskConfig())
	exit.SetEmergencyBlocked(risk.Blocked)

	adaptiveOptimizer := optimizer.New(trades, qualityStats, blacklist, ratings, params, weights, volatility,
		klines, quality, cfg.AccountID, optimizer.Config{AutoApply: cfg.Optimizer.AutoApply})

	metrics.Init()
	metrics.SetEngineRunning(cfg.AccountID, true)
	startMetricsServer(*metricsAddr)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		symbols := dedup(append(append([]string{}, cfg.Symbols...), cfg.Big4Symbols...))
		if err := stream.Start(symbols); err != nil {
			logger.Errorf("core: mark-price stream exited: %v", err)
		}
	}()

	benchmark := "BTCUSDT"
	if len(cfg.Big4Symbols) > 0 {
		benchmark = cfg.Big4Symbols[0]
	}

	sched := scheduler.New(
		scheduler.Job{
			Name:     "scanner",
			Interval: cfg.Scanner.Interval,
			Fn: func(ctx context.Context) error {
				return runScanCycle(ctx, cfg.AccountID, brain, entry, big4, risk, trendModule, rangeModule, modeSource, cycles)
			},
		},
		scheduler.Job{
			Name:     "mode-switch",
			Interval: cfg.Scanner.Big4RefreshInterval,
			Fn: func(ctx context.Context) error {
				if _, err := modeSwitcher.Evaluate(ctx, cfg.AccountID, "futures", benchmark); err != nil {
					logger.Warnf("core: mode switch evaluation failed: %v", err)
				}
				return nil
			},
		},
		scheduler.Job{
			Name:     "risk",
			Interval: cfg.Scanner.MonitorInterval,
			Fn:       risk.Tick,
		},
		scheduler.Job{
			Name:     "supervisor",
			Interval: cfg.Scanner.SupervisorInterval,
			Fn:       exit.Supervise,
		},
		scheduler.Job{
			Name:     "equity-snapshot",
			Interval: cfg.Scanner.SupervisorInterval,
			Fn: func(ctx context.Context) error {
				return snapshotEquity(ctx, accounts, cfg.AccountID)
			},
		},
		scheduler.Job{
			Name:     "optimizer",
			Interval: time.Minute,
			RunAt:    cfg.Optimizer.Schedule,
			Fn: func(ctx context.Context) error {
				metrics.RecordOptimizerRun(cfg.AccountID)
				suggestions, err := adaptiveOptimizer.Run(ctx, cfg.Symbols)
				if err != nil {
					return err
				}
				for _, s := range suggestions {
					if s.Blacklist {
						metrics.RecordBlacklist(cfg.AccountID)
					}
				}
				return nil
			},
		},
	)
	sched.Start(runCtx)

	logger.Infof("core: engine running for account %s (%d symbols)", cfg.AccountID, len(cfg.Symbols))
	<-runCtx.Done()
	logger.Infof("core: shutdown signal received, draining")

	sched.Stop()
	stream.Stop()
	<-streamDone
	metrics.SetEngineRunning(cfg.AccountID, false)
	logger.Infof("core: shutdown complete")
}

// runScanCycle is the main scan loop of spec.md §5: evaluate every
// whitelisted symbol, route the winning candidate through the mode-
// appropriate strategy module, and dispatch eligible plans to the Entry
// Executor. It also records one decision_cycles audit row per cycle
// (SPEC_FULL §9 supplement, grounded on the teacher's DecisionRecord).
func runScanCycle(ctx context.Context, accountID string, brain *decision.Brain, entry *trader.EntryExecutor,
	big4 *regime.Detector, risk *trader.RiskLayer, trend *strategy.TrendModule, rangeMod *strategy.MeanReversionModule,
	modeSource trader.ModeSource, cycles *store.DecisionCycleStore) error {
	start := time.Now()
	defer func() { metrics.RecordCycleDuration(accountID, time.Since(start).Seconds()) }()

	whitelist, err := brain.Whitelist(ctx)
	if err != nil {
		return err
	}

	mode := modeSource.CurrentMode(ctx, accountID, "futures")
	var module strategy.Module = trend
	if mode == store.ModeRange {
		module = rangeMod
	}

	var candidates, actions []string
	reversals := big4.Reversals()
	for _, rating := range whitelist {
		cand, err := brain.Evaluate(ctx, accountID, rating, reversals, risk.Blocked)
		if err != nil || cand == nil {
			continue
		}
		metrics.RecordCandidate(accountID, string(cand.Side))
		candidates = append(candidates, cand.Symbol+" "+string(cand.Side)+" score="+cand.Score.String())

		plan := module.Plan(cand, mode)
		if plan.Style == strategy.StyleRejected {
			continue
		}
		if err := entry.Execute(ctx, plan, rating); err != nil {
			logger.Warnf("core: entry for %s rejected: %v", rating.Symbol, err)
			continue
		}
		actions = append(actions, cand.Symbol+" "+string(plan.Style))
	}

	if cycles != nil {
		candJSON, _ := json.Marshal(candidates)
		actionJSON, _ := json.Marshal(actions)
		if err := cycles.Record(ctx, store.DecisionCycle{
			AccountID:    accountID,
			StartedAt:    start,
			Candidates:   string(candJSON),
			ActionsTaken: string(actionJSON),
		}); err != nil {
			logger.Warnf("core: decision cycle audit write failed: %v", err)
		}
	}
	return nil
}

// snapshotEquity records the account's current total equity (balance +
// frozen margin) and pushes it into the account gauges, grounded on the
// teacher's periodic saveEquitySnapshot call (SPEC_FULL §9 supplement).
func snapshotEquity(ctx context.Context, accounts *store.AccountStore, accountID string) error {
	acct, err := accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	equity := acct.CurrentBalance.Add(acct.FrozenBalance)
	if err := accounts.SnapshotEquity(ctx, accountID, equity, time.Now().UTC()); err != nil {
		return err
	}
	equityF, _ := equity.Float64()
	availF, _ := acct.CurrentBalance.Float64()
	marginF, _ := acct.FrozenBalance.Float64()
	winRateF, _ := acct.WinRate.Float64()
	metrics.UpdateAccountMetrics(accountID, equityF, availF, marginF, winRateF)
	return nil
}

// modeSourceAdapter implements trader.ModeSource over store.ModeStore,
// defaulting to trend mode when no row exists yet (spec.md §4.5's
// implicit initial state).
type modeSourceAdapter struct {
	modes *store.ModeStore
}

func (a modeSourceAdapter) CurrentMode(ctx context.Context, accountID, tradingType string) store.TradingMode {
	state, err := a.modes.Get(ctx, accountID, tradingType)
	if err != nil || state == nil {
		return store.ModeTrend
	}
	return state.Mode
}

// noopQualityUpdater implements trader.QualityUpdater: the Adaptive
// Optimizer's daily job is the sole writer of signal_quality_stats
// (spec.md §4.10), so the Exit Optimizer's per-close callback has
// nothing further to persist beyond what PositionStore.Close already
// wrote to the trades table.
type noopQualityUpdater struct{}

func (noopQualityUpdater) OnClose(symbol, fingerprint string, side store.Side, won bool, pnl decimal.Decimal) {
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("core: metrics server failed: %v", err)
		}
	}()
}

func dedup(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
