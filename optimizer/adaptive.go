// Package optimizer implements the Adaptive Self-Optimization layer
// (spec.md §4.10): a daily job that mines the last 24h of realized trades
// per (fingerprint, side), flags problematic signals, and — when
// auto_apply is set — writes adjusted parameters, ratings, volatility
// profiles and blacklist entries back to the State Store Access Layer.
// Scoring weights are not adjusted by this package.
package optimizer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/decision"
	"ApexCore/internal/logger"
	"ApexCore/market"
	"ApexCore/store"
)

const (
	mineWindow             = 24 * time.Hour
	minSamplesForSuggestion = 10
	problematicWinRate      = 35 // percent
	blacklistWinRate        = 20 // percent
	blacklistMinSamples     = 15

	tpVolatilityWindow = 48 // 15m candles (~12h) used to refresh volatility profiles

	ratingMinSamples       = 10
	ratingDrawdownCaution2 = 200 // USDT cumulative drawdown
	ratingDrawdownCaution1 = 100
	ratingHitRateCaution2  = 35 // percent
	ratingHitRateCaution1  = 50
)

// Config toggles whether suggestions are written back automatically
// (spec.md §4.10: "auto_apply flag").
type Config struct {
	AutoApply bool
}

// Suggestion is one (fingerprint, side) recommendation produced by a run,
// returned for logging/inspection regardless of AutoApply.
type Suggestion struct {
	Fingerprint  string
	Side         store.Side
	Samples      int
	WinRate      decimal.Decimal
	AvgPnL       decimal.Decimal
	Problematic  bool
	Blacklist    bool
	Adjustment   decimal.Decimal // threshold_adjustment written to signal_quality_stats
}

// Optimizer is the Adaptive Optimizer.
type Optimizer struct {
	trades     *store.TradeStore
	quality    *store.QualityStatsStore
	blacklist  *store.BlacklistStore
	rating     *store.RatingStore
	params     *store.ParamsStore
	weights    *store.WeightsStore
	volatility *store.VolatilityStore
	klines     *market.KlineAccessor
	qm         *decision.QualityManager
	accountID  string
	cfg        Config
}

func New(trades *store.TradeStore, quality *store.QualityStatsStore, blacklist *store.BlacklistStore,
	rating *store.RatingStore, params *store.ParamsStore, weights *store.WeightsStore,
	volatility *store.VolatilityStore, klines *market.KlineAccessor, qm *decision.QualityManager,
	accountID string, cfg Config) *Optimizer {
	return &Optimizer{trades: trades, quality: quality, blacklist: blacklist, rating: rating,
		params: params, weights: weights, volatility: volatility, klines: klines, qm: qm, accountID: accountID, cfg: cfg}
}

// Run executes one daily optimization pass (spec.md §4.10, §5 "daily job
// gated by wall clock"). It always persists fresh signal_quality_stats
// rows and reloads the in-memory QualityManager; rating/blacklist/param
// writes only happen when AutoApply is set.
func (o *Optimizer) Run(ctx context.Context, symbols []string) ([]Suggestion, error) {
	since := time.Now().UTC().Add(-mineWindow)
	outcomes, err := o.trades.SinceWithFingerprints(ctx, o.accountID, since)
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(outcomes))
	for _, out := range outcomes {
		s := Suggestion{Fingerprint: out.Fingerprint, Side: out.Side, Samples: out.Samples, WinRate: out.WinRate, AvgPnL: out.AvgPnL}
		if out.Samples >= minSamplesForSuggestion && out.WinRate.LessThan(decimal.NewFromInt(problematicWinRate)) {
			s.Problematic = true
			s.Adjustment = decimal.NewFromInt(10)
		}
		if out.Samples >= blacklistMinSamples && out.WinRate.LessThan(decimal.NewFromInt(blacklistWinRate)) {
			s.Blacklist = true
		}
		suggestions = append(suggestions, s)

		if err := o.quality.Upsert(ctx, out.Fingerprint, out.Side, out.Samples, out.WinRate, out.AvgPnL, s.Adjustment); err != nil {
			logger.Warnf("optimizer: failed to persist quality stats for %s/%s: %v", out.Fingerprint, out.Side, err)
		}

		if o.cfg.AutoApply && s.Blacklist {
			if err := o.blacklist.Add(ctx, out.Fingerprint, out.Side); err != nil {
				logger.Warnf("optimizer: failed to blacklist %s/%s: %v", out.Fingerprint, out.Side, err)
			} else {
				logger.Warnf("optimizer: blacklisted %s/%s (win_rate=%s samples=%d)", out.Fingerprint, out.Side, out.WinRate, out.Samples)
			}
		}
	}

	all, err := o.quality.All(ctx)
	if err != nil {
		return nil, err
	}
	o.qm.Reload(all)

	if o.cfg.AutoApply {
		if err := o.refreshParams(ctx, suggestions); err != nil {
			logger.Warnf("optimizer: param refresh failed: %v", err)
		}
		if err := o.refreshRatings(ctx, symbols); err != nil {
			logger.Warnf("optimizer: rating refresh failed: %v", err)
		}
		if err := o.refreshVolatilityProfiles(ctx, symbols); err != nil {
			logger.Warnf("optimizer: volatility profile refresh failed: %v", err)
		}
	}

	logger.Infof("optimizer: daily run complete, %d fingerprint/side groups mined", len(suggestions))
	return suggestions, nil
}

// refreshParams sets the position size multiplier to 0.75 for each side
// on which at least half of this window's fingerprints are problematic
// (spec.md §4.10: "suggest parameter adjustments"). Stop-loss, take-profit
// and holding-time parameters are not changed.
func (o *Optimizer) refreshParams(ctx context.Context, suggestions []Suggestion) error {
	bad := map[store.Side]int{}
	total := map[store.Side]int{}
	for _, s := range suggestions {
		total[s.Side]++
		if s.Problematic {
			bad[s.Side]++
		}
	}
	for _, side := range []store.Side{store.Long, store.Short} {
		if total[side] == 0 {
			continue
		}
		key := "long"
		if side == store.Short {
			key = "short"
		}
		ratio := decimal.NewFromInt(int64(bad[side])).Div(decimal.NewFromInt(int64(total[side])))
		if ratio.GreaterThanOrEqual(decimal.NewFromFloat(0.5)) {
			if err := o.params.Set(ctx, "position_size_multiplier", key, decimal.NewFromFloat(0.75)); err != nil {
				return err
			}
			logger.Warnf("optimizer: %s side has %d/%d problematic fingerprints, trimming position size multiplier", side, bad[side], total[side])
		}
	}
	return nil
}

// refreshRatings recomputes the 3-level symbol rating from each symbol's
// cumulative drawdown and hit rate over the mining window (spec.md §4.10
// / §3 "Symbol Rating"). Symbols with too little trade history to judge
// are left at whitelist rather than penalized for lack of data.
func (o *Optimizer) refreshRatings(ctx context.Context, symbols []string) error {
	since := time.Now().UTC().Add(-mineWindow)
	outcomes, err := o.trades.SinceBySymbol(ctx, o.accountID, since)
	if err != nil {
		return err
	}
	bySymbol := make(map[string]store.SymbolOutcome, len(outcomes))
	for _, out := range outcomes {
		bySymbol[out.Symbol] = out
	}

	for _, sym := range symbols {
		out, ok := bySymbol[sym]
		rating := store.SymbolRating{Symbol: sym, MarginMultiplier: decimal.NewFromInt(1), RatingLevel: store.RatingWhitelist}
		if ok && out.Samples >= ratingMinSamples {
			switch {
			case out.CumulativeDrawdown.GreaterThan(decimal.NewFromInt(ratingDrawdownCaution2)) || out.WinRate.LessThan(decimal.NewFromInt(ratingHitRateCaution2)):
				rating.RatingLevel = store.RatingCaution2
				rating.MarginMultiplier = decimal.NewFromFloat(0.5)
			case out.CumulativeDrawdown.GreaterThan(decimal.NewFromInt(ratingDrawdownCaution1)) || out.WinRate.LessThan(decimal.NewFromInt(ratingHitRateCaution1)):
				rating.RatingLevel = store.RatingCaution1
				rating.MarginMultiplier = decimal.NewFromFloat(0.75)
			}
		}
		if err := o.rating.Upsert(ctx, rating); err != nil {
			return err
		}
	}
	return nil
}

// refreshVolatilityProfiles recomputes a take-profit percentage per symbol
// from the 15m Bollinger band width (spec.md §3 "Volatility Profile").
// The same value is stored for both the long and the short side.
func (o *Optimizer) refreshVolatilityProfiles(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		candles, err := o.klines.Get(ctx, sym, "15m", tpVolatilityWindow)
		if err != nil || len(candles) < tpVolatilityWindow {
			continue
		}
		b := market.Bollinger(candles, 20, decimal.NewFromInt(2))
		base := decimal.NewFromInt(2).Add(b.BandWidthPct().Div(decimal.NewFromInt(4)))
		profile := store.VolatilityProfile{Symbol: sym, LongFixedTPPct: base, ShortFixedTPPct: base}
		if err := o.volatility.Upsert(ctx, profile); err != nil {
			return err
		}
	}
	return nil
}
