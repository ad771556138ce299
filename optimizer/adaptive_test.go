package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ApexCore/decision"
	"ApexCore/store"
)

// seedClosedTrade opens and immediately closes one position under the given
// fingerprint/side, realizing a win (closePrice profitable) or a loss,
// mirroring the teacher's test style of driving real store flows rather
// than inserting rows directly.
func seedClosedTrade(t *testing.T, ctx context.Context, positions *store.PositionStore, accountID, symbol, fingerprint string, side store.Side, win bool) {
	t.Helper()
	entry := decimal.NewFromInt(100)
	p := &store.Position{
		AccountID:       accountID,
		Symbol:          symbol,
		Side:            side,
		Quantity:        decimal.NewFromInt(1),
		EntryPrice:      entry,
		AvgEntryPrice:   entry,
		Leverage:        1,
		NotionalValue:   entry,
		Margin:          entry,
		OpenTime:        time.Now().UTC(),
		StopLossPrice:   decimal.NewFromInt(90),
		TakeProfitPrice: decimal.NewFromInt(110),
		EntrySignalType: fingerprint,
		EntryScore:      decimal.NewFromInt(50),
		MaxHoldMinutes:  60,
		TimeoutAt:       time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, positions.OpenImmediate(ctx, p))

	rose := decimal.NewFromInt(110)  // favorable for a long, unfavorable for a short
	fell := decimal.NewFromInt(90)   // favorable for a short, unfavorable for a long
	closePrice := fell
	if (side == store.Long) == win {
		closePrice = rose
	}
	_, err := positions.Close(ctx, p.ID, closePrice, decimal.NewFromInt(1), "test-close", decimal.Zero, decimal.NewFromInt(1))
	require.NoError(t, err)
}

func TestRun_FlagsProblematicAndBlacklistCandidates(t *testing.T) {
	ctx := context.Background()
	db := newTestDBForOptimizer(t)
	accounts := store.NewAccountStore(db)
	require.NoError(t, accounts.EnsureExists(ctx, "acct1", decimal.NewFromInt(100000)))
	positions := store.NewPositionStore(db, accounts)
	trades := store.NewTradeStore(db)
	quality := store.NewQualityStatsStore(db)

	// "fade_weak"/SHORT: 15 samples, only 2 wins (~13% win rate) -> blacklist.
	for i := 0; i < 13; i++ {
		seedClosedTrade(t, ctx, positions, "acct1", "BTCUSDT", "fade_weak", store.Short, false)
	}
	for i := 0; i < 2; i++ {
		seedClosedTrade(t, ctx, positions, "acct1", "BTCUSDT", "fade_weak", store.Short, true)
	}

	// "breakout_strong"/LONG: 10 samples, 4 wins (40% win rate) -> healthy, no flag.
	for i := 0; i < 6; i++ {
		seedClosedTrade(t, ctx, positions, "acct1", "ETHUSDT", "breakout_strong", store.Long, false)
	}
	for i := 0; i < 4; i++ {
		seedClosedTrade(t, ctx, positions, "acct1", "ETHUSDT", "breakout_strong", store.Long, true)
	}

	qm := decision.NewQualityManager()
	opt := New(trades, quality, store.NewBlacklistStore(db), store.NewRatingStore(db), store.NewParamsStore(db),
		store.NewWeightsStore(db), store.NewVolatilityStore(db), nil, qm, "acct1", Config{AutoApply: false})

	suggestions, err := opt.Run(ctx, []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, suggestions, 2)

	byFingerprint := map[string]Suggestion{}
	for _, s := range suggestions {
		byFingerprint[s.Fingerprint] = s
	}

	fade := byFingerprint["fade_weak"]
	require.Equal(t, 15, fade.Samples)
	require.True(t, fade.Problematic, "a ~13% win rate over 15 samples must be flagged problematic")
	require.True(t, fade.Blacklist, "a ~13% win rate over >=15 samples must be flagged for blacklisting")

	breakout := byFingerprint["breakout_strong"]
	require.Equal(t, 10, breakout.Samples)
	require.False(t, breakout.Blacklist, "a 40% win rate must never be blacklisted")
}

func TestRun_AutoApplyFalseNeverBlacklists(t *testing.T) {
	ctx := context.Background()
	db := newTestDBForOptimizer(t)
	accounts := store.NewAccountStore(db)
	require.NoError(t, accounts.EnsureExists(ctx, "acct1", decimal.NewFromInt(100000)))
	positions := store.NewPositionStore(db, accounts)
	trades := store.NewTradeStore(db)
	quality := store.NewQualityStatsStore(db)
	blacklist := store.NewBlacklistStore(db)

	for i := 0; i < 15; i++ {
		seedClosedTrade(t, ctx, positions, "acct1", "BTCUSDT", "fade_weak", store.Short, false)
	}

	qm := decision.NewQualityManager()
	opt := New(trades, quality, blacklist, store.NewRatingStore(db), store.NewParamsStore(db),
		store.NewWeightsStore(db), store.NewVolatilityStore(db), nil, qm, "acct1", Config{AutoApply: false})

	_, err := opt.Run(ctx, nil)
	require.NoError(t, err)

	active, err := blacklist.ActiveSnapshot(ctx)
	require.NoError(t, err)
	require.Empty(t, active, "with AutoApply disabled, Run must only report suggestions, never write the blacklist")
}
