package trader

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ApexCore/market"
	"ApexCore/store"
)

func newRiskTestHarness(t *testing.T) (*store.PositionStore, *store.OrderStore, *fakeTickerSource, *market.Gateway) {
	t.Helper()
	db := newTestDBForTrader(t)
	accounts := store.NewAccountStore(db)
	require.NoError(t, accounts.EnsureExists(context.Background(), "acct1", decimal.NewFromInt(100000)))
	positions := store.NewPositionStore(db, accounts)
	orders := store.NewOrderStore(db)

	stream := &fakeTickerSource{prices: map[string]decimal.Decimal{}}
	gateway := market.NewGateway(stream, market.NewKlineAccessor(store.NewKlineStore(db)))
	return positions, orders, stream, gateway
}

func TestRiskLayer_FloatingLossBreakerBlocksBothSides(t *testing.T) {
	ctx := context.Background()
	positions, orders, stream, gateway := newRiskTestHarness(t)

	p := samplePositionForExit("BTCUSDT", store.Long)
	p.Quantity = decimal.NewFromInt(1)
	p.EntryPrice = decimal.NewFromInt(50000)
	p.AvgEntryPrice = decimal.NewFromInt(50000)
	require.NoError(t, positions.OpenImmediate(ctx, p))
	stream.prices["BTCUSDT"] = decimal.NewFromInt(49000) // -1000 USDT floating, breaches -600 default

	risk := NewRiskLayer(positions, orders, gateway, nil, nil, "acct1", DefaultRiskConfig())
	require.False(t, risk.Blocked(store.Long), "breaker must not be armed before the first Tick")

	require.NoError(t, risk.Tick(ctx))
	require.True(t, risk.Blocked(store.Long), "aggregate floating loss past threshold must block LONG entries")
	require.True(t, risk.Blocked(store.Short), "the floating-loss breaker blocks both sides, not just the losing one")
}

func TestRiskLayer_FloatingLossBreakerStaysOpenWithinThreshold(t *testing.T) {
	ctx := context.Background()
	positions, orders, stream, gateway := newRiskTestHarness(t)

	p := samplePositionForExit("BTCUSDT", store.Long)
	p.Quantity = decimal.NewFromFloat(0.01)
	p.EntryPrice = decimal.NewFromInt(50000)
	p.AvgEntryPrice = decimal.NewFromInt(50000)
	require.NoError(t, positions.OpenImmediate(ctx, p))
	stream.prices["BTCUSDT"] = decimal.NewFromInt(49900) // -1 USDT floating, well within threshold

	risk := NewRiskLayer(positions, orders, gateway, nil, nil, "acct1", DefaultRiskConfig())
	require.NoError(t, risk.Tick(ctx))
	require.False(t, risk.Blocked(store.Long))
}

func TestRiskLayer_ConsecutiveStopLossBreakerTrips(t *testing.T) {
	ctx := context.Background()
	positions, orders, _, gateway := newRiskTestHarness(t)
	cfg := DefaultRiskConfig()

	for i := 0; i < cfg.ConsecutiveStopLosses; i++ {
		p := samplePositionForExit("ETHUSDT", store.Long)
		require.NoError(t, positions.OpenImmediate(ctx, p))
		_, err := positions.Close(ctx, p.ID, decimal.NewFromInt(49500), decimal.NewFromInt(1), ReasonStopLoss, decimal.Zero, decimal.NewFromInt(1))
		require.NoError(t, err)
	}

	risk := NewRiskLayer(positions, orders, gateway, nil, nil, "acct1", cfg)
	require.NoError(t, risk.Tick(ctx))
	require.True(t, risk.Blocked(store.Long), "%d/%d recent closes tagged stop-loss must trip the consecutive breaker", cfg.ConsecutiveStopLosses, cfg.ConsecutiveWindow)
}

func TestRiskLayer_ConsecutiveStopLossBreakerIgnoresOtherReasons(t *testing.T) {
	ctx := context.Background()
	positions, orders, _, gateway := newRiskTestHarness(t)
	cfg := DefaultRiskConfig()

	for i := 0; i < cfg.ConsecutiveStopLosses; i++ {
		p := samplePositionForExit("ETHUSDT", store.Long)
		require.NoError(t, positions.OpenImmediate(ctx, p))
		_, err := positions.Close(ctx, p.ID, decimal.NewFromInt(51000), decimal.NewFromInt(1), ReasonTakeProfit, decimal.Zero, decimal.NewFromInt(1))
		require.NoError(t, err)
	}

	risk := NewRiskLayer(positions, orders, gateway, nil, nil, "acct1", cfg)
	require.NoError(t, risk.Tick(ctx))
	require.False(t, risk.Blocked(store.Long), "take-profit closes must never arm the stop-loss breaker")
}
