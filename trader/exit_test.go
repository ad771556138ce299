package trader

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ApexCore/market"
	"ApexCore/store"
)

// fakeTickerSource implements market.TickerSource with a fixed, settable
// price map, standing in for the exchange's WebSocket stream in tests.
type fakeTickerSource struct {
	prices map[string]decimal.Decimal
}

func (f *fakeTickerSource) LastTick(symbol string) (decimal.Decimal, time.Time, bool) {
	p, ok := f.prices[symbol]
	return p, time.Now(), ok
}

func newExitTestHarness(t *testing.T) (*store.DB, *store.AccountStore, *store.PositionStore, *fakeTickerSource, *market.Gateway) {
	t.Helper()
	db := newTestDBForTrader(t)
	accounts := store.NewAccountStore(db)
	positions := store.NewPositionStore(db, accounts)
	require.NoError(t, accounts.EnsureExists(context.Background(), "acct1", decimal.NewFromInt(10000)))

	stream := &fakeTickerSource{prices: map[string]decimal.Decimal{}}
	gateway := market.NewGateway(stream, market.NewKlineAccessor(store.NewKlineStore(db)))
	return db, accounts, positions, stream, gateway
}

func samplePositionForExit(symbol string, side store.Side) *store.Position {
	now := time.Now().UTC()
	return &store.Position{
		AccountID:       "acct1",
		Symbol:          symbol,
		Side:            side,
		Quantity:        decimal.NewFromFloat(0.1),
		EntryPrice:      decimal.NewFromInt(50000),
		AvgEntryPrice:   decimal.NewFromInt(50000),
		Leverage:        5,
		NotionalValue:   decimal.NewFromInt(2500),
		Margin:          decimal.NewFromInt(500),
		OpenTime:        now,
		StopLossPrice:   decimal.NewFromInt(49500),
		TakeProfitPrice: decimal.NewFromInt(51000),
		EntrySignalType: "breakout_strong",
		EntryScore:      decimal.NewFromInt(50),
		MaxHoldMinutes:  120,
		TimeoutAt:       now.Add(2 * time.Hour),
	}
}

func TestEvaluateOnce_ClosesOnStopLossBreach(t *testing.T) {
	ctx := context.Background()
	_, accounts, positions, stream, gateway := newExitTestHarness(t)

	p := samplePositionForExit("BTCUSDT", store.Long)
	require.NoError(t, positions.OpenImmediate(ctx, p))
	stream.prices["BTCUSDT"] = decimal.NewFromInt(49400) // below stop-loss

	exit := NewExitOptimizer(positions, gateway, nil, nil, nil, nil, "acct1", DefaultExitConfig(false))
	done := exit.evaluateOnce(ctx, p.ID)
	require.False(t, done, "evaluateOnce itself never returns true on a closing tick; the monitor loop observes the close next pass")

	active, err := positions.ActiveByAccountSymbolSide(ctx, "acct1", "BTCUSDT", store.Long)
	require.NoError(t, err)
	require.Nil(t, active, "position must be closed once price crosses the stop-loss level")

	acct, err := accounts.Get(ctx, "acct1")
	require.NoError(t, err)
	require.Equal(t, 1, acct.TotalTrades)
}

func TestEvaluateOnce_ClosesOnTakeProfitBreach(t *testing.T) {
	ctx := context.Background()
	_, _, positions, stream, gateway := newExitTestHarness(t)

	p := samplePositionForExit("ETHUSDT", store.Short)
	require.NoError(t, positions.OpenImmediate(ctx, p))
	stream.prices["ETHUSDT"] = decimal.NewFromInt(49000) // below TP for a short

	exit := NewExitOptimizer(positions, gateway, nil, nil, nil, nil, "acct1", DefaultExitConfig(false))
	exit.evaluateOnce(ctx, p.ID)

	active, err := positions.ActiveByAccountSymbolSide(ctx, "acct1", "ETHUSDT", store.Short)
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestEvaluateOnce_TimesOutWhenPastDeadline(t *testing.T) {
	ctx := context.Background()
	_, _, positions, stream, gateway := newExitTestHarness(t)

	p := samplePositionForExit("SOLUSDT", store.Long)
	p.TimeoutAt = time.Now().UTC().Add(-time.Minute) // already overdue
	require.NoError(t, positions.OpenImmediate(ctx, p))
	stream.prices["SOLUSDT"] = decimal.NewFromInt(50100) // flat, no SL/TP crossed

	exit := NewExitOptimizer(positions, gateway, nil, nil, nil, nil, "acct1", DefaultExitConfig(false))
	exit.evaluateOnce(ctx, p.ID)

	active, err := positions.ActiveByAccountSymbolSide(ctx, "acct1", "SOLUSDT", store.Long)
	require.NoError(t, err)
	require.Nil(t, active, "an overdue position must be closed by the timeout branch even with flat P&L")
}

func TestEvaluateOnce_BuildingPositionIsLeftAlone(t *testing.T) {
	ctx := context.Background()
	_, _, positions, stream, gateway := newExitTestHarness(t)

	p := samplePositionForExit("BNBUSDT", store.Long)
	require.NoError(t, positions.OpenBuilding(ctx, p))
	stream.prices["BNBUSDT"] = decimal.NewFromInt(1) // would trip every exit branch if evaluated

	exit := NewExitOptimizer(positions, gateway, nil, nil, nil, nil, "acct1", DefaultExitConfig(false))
	done := exit.evaluateOnce(ctx, p.ID)
	require.False(t, done)

	active, err := positions.ActiveByAccountSymbolSide(ctx, "acct1", "BNBUSDT", store.Long)
	require.NoError(t, err)
	require.NotNil(t, active, "a building position must never be exited before it reaches open")
}

func TestLadderStep_FiresBandsInAscendingOrderOnce(t *testing.T) {
	exit := &ExitOptimizer{
		peaks: make(map[string]decimal.Decimal),
		cfg:   DefaultExitConfig(true),
	}

	frac, ok := exit.ladderStep("pos1", decimal.NewFromInt(3))
	require.True(t, ok)
	require.True(t, frac.Equal(decimal.NewFromFloat(0.5)))

	_, ok = exit.ladderStep("pos1", decimal.NewFromInt(3))
	require.False(t, ok, "the same band must not fire twice")

	frac, ok = exit.ladderStep("pos1", decimal.NewFromInt(5))
	require.True(t, ok)
	require.True(t, frac.Equal(decimal.NewFromFloat(0.3)))
}

func TestTrailingTriggered_FiresOnlyAfterActivationAndRetrace(t *testing.T) {
	exit := &ExitOptimizer{
		peaks: make(map[string]decimal.Decimal),
		cfg:   DefaultExitConfig(true),
	}
	p := &store.Position{Side: store.Long, AvgEntryPrice: decimal.NewFromInt(50000), Quantity: decimal.NewFromFloat(0.1), Margin: decimal.NewFromInt(500), ID: "pos1"}

	require.False(t, exit.trailingTriggered(p, decimal.NewFromInt(50500), decimal.NewFromInt(1)), "below activation threshold, must not arm")

	require.False(t, exit.trailingTriggered(p, decimal.NewFromInt(51600), decimal.NewFromFloat(3.2)), "just activated, no retrace yet")

	require.True(t, exit.trailingTriggered(p, decimal.NewFromInt(51000), decimal.NewFromInt(2)), "price retraced >=1% from the 51600 peak")
}

func TestCrossedStopAndTakeProfit_RespectSideDirection(t *testing.T) {
	long := &store.Position{Side: store.Long, StopLossPrice: decimal.NewFromInt(49000), TakeProfitPrice: decimal.NewFromInt(52000)}
	require.True(t, crossedStop(long, decimal.NewFromInt(48999)))
	require.False(t, crossedStop(long, decimal.NewFromInt(49001)))
	require.True(t, crossedTakeProfit(long, decimal.NewFromInt(52000)))

	short := &store.Position{Side: store.Short, StopLossPrice: decimal.NewFromInt(52000), TakeProfitPrice: decimal.NewFromInt(49000)}
	require.True(t, crossedStop(short, decimal.NewFromInt(52001)))
	require.True(t, crossedTakeProfit(short, decimal.NewFromInt(49000)))
}
