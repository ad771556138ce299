package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ApexCore/decision"
	"ApexCore/store"
)

func TestTrendModule_RejectsInRangeMode(t *testing.T) {
	mod := NewTrendModule(true)
	plan := mod.Plan(&decision.Candidate{Symbol: "BTCUSDT", Score: decimal.NewFromInt(40)}, store.ModeRange)
	require.Equal(t, StyleRejected, plan.Style)
}

func TestTrendModule_BatchesInTrendModeWhenEnabled(t *testing.T) {
	mod := NewTrendModule(true)
	plan := mod.Plan(&decision.Candidate{Symbol: "BTCUSDT", Score: decimal.NewFromInt(40)}, store.ModeTrend)
	require.Equal(t, StyleBatched, plan.Style)
}

func TestTrendModule_BreakoutAlwaysImmediate(t *testing.T) {
	mod := NewTrendModule(true)
	plan := mod.Plan(&decision.Candidate{Symbol: "BTCUSDT", Score: decimal.NewFromInt(50), BreakoutInfo: "anchor_high"}, store.ModeTrend)
	require.Equal(t, StyleImmediate, plan.Style)
}

func TestMeanReversionModule_DisabledByDefault(t *testing.T) {
	mod := NewMeanReversionModule(false)
	plan := mod.Plan(&decision.Candidate{Symbol: "ETHUSDT"}, store.ModeRange)
	require.Equal(t, StyleRejected, plan.Style)
}
