package decision

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"ApexCore/store"
)

func fromInt(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestFingerprint_SortsAndJoinsComponents(t *testing.T) {
	fp := Fingerprint([]string{"trend_1h_bull", "breakout_through_high", "momentum_24h_bull"})
	require.Equal(t, "breakout_through_high+momentum_24h_bull+trend_1h_bull", fp)
}

func TestFingerprint_EmptyInputYieldsEmptyString(t *testing.T) {
	require.Equal(t, "", Fingerprint(nil))
}

func TestOpposesSide_RejectsContradictoryComponent(t *testing.T) {
	require.True(t, opposesSide(CompTrend1hBear, store.Long), "trend_1h_bear must be stripped from a LONG fingerprint")
	require.True(t, opposesSide(CompTrend1hBull, store.Short), "trend_1h_bull must be stripped from a SHORT fingerprint")
	require.False(t, opposesSide(CompBreakoutStrong, store.Long))
}

func TestQualityManager_NoAdjustmentBelowSampleFloor(t *testing.T) {
	qm := NewQualityManager()
	qm.Reload([]store.FingerprintOutcome{{Fingerprint: "breakout_strong", Side: store.Long, Samples: 3, WinRate: fromInt(10)}})
	require.True(t, qm.ThresholdAdjustment("breakout_strong", store.Long).IsZero())
}

func TestQualityManager_RaisesThresholdForPoorWinRate(t *testing.T) {
	qm := NewQualityManager()
	qm.Reload([]store.FingerprintOutcome{{Fingerprint: "breakout_strong", Side: store.Long, Samples: 20, WinRate: fromInt(20)}})
	require.True(t, qm.ThresholdAdjustment("breakout_strong", store.Long).GreaterThan(fromInt(0)))
}
