package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func candleSeries(closes ...float64) []Candle {
	out := make([]Candle, len(closes))
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		out[i] = Candle{OpenTime: int64(i) * 60000, Open: d, High: d.Mul(decimal.NewFromFloat(1.001)),
			Low: d.Mul(decimal.NewFromFloat(0.999)), Close: d, Volume: decimal.NewFromInt(100)}
	}
	return out
}

func TestSMA_InsufficientHistoryReturnsZero(t *testing.T) {
	vals := []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2)}
	require.True(t, SMA(vals, 5).IsZero())
}

func TestEMA_ConvergesTowardConstantSeries(t *testing.T) {
	vals := make([]decimal.Decimal, 50)
	for i := range vals {
		vals[i] = decimal.NewFromInt(100)
	}
	ema := EMA(vals, 9)
	require.True(t, ema.Sub(decimal.NewFromInt(100)).Abs().LessThan(decimal.NewFromFloat(0.01)))
}

func TestRSI_AllGainsApproaches100(t *testing.T) {
	candles := candleSeries(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15)
	rsi := RSI(candles, 14)
	require.True(t, rsi.GreaterThan(decimal.NewFromInt(90)))
}

func TestVolumeRatio_ZeroAverageYieldsNeutralDefault(t *testing.T) {
	candles := []Candle{{Volume: decimal.Zero}}
	ratio := VolumeRatio(candles, 20)
	require.True(t, ratio.Equal(decimal.NewFromInt(1)))
}

func TestBollinger_BandWidthPctZeroWhenMidZero(t *testing.T) {
	b := BollingerResult{}
	require.True(t, b.BandWidthPct().IsZero())
}

func TestMACD_NoNaNOnShortHistory(t *testing.T) {
	candles := candleSeries(1, 2, 3)
	result := MACD(candles, 12, 26, 9)
	require.True(t, result.MACD.IsZero())
	require.True(t, result.Signal.IsZero())
}
