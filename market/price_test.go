package market

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeTickerSource struct {
	prices map[string]decimal.Decimal
	ats    map[string]time.Time
}

func (f *fakeTickerSource) LastTick(symbol string) (decimal.Decimal, time.Time, bool) {
	p, ok := f.prices[symbol]
	return p, f.ats[symbol], ok
}

func TestGateway_PrefersFreshStreamPrice(t *testing.T) {
	src := &fakeTickerSource{
		prices: map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)},
		ats:    map[string]time.Time{"BTCUSDT": time.Now()},
	}
	gw := NewGateway(src, nil)
	price, source, err := gw.GetPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, SourceStream, source)
	require.True(t, price.Equal(decimal.NewFromInt(50000)))
}

func TestGateway_LastKnownReflectsCachedRead(t *testing.T) {
	src := &fakeTickerSource{
		prices: map[string]decimal.Decimal{"ETHUSDT": decimal.NewFromInt(3000)},
		ats:    map[string]time.Time{"ETHUSDT": time.Now()},
	}
	gw := NewGateway(src, nil)
	_, _, err := gw.GetPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)

	price, _, ok := gw.LastKnown("ETHUSDT")
	require.True(t, ok)
	require.True(t, price.Equal(decimal.NewFromInt(3000)))
}

func TestGateway_UnknownSymbolNotCached(t *testing.T) {
	gw := NewGateway(&fakeTickerSource{prices: map[string]decimal.Decimal{}, ats: map[string]time.Time{}}, nil)
	_, _, ok := gw.LastKnown("DOGEUSDT")
	require.False(t, ok)
}
