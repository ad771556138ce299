package market

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ApexCore/internal/errs"
)

// PriceSource identifies where a returned price came from.
type PriceSource string

const (
	SourceStream PriceSource = "stream"
	SourceKline  PriceSource = "kline"
	SourceStale  PriceSource = "stale"
)

// TickerSource is the narrow interface the out-of-scope raw-ingestion
// system implements: one entry per symbol with last price and timestamp
// (spec.md §6 "Wire / streaming interface"). The core only depends on
// this interface, never on a concrete exchange WebSocket client.
type TickerSource interface {
	// LastTick returns the most recently observed price for symbol and
	// when it was observed. ok is false if the symbol has never ticked.
	LastTick(symbol string) (price decimal.Decimal, at time.Time, ok bool)
}

type priceEntry struct {
	price decimal.Decimal
	at    time.Time
}

// Gateway is the Price Feed Gateway (spec.md §4.1). It generalizes the
// teacher's per-symbol credential/staleness handling in
// market/historical.go into a stream-first, k-line-fallback cache guarded
// by a RWMutex the same way the teacher guards its peakPnLCache.
type Gateway struct {
	mu             sync.RWMutex
	cache          map[string]priceEntry
	stream         TickerSource
	klines         *KlineAccessor
	staleWindow    time.Duration // stream freshness threshold before falling back to k-line
	klineStaleness time.Duration // k-line close age beyond which the gateway reports stale
}

func NewGateway(stream TickerSource, klines *KlineAccessor) *Gateway {
	return &Gateway{
		cache:          make(map[string]priceEntry),
		stream:         stream,
		klines:         klines,
		staleWindow:    30 * time.Second,
		klineStaleness: 10 * time.Minute,
	}
}

// GetPrice implements spec.md §4.1's get_price(symbol) -> (price, source).
// Returns errs.StaleData when no non-stale price can be obtained; callers
// must abort the decision without retrying the gateway mid-tick.
func (g *Gateway) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, PriceSource, error) {
	if price, at, ok := g.stream.LastTick(symbol); ok && time.Since(at) <= g.staleWindow {
		g.set(symbol, price, at)
		return price, SourceStream, nil
	}

	k, err := g.klines.Get(ctx, symbol, "5m", 1)
	if err != nil {
		return decimal.Zero, "", errs.New(errs.TransientInfra, "price.GetPrice", err)
	}
	if len(k) == 0 {
		return decimal.Zero, "", errs.New(errs.StaleData, "price.GetPrice", nil)
	}
	last := k[len(k)-1]
	candleAge := time.Since(time.UnixMilli(last.OpenTime))
	if candleAge > g.klineStaleness {
		return decimal.Zero, SourceStale, errs.New(errs.StaleData, "price.GetPrice", nil)
	}
	g.set(symbol, last.Close, time.UnixMilli(last.OpenTime))
	return last.Close, SourceKline, nil
}

func (g *Gateway) set(symbol string, price decimal.Decimal, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[symbol] = priceEntry{price: price, at: at}
}

// LastKnown returns the most recently cached price without touching the
// stream or store, used by monitors that tolerate a slightly older read
// between ticks.
func (g *Gateway) LastKnown(symbol string) (decimal.Decimal, time.Time, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.cache[symbol]
	return e.price, e.at, ok
}
