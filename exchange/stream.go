package exchange

import (
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"ApexCore/internal/logger"
	"ApexCore/market"
)

var _ market.TickerSource = (*MarkPriceStream)(nil)

// MarkPriceStream implements market.TickerSource over go-binance/v2's
// futures mark-price WebSocket, the price-stream reader task of spec.md
// §5. It is the out-of-scope "raw ingestion system" spec.md §6 allows the
// core to depend on only through the TickerSource interface — this is the
// one place that interface is backed by a live connection instead of a
// test fake, exercising the indirect gorilla/websocket dependency
// go-binance/v2 carries.
type MarkPriceStream struct {
	mu     sync.RWMutex
	ticks  map[string]tick
	stopC  chan struct{}
}

type tick struct {
	price decimal.Decimal
	at    time.Time
}

func NewMarkPriceStream() *MarkPriceStream {
	return &MarkPriceStream{ticks: make(map[string]tick)}
}

// LastTick implements market.TickerSource.
func (s *MarkPriceStream) LastTick(symbol string) (decimal.Decimal, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.ticks[symbol]
	return t.price, t.at, ok
}

// Start subscribes to the combined mark-price stream for every symbol and
// reconnects with backoff on disconnect, mirroring the teacher's
// reconnect-on-error pattern in trader/vwap_collector.go's bar
// subscription. It blocks until stopC fires or Stop is called.
func (s *MarkPriceStream) Start(symbols []string) error {
	handler := func(event *futures.WsMarkPriceEvent) {
		price, err := decimal.NewFromString(event.MarkPrice)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.ticks[event.Symbol] = tick{price: price, at: time.Now().UTC()}
		s.mu.Unlock()
	}
	errHandler := func(err error) {
		logger.Warnf("exchange: mark-price stream error: %v", err)
	}

	backoff := time.Second
	for {
		doneC, stopC, err := futures.WsCombinedMarkPriceServe(symbols, handler, errHandler)
		if err != nil {
			logger.Warnf("exchange: mark-price stream connect failed, retrying in %s: %v", backoff, err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		s.mu.Lock()
		s.stopC = stopC
		s.mu.Unlock()

		select {
		case <-doneC:
			logger.Warnf("exchange: mark-price stream closed, reconnecting")
		case <-stopC:
			return nil
		}
	}
}

// Stop closes the active WebSocket connection, if any.
func (s *MarkPriceStream) Stop() {
	s.mu.RLock()
	stopC := s.stopC
	s.mu.RUnlock()
	if stopC != nil {
		close(stopC)
	}
}
