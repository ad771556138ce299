// Package exchange is the narrow execution boundary the Entry Executor
// and Exit Optimizer talk to. spec.md §4.7 Non-goal restricts the core to
// a single USDT-margined futures account; the suffix check below is the
// boundary enforcement point.
package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ApexCore/internal/errs"
)

// OrderResult is what a placed order resolves to once filled (or
// rejected) by the exchange.
type OrderResult struct {
	ExchangeOrderID string
	AvgFillPrice    decimal.Decimal
	FilledQuantity  decimal.Decimal
	Fee             decimal.Decimal
}

// Client is the execution boundary. Only a USDT-margined perpetual
// futures market is supported; implementations must reject any symbol
// without the USDT suffix (e.g. BTCUSDT) at the boundary (spec.md §4.7a).
type Client interface {
	MarketOrder(ctx context.Context, symbol string, side OrderSide, quantity decimal.Decimal) (*OrderResult, error)
	LimitOrder(ctx context.Context, symbol string, side OrderSide, quantity, price decimal.Decimal, timeInForce TimeInForce) (*OrderResult, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
)

// ValidateSymbol enforces the USDT-margined-only boundary. Every adapter
// method should call this before touching the network.
func ValidateSymbol(symbol string) error {
	if !strings.HasSuffix(symbol, "USDT") {
		return errs.New(errs.ContractViolation, "exchange.ValidateSymbol", fmt.Errorf("symbol %s is not a USDT-margined market", symbol))
	}
	return nil
}
