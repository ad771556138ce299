package exchange

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"ApexCore/internal/errs"
)

// BinanceClient adapts github.com/adshao/go-binance/v2's futures client
// to the narrow exchange.Client boundary. It is the sole concrete
// execution adapter (SPEC_FULL DOMAIN STACK): spec.md §3 restricts the
// core to one USDT-margined futures account, and go-binance/v2 is the
// teacher's own primary exchange dependency.
type BinanceClient struct {
	raw *futures.Client
}

func NewBinanceClient(apiKey, apiSecret string, testnet bool) *BinanceClient {
	futures.UseTestnet = testnet
	return &BinanceClient{raw: futures.NewClient(apiKey, apiSecret)}
}

func (c *BinanceClient) MarketOrder(ctx context.Context, symbol string, side OrderSide, quantity decimal.Decimal) (*OrderResult, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	order, err := c.raw.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity.String()).
		Do(ctx)
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "exchange.MarketOrder", err)
	}
	return parseOrderResult(order)
}

func (c *BinanceClient) LimitOrder(ctx context.Context, symbol string, side OrderSide, quantity, price decimal.Decimal, tif TimeInForce) (*OrderResult, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	order, err := c.raw.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceType(tif)).
		Quantity(quantity.String()).
		Price(price.String()).
		Do(ctx)
	if err != nil {
		return nil, errs.New(errs.TransientInfra, "exchange.LimitOrder", err)
	}
	return parseOrderResult(order)
}

func (c *BinanceClient) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	if err := ValidateSymbol(symbol); err != nil {
		return err
	}
	var orderID int64
	if _, err := fmt.Sscanf(exchangeOrderID, "%d", &orderID); err != nil {
		return errs.New(errs.ContractViolation, "exchange.CancelOrder", err)
	}
	_, err := c.raw.NewCancelOrderService().Symbol(symbol).OrderID(orderID).Do(ctx)
	if err != nil {
		return errs.New(errs.TransientInfra, "exchange.CancelOrder", err)
	}
	return nil
}

func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := ValidateSymbol(symbol); err != nil {
		return err
	}
	_, err := c.raw.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return errs.New(errs.TransientInfra, "exchange.SetLeverage", err)
	}
	return nil
}

func parseOrderResult(order *futures.CreateOrderResponse) (*OrderResult, error) {
	avgPrice, err := decimal.NewFromString(order.AvgPrice)
	if err != nil {
		avgPrice = decimal.Zero
	}
	executed, err := decimal.NewFromString(order.ExecutedQuantity)
	if err != nil {
		executed = decimal.Zero
	}
	return &OrderResult{
		ExchangeOrderID: fmt.Sprintf("%d", order.OrderID),
		AvgFillPrice:    avgPrice,
		FilledQuantity:  executed,
	}, nil
}
