// Package broker provides order routing for paper and live trading.
package broker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nse-agent/internal/models"
)

// OrderRouter places the market orders that open and close positions.
type OrderRouter interface {
	// Name identifies the router in logs.
	Name() string
	PlaceOrder(ctx context.Context, order *Order) (*OrderResult, error)
}

// CapitalSource reports the capital a broker account can deploy.
type CapitalSource interface {
	AvailableCapital(ctx context.Context) (decimal.Decimal, error)
}

// Order is an intraday order request.
type Order struct {
	Symbol   string
	Exchange models.Exchange
	Side     models.OrderSide
	Type     models.OrderType
	Product  models.ProductType
	Quantity int
	// Price is the reference price. Paper fills happen here; live market
	// orders ignore it.
	Price float64
	Tag   string
}

// OrderResult represents the result of an order placement.
type OrderResult struct {
	OrderID   string
	Status    string
	FillPrice float64
	Message   string
}

// NewMarketOrder builds an NSE MIS market order.
func NewMarketOrder(symbol string, side models.OrderSide, qty int, refPrice float64) *Order {
	return &Order{
		Symbol:   symbol,
		Exchange: models.NSE,
		Side:     side,
		Type:     models.OrderTypeMarket,
		Product:  models.ProductMIS,
		Quantity: qty,
		Price:    refPrice,
		Tag:      "nseagent",
	}
}

// Validate checks the order before it is routed.
func (o *Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("order symbol is required")
	}
	if o.Quantity < 1 {
		return fmt.Errorf("order quantity must be at least 1, got %d", o.Quantity)
	}
	switch o.Side {
	case models.OrderSideBuy, models.OrderSideSell:
	default:
		return fmt.Errorf("invalid order side: %q", o.Side)
	}
	if o.Type == models.OrderTypeLimit && o.Price <= 0 {
		return fmt.Errorf("limit order requires a positive price")
	}
	return nil
}
