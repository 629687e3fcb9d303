package broker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"nse-agent/internal/models"
)

// kiteClient is the subset of the Kite Connect client the router uses.
type kiteClient interface {
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	GetOrderHistory(orderID string) ([]kiteconnect.Order, error)
	GetUserMargins() (kiteconnect.AllMargins, error)
}

// ZerodhaRouter routes live orders through Zerodha Kite Connect.
type ZerodhaRouter struct {
	client kiteClient
}

// ZerodhaConfig holds configuration for the Zerodha router.
type ZerodhaConfig struct {
	APIKey      string
	AccessToken string
}

// NewZerodhaRouter creates a router with an already issued access token.
func NewZerodhaRouter(cfg ZerodhaConfig) (*ZerodhaRouter, error) {
	if cfg.APIKey == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("zerodha api key and access token are required")
	}
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	return &ZerodhaRouter{client: client}, nil
}

// Name returns the router name.
func (z *ZerodhaRouter) Name() string {
	return "zerodha"
}

// PlaceOrder places a regular order and resolves its average fill price.
func (z *ZerodhaRouter) PlaceOrder(ctx context.Context, order *Order) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	params := kiteconnect.OrderParams{
		Exchange:        string(order.Exchange),
		Tradingsymbol:   order.Symbol,
		TransactionType: string(order.Side),
		OrderType:       string(order.Type),
		Product:         string(order.Product),
		Quantity:        order.Quantity,
		Validity:        "DAY",
		Tag:             order.Tag,
	}
	if order.Type == models.OrderTypeLimit {
		params.Price = order.Price
	}

	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	result := &OrderResult{
		OrderID:   resp.OrderID,
		Status:    "PLACED",
		FillPrice: order.Price,
		Message:   "Order placed successfully",
	}

	// The reference price stands in when the history is not yet available.
	history, err := z.client.GetOrderHistory(resp.OrderID)
	if err == nil && len(history) > 0 {
		last := history[len(history)-1]
		if last.Status != "" {
			result.Status = last.Status
		}
		if last.AveragePrice > 0 {
			result.FillPrice = last.AveragePrice
		}
		if last.Status == "REJECTED" {
			return nil, fmt.Errorf("order %s rejected: %s", resp.OrderID, last.StatusMessage)
		}
	}
	return result, nil
}

// AvailableCapital returns the net equity margin of the account.
func (z *ZerodhaRouter) AvailableCapital(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	margins, err := z.client.GetUserMargins()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get margins: %w", err)
	}
	net := margins.Equity.Net
	if net <= 0 {
		net = margins.Equity.Available.Cash
	}
	if net < 0 {
		net = 0
	}
	return decimal.NewFromFloat(net).Round(2), nil
}
