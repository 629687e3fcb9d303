package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PaperRouter fills every order immediately at its reference price.
type PaperRouter struct {
	orders       []PaperFill
	orderCounter int
	now          func() time.Time
	mu           sync.Mutex
}

// PaperFill is a simulated execution.
type PaperFill struct {
	OrderID  string
	Order    Order
	FilledAt time.Time
}

// NewPaperRouter creates a new paper trading router.
func NewPaperRouter() *PaperRouter {
	return &PaperRouter{now: time.Now}
}

// Name returns the router name.
func (p *PaperRouter) Name() string {
	return "paper"
}

// PlaceOrder simulates order placement.
func (p *PaperRouter) PlaceOrder(ctx context.Context, order *Order) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if order.Price <= 0 {
		return nil, fmt.Errorf("paper fill for %s needs a reference price", order.Symbol)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.orderCounter++
	filledAt := p.now()
	orderID := fmt.Sprintf("PAPER_%d_%d", filledAt.Unix(), p.orderCounter)

	p.orders = append(p.orders, PaperFill{OrderID: orderID, Order: *order, FilledAt: filledAt})

	return &OrderResult{
		OrderID:   orderID,
		Status:    "COMPLETE",
		FillPrice: order.Price,
		Message:   "Paper order filled",
	}, nil
}

// Fills returns the simulated executions in order.
func (p *PaperRouter) Fills() []PaperFill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PaperFill(nil), p.orders...)
}
