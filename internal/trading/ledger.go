// Package trading provides position sizing, capital accounting, exit
// detection and trade analytics for the agent.
package trading

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
)

var hundred = decimal.NewFromInt(100)

// QuantityFor sizes a position: the per-trade budget is maxCapitalPct of
// capital, and the quantity is the whole number of shares it buys.
func QuantityFor(capital decimal.Decimal, maxCapitalPct, entryPrice float64) int {
	if entryPrice <= 0 || maxCapitalPct <= 0 || !capital.IsPositive() {
		return 0
	}
	budget := capital.Mul(decimal.NewFromFloat(maxCapitalPct)).Div(hundred)
	qty := int(budget.Div(decimal.NewFromFloat(entryPrice)).Floor().IntPart())
	// Div rounds at a fixed precision; step back if that overshot.
	for qty > 0 && CostOf(entryPrice, qty).GreaterThan(budget) {
		qty--
	}
	return qty
}

// CostOf is the capital committed by buying qty shares at price.
func CostOf(price float64, qty int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty)))
}

// Entry describes a position about to be opened.
type Entry struct {
	ID          string
	SignalID    string
	Symbol      string
	Sector      string
	Price       float64
	StopLoss    float64
	TargetPrice float64
	Quantity    int
	Mode        models.TradingMode
	OrderID     string
	At          time.Time
}

// Open debits capital for a new position. It fails with an
// InsufficientCapitalError when the quantity is below one share or the cost
// exceeds the available capital; capital is returned unchanged in that case.
func Open(capital decimal.Decimal, e Entry) (*models.Position, decimal.Decimal, error) {
	cost := CostOf(e.Price, e.Quantity)
	if e.Quantity < 1 || cost.GreaterThan(capital) {
		return nil, capital, apperrors.NewInsufficientCapitalError(e.Symbol, cost.InexactFloat64(), capital.InexactFloat64())
	}

	pos := &models.Position{
		ID:           e.ID,
		SignalID:     e.SignalID,
		Symbol:       e.Symbol,
		Sector:       e.Sector,
		EntryPrice:   e.Price,
		StopLoss:     e.StopLoss,
		TargetPrice:  e.TargetPrice,
		Quantity:     e.Quantity,
		EntryTime:    e.At,
		TradingMode:  e.Mode,
		Status:       models.PositionOpen,
		EntryOrderID: e.OrderID,
	}
	return pos, capital.Sub(cost), nil
}

// Close settles an open position at exitPrice and returns the closed copy
// together with the capital after crediting cost plus pnl.
func Close(capital decimal.Decimal, pos models.Position, exitPrice float64, reason models.ExitReason, orderID string, at time.Time) (*models.Position, decimal.Decimal, error) {
	if !pos.IsOpen() {
		return nil, capital, fmt.Errorf("position %s is already closed", pos.ID)
	}

	entry := decimal.NewFromFloat(pos.EntryPrice)
	exit := decimal.NewFromFloat(exitPrice)
	qty := decimal.NewFromInt(int64(pos.Quantity))
	pnl := exit.Sub(entry).Mul(qty)

	closed := pos
	exitTime := at
	closed.Status = models.PositionClosed
	closed.ExitPrice = exitPrice
	closed.ExitTime = &exitTime
	closed.ExitReason = reason
	closed.ExitOrderID = orderID
	closed.PnL = pnl.InexactFloat64()
	if !entry.IsZero() {
		closed.PnLPercent = exit.Sub(entry).Div(entry).Mul(hundred).InexactFloat64()
	}

	credit := entry.Mul(qty).Add(pnl)
	return &closed, capital.Add(credit), nil
}

// CheckExit reports whether price triggers an exit for pos. When both the
// stop and the target are crossed the stop-loss wins.
func CheckExit(pos *models.Position, price float64) (models.ExitReason, bool) {
	switch {
	case price <= pos.StopLoss:
		return models.ExitStopLossHit, true
	case price >= pos.TargetPrice:
		return models.ExitTargetHit, true
	default:
		return "", false
	}
}

// Levels computes stop, target and risk/reward from an entry price and the
// configured percentage rules.
func Levels(entry, stopPct, targetPct float64) (stop, target, rr float64) {
	e := decimal.NewFromFloat(entry)
	s := e.Mul(hundred.Sub(decimal.NewFromFloat(stopPct))).Div(hundred)
	tg := e.Mul(hundred.Add(decimal.NewFromFloat(targetPct))).Div(hundred)

	stop = s.InexactFloat64()
	target = tg.InexactFloat64()
	risk := e.Sub(s)
	if risk.IsPositive() {
		rr = tg.Sub(e).Div(risk).InexactFloat64()
	}
	return stop, target, rr
}
