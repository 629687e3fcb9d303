package models

import "time"

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitTargetHit   ExitReason = "TARGET_HIT"
	ExitStopLossHit ExitReason = "STOP_LOSS_HIT"
	ExitKillSwitch  ExitReason = "KILL_SWITCH"
	ExitManual      ExitReason = "MANUAL"
)

// Position is a trade opened from a qualified signal.
type Position struct {
	ID           string         `json:"id"`
	SignalID     string         `json:"signal_id"`
	Symbol       string         `json:"symbol"`
	Sector       string         `json:"sector"`
	EntryPrice   float64        `json:"entry_price"`
	StopLoss     float64        `json:"stop_loss"`
	TargetPrice  float64        `json:"target_price"`
	Quantity     int            `json:"quantity"`
	EntryTime    time.Time      `json:"entry_time"`
	TradingMode  TradingMode    `json:"trading_mode"`
	Status       PositionStatus `json:"status"`
	ExitPrice    float64        `json:"exit_price,omitempty"`
	ExitTime     *time.Time     `json:"exit_time,omitempty"`
	ExitReason   ExitReason     `json:"exit_reason,omitempty"`
	PnL          float64        `json:"pnl"`
	PnLPercent   float64        `json:"pnl_percent"`
	EntryOrderID string         `json:"entry_order_id,omitempty"`
	ExitOrderID  string         `json:"exit_order_id,omitempty"`
}

// IsOpen reports whether the position is still open.
func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// Cost is the capital committed at entry.
func (p *Position) Cost() float64 {
	return p.EntryPrice * float64(p.Quantity)
}
