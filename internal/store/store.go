// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"nse-agent/internal/models"
)

// DataStore defines the interface for agent persistence. Reads run
// outside a transaction; every mutation goes through Update so that a
// logical operation commits or rolls back as a unit.
type DataStore interface {
	// Agent state
	LoadState(ctx context.Context) (*models.TradingConfig, error)

	// Signals
	GetSignal(ctx context.Context, id string) (*models.Signal, error)
	LatestScan(ctx context.Context) (*ScanRecord, error)
	GetSignalsByScan(ctx context.Context, scanID string) ([]models.Signal, error)
	GetSignalStats(ctx context.Context) (*SignalStats, error)

	// Positions
	GetPositions(ctx context.Context, filter PositionFilter) ([]models.Position, error)
	GetOpenPosition(ctx context.Context, symbol string) (*models.Position, error)
	CountPositionsEntered(ctx context.Context, since time.Time) (int, error)

	// Decision log
	TailDecisionLog(ctx context.Context, limit int) ([]models.DecisionLogEntry, error)

	// Mutations
	Update(ctx context.Context, fn func(tx *Tx) error) error

	// Lifecycle
	Close() error
}

// PositionFilter represents filters for querying positions.
type PositionFilter struct {
	Status      models.PositionStatus
	Symbol      string
	ExitedAfter time.Time
	Limit       int
}

// ScanRecord summarizes one scan cycle.
type ScanRecord struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Total     int       `json:"total"`
	Evaluated int       `json:"evaluated"`
	Skipped   int       `json:"skipped"`
	Qualified int       `json:"qualified"`
	Rejected  int       `json:"rejected"`
}

// SignalStats counts signals by outcome.
type SignalStats struct {
	Total         int `json:"total_signals"`
	Qualified     int `json:"qualified"`
	Rejected      int `json:"rejected"`
	UserApproved  int `json:"user_approved"`
	UserRejected  int `json:"user_rejected"`
	AutoExecuted  int `json:"auto_executed"`
	AwaitingInput int `json:"awaiting_input"`
}
