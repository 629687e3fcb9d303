package agent

import (
	"context"
	"time"

	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
	"nse-agent/internal/store"
	"nse-agent/internal/trading"
)

// List limits shared by the read views.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// DecisionLog reads the append-only decision log.
type DecisionLog struct {
	state *State
}

// Tail returns up to limit entries, newest first.
func (d *DecisionLog) Tail(ctx context.Context, limit int) ([]models.DecisionLogEntry, error) {
	entries, err := d.state.store.TailDecisionLog(ctx, clampLimit(limit))
	if err != nil {
		return nil, apperrors.NewInternalError("decision_log", err)
	}
	if entries == nil {
		entries = []models.DecisionLogEntry{}
	}
	return entries, nil
}

// Ledger reads positions and trade analytics.
type Ledger struct {
	state *State
}

// OpenPositions lists open positions, oldest entry first.
func (l *Ledger) OpenPositions(ctx context.Context) ([]models.Position, error) {
	out, err := l.state.store.GetPositions(ctx, store.PositionFilter{Status: models.PositionOpen})
	if err != nil {
		return nil, apperrors.NewInternalError("open_positions", err)
	}
	if out == nil {
		out = []models.Position{}
	}
	return out, nil
}

// ClosedPositions lists closed positions newest exit first. days > 0
// limits the list to trades closed within that many days.
func (l *Ledger) ClosedPositions(ctx context.Context, limit, days int) ([]models.Position, error) {
	filter := store.PositionFilter{Status: models.PositionClosed, Limit: clampLimit(limit)}
	if days > 0 {
		filter.ExitedAfter = l.state.now().Add(-time.Duration(days) * 24 * time.Hour)
	}
	out, err := l.state.store.GetPositions(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError("closed_positions", err)
	}
	if out == nil {
		out = []models.Position{}
	}
	return out, nil
}

// Summary computes trade analytics over closed positions, optionally
// within the last days days. Open positions are counted but not scored.
func (l *Ledger) Summary(ctx context.Context, days int) (*trading.Summary, error) {
	filter := store.PositionFilter{}
	if days > 0 {
		filter.ExitedAfter = l.state.now().Add(-time.Duration(days) * 24 * time.Hour)
	}
	all, err := l.state.store.GetPositions(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError("trade_summary", err)
	}
	if days > 0 {
		open, err := l.state.store.GetPositions(ctx, store.PositionFilter{Status: models.PositionOpen})
		if err != nil {
			return nil, apperrors.NewInternalError("trade_summary", err)
		}
		all = append(all, open...)
	}
	s := trading.Summarize(all)
	return &s, nil
}
