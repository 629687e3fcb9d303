package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nse-agent/internal/broker"
	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/logging"
	"nse-agent/internal/marketdata"
	"nse-agent/internal/models"
	"nse-agent/internal/security"
	"nse-agent/internal/store"
	"nse-agent/internal/trading"
)

// Routers selects the order router for a trading mode. Live is nil when
// no broker is configured.
type Routers struct {
	Paper broker.OrderRouter
	Live  broker.OrderRouter
}

// For returns the router for mode.
func (r Routers) For(mode models.TradingMode) (broker.OrderRouter, error) {
	if mode == models.TradingLive {
		if r.Live == nil {
			return nil, apperrors.NewPreconditionError("route_order", "no live broker configured")
		}
		return r.Live, nil
	}
	return r.Paper, nil
}

// ExecutionGateway turns qualified signals into positions and closes
// positions whose exit levels are reached.
type ExecutionGateway struct {
	state       *State
	market      marketdata.Provider
	routers     Routers
	audit       *security.AuditLogger
	concurrency int
	newID       func() string
	logger      zerolog.Logger
}

// MonitorResult summarizes one exit check.
type MonitorResult struct {
	Checked int               `json:"checked"`
	Skipped int               `json:"skipped"`
	Closed  []models.Position `json:"closed"`
}

func checkActionable(op string, cfg *models.TradingConfig, sig *models.Signal) error {
	switch {
	case !cfg.AgentActive:
		return apperrors.NewPreconditionError(op, "agent is not active")
	case sig.SignalStatus != models.SignalQualified:
		return apperrors.NewPreconditionError(op, "signal "+sig.ID+" is not qualified")
	case sig.ExecutionInstruction != models.InstructionWaitForUser:
		return apperrors.NewPreconditionError(op, "signal "+sig.ID+" does not await user confirmation")
	case sig.UserAction != models.ActionNone:
		return apperrors.NewPreconditionError(op, "signal "+sig.ID+" already has action "+string(sig.UserAction))
	}
	return nil
}

// Approve opens a position for a signal waiting on the user. Capital and
// duplicate-symbol failures are logged and returned; the signal stays
// actionable.
func (g *ExecutionGateway) Approve(ctx context.Context, signalID string) (*models.Position, error) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()

	sig, err := g.state.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if err := checkActionable("approve", &g.state.cfg, sig); err != nil {
		return nil, err
	}

	pos, err := g.open(ctx, sig, models.ActionApproved, models.DecisionUserApproved)
	if err != nil {
		g.decline(ctx, sig, models.DecisionExecutionFailed, err)
		_ = g.audit.LogSignalDecision(ctx, sig.ID, sig.Symbol, true, err.Error())
		return nil, err
	}
	_ = g.audit.LogSignalDecision(ctx, sig.ID, sig.Symbol, true, "")
	return pos, nil
}

// Reject records the user's rejection. It has no ledger effect.
func (g *ExecutionGateway) Reject(ctx context.Context, signalID string) (*models.Signal, error) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()

	sig, err := g.state.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if err := checkActionable("reject", &g.state.cfg, sig); err != nil {
		return nil, err
	}

	entry := &models.DecisionLogEntry{
		Timestamp:  g.state.now(),
		Kind:       models.DecisionUserRejected,
		SignalID:   sig.ID,
		Symbol:     sig.Symbol,
		Status:     sig.SignalStatus,
		UserAction: models.ActionRejectedByUser,
		Message:    "Rejected by user",
	}
	err = g.state.commit(ctx, nil, []*models.DecisionLogEntry{entry}, func(tx *store.Tx) error {
		return tx.SetUserAction(sig.ID, models.ActionRejectedByUser)
	})
	if err != nil {
		var pe *apperrors.PreconditionError
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, apperrors.NewInternalError("reject", err)
	}

	_ = g.audit.LogSignalDecision(ctx, sig.ID, sig.Symbol, false, "")
	sig.UserAction = models.ActionRejectedByUser
	return sig, nil
}

// AutoExecute opens a position for an AUTO_EXECUTE signal. It never fails:
// any reason not to execute is logged and the signal is left untouched.
func (g *ExecutionGateway) AutoExecute(ctx context.Context, signalID string) (*models.Position, bool) {
	g.state.mu.Lock()
	defer g.state.mu.Unlock()

	logger := logging.WithOperation(g.logger, "auto_execute")
	sig, err := g.state.store.GetSignal(ctx, signalID)
	if err != nil {
		logger.Warn().Err(err).Str("signal_id", signalID).Msg("Auto-execution skipped")
		return nil, false
	}

	cfg := &g.state.cfg
	var reason error
	switch {
	case cfg.ExecutionMode != models.ExecutionAutoRuled:
		reason = apperrors.NewPreconditionError("auto_execute", "execution mode is "+string(cfg.ExecutionMode))
	case !cfg.AgentActive:
		reason = apperrors.NewPreconditionError("auto_execute", "agent is not active")
	case sig.SignalStatus != models.SignalQualified || sig.ExecutionInstruction != models.InstructionAutoExecute:
		reason = apperrors.NewPreconditionError("auto_execute", "signal is not marked for auto-execution")
	case sig.UserAction != models.ActionNone:
		reason = apperrors.NewPreconditionError("auto_execute", "signal already has action "+string(sig.UserAction))
	}
	if reason == nil {
		pos, err := g.open(ctx, sig, models.ActionAutoExecuted, models.DecisionAutoExecuted)
		if err == nil {
			return pos, true
		}
		reason = err
	}

	logger.Info().Err(reason).Str("signal_id", sig.ID).Str("symbol", sig.Symbol).Msg("Auto-execution skipped")
	g.decline(ctx, sig, models.DecisionAutoSkipped, reason)
	return nil, false
}

// open sizes, routes and records a BUY for sig. The caller holds the state
// lock and has checked the signal is actionable.
func (g *ExecutionGateway) open(ctx context.Context, sig *models.Signal, action models.UserAction, kind models.DecisionKind) (*models.Position, error) {
	cfg := g.state.cfg
	qty := trading.QuantityFor(cfg.CapitalAvailable, cfg.MaxCapitalPerTrade, sig.EntryPrice)

	existing, err := g.state.store.GetOpenPosition(ctx, sig.Symbol)
	if err != nil {
		return nil, apperrors.NewInternalError("open_position", err)
	}
	if existing != nil {
		return nil, apperrors.NewPreconditionError("open_position", "position already open for "+sig.Symbol)
	}

	entry := trading.Entry{
		ID:          g.newID(),
		SignalID:    sig.ID,
		Symbol:      sig.Symbol,
		Sector:      sig.Sector,
		Price:       sig.EntryPrice,
		StopLoss:    sig.StopLoss,
		TargetPrice: sig.TargetPrice,
		Quantity:    qty,
		Mode:        cfg.TradingMode,
		At:          g.state.now(),
	}
	if _, _, err := trading.Open(cfg.CapitalAvailable, entry); err != nil {
		return nil, err
	}

	router, err := g.routers.For(cfg.TradingMode)
	if err != nil {
		return nil, err
	}
	res, err := router.PlaceOrder(ctx, broker.NewMarketOrder(sig.Symbol, models.OrderSideBuy, qty, sig.EntryPrice))
	if err != nil {
		return nil, apperrors.NewInternalError("place_order", err)
	}
	entry.OrderID = res.OrderID

	pos, remaining, err := trading.Open(cfg.CapitalAvailable, entry)
	if err != nil {
		return nil, err
	}
	next := cfg.Clone()
	next.CapitalAvailable = remaining

	logEntry := &models.DecisionLogEntry{
		Timestamp:  entry.At,
		Kind:       kind,
		SignalID:   sig.ID,
		Symbol:     sig.Symbol,
		Status:     sig.SignalStatus,
		UserAction: action,
		PositionID: pos.ID,
		Message: fmt.Sprintf("Opened %d x %s @ %.2f (%s, order %s)",
			pos.Quantity, pos.Symbol, pos.EntryPrice, pos.TradingMode, res.OrderID),
	}
	err = g.state.commit(ctx, &next, []*models.DecisionLogEntry{logEntry}, func(tx *store.Tx) error {
		if err := tx.SetUserAction(sig.ID, action); err != nil {
			return err
		}
		return tx.InsertPosition(pos)
	})
	if err != nil {
		g.logger.Error().Err(err).
			Str("symbol", sig.Symbol).
			Str("order_id", res.OrderID).
			Msg("Order placed but position could not be recorded")
		return nil, apperrors.NewInternalError("open_position", err)
	}

	logging.LogExecution(g.logger, pos.ID, pos.Symbol, string(pos.TradingMode), pos.Quantity, pos.EntryPrice)
	_ = g.audit.LogPosition(ctx, true, pos.ID, pos.Symbol, pos.EntryOrderID, pos.Quantity, pos.EntryPrice, string(action))
	return pos, nil
}

// decline logs why a signal was not executed. The caller holds the lock.
func (g *ExecutionGateway) decline(ctx context.Context, sig *models.Signal, kind models.DecisionKind, reason error) {
	entry := &models.DecisionLogEntry{
		Timestamp: g.state.now(),
		Kind:      kind,
		SignalID:  sig.ID,
		Symbol:    sig.Symbol,
		Status:    sig.SignalStatus,
		Message:   reason.Error(),
	}
	if err := g.state.commit(ctx, nil, []*models.DecisionLogEntry{entry}, nil); err != nil {
		g.logger.Error().Err(err).Str("signal_id", sig.ID).Msg("Failed to log declined execution")
	}
}

// MonitorExits closes every open position whose stop-loss or target has
// been reached. Prices are fetched without holding the lock; each close is
// re-verified and committed on its own.
func (g *ExecutionGateway) MonitorExits(ctx context.Context) (*MonitorResult, error) {
	open, err := g.state.store.GetPositions(ctx, store.PositionFilter{Status: models.PositionOpen})
	if err != nil {
		return nil, apperrors.NewInternalError("monitor_exits", err)
	}
	result := &MonitorResult{Checked: len(open), Closed: []models.Position{}}
	if len(open) == 0 {
		return result, nil
	}

	prices := make([]float64, len(open))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i := range open {
		i := i
		eg.Go(func() error {
			q, err := g.market.Quote(ectx, open[i].Symbol)
			if err != nil {
				l := logging.WithSymbol(g.logger, open[i].Symbol)
				l.Warn().Err(err).Msg("Exit check skipped")
				return nil
			}
			prices[i] = q.LTP
			return nil
		})
	}
	_ = eg.Wait()

	g.state.mu.Lock()
	defer g.state.mu.Unlock()

	for i, p := range open {
		price := prices[i]
		if price <= 0 {
			result.Skipped++
			continue
		}
		current, err := g.state.store.GetOpenPosition(ctx, p.Symbol)
		if err != nil || current == nil || current.ID != p.ID {
			continue
		}
		reason, hit := trading.CheckExit(current, price)
		if !hit {
			continue
		}
		closed, err := g.close(ctx, current, price, reason, models.DecisionPositionClosed)
		if err != nil {
			l := logging.WithSymbol(g.logger, p.Symbol)
			l.Error().Err(err).Msg("Failed to close position")
			result.Skipped++
			continue
		}
		result.Closed = append(result.Closed, *closed)
	}
	return result, nil
}

// close routes a SELL and settles pos. The caller holds the lock.
func (g *ExecutionGateway) close(ctx context.Context, pos *models.Position, price float64, reason models.ExitReason, kind models.DecisionKind) (*models.Position, error) {
	router, err := g.routers.For(pos.TradingMode)
	if err != nil {
		return nil, err
	}
	res, err := router.PlaceOrder(ctx, broker.NewMarketOrder(pos.Symbol, models.OrderSideSell, pos.Quantity, price))
	if err != nil {
		return nil, apperrors.NewInternalError("place_order", err)
	}

	cfg := g.state.cfg
	closed, capital, err := trading.Close(cfg.CapitalAvailable, *pos, price, reason, res.OrderID, g.state.now())
	if err != nil {
		return nil, err
	}
	next := cfg.Clone()
	next.CapitalAvailable = capital

	entry := &models.DecisionLogEntry{
		Timestamp:  *closed.ExitTime,
		Kind:       kind,
		SignalID:   closed.SignalID,
		Symbol:     closed.Symbol,
		PositionID: closed.ID,
		Message:    fmt.Sprintf("Closed %s @ %.2f: %s, P&L %.2f", closed.Symbol, price, reason, closed.PnL),
	}
	err = g.state.commit(ctx, &next, []*models.DecisionLogEntry{entry}, func(tx *store.Tx) error {
		return tx.ClosePosition(closed)
	})
	if err != nil {
		return nil, apperrors.NewInternalError("close_position", err)
	}

	logging.LogExit(g.logger, closed.ID, closed.Symbol, string(reason), price, closed.PnL)
	_ = g.audit.LogPosition(ctx, false, closed.ID, closed.Symbol, closed.ExitOrderID, closed.Quantity, price, string(reason))
	return closed, nil
}

func newPositionID() string {
	return uuid.NewString()
}
