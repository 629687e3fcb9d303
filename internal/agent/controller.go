package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"nse-agent/internal/broker"
	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/logging"
	"nse-agent/internal/marketdata"
	"nse-agent/internal/models"
	"nse-agent/internal/security"
	"nse-agent/internal/store"
	"nse-agent/internal/stream"
	"nse-agent/internal/trading"
)

// KillResult reports what the kill switch did.
type KillResult struct {
	PositionsClosed  int               `json:"positions_closed"`
	Positions        []models.Position `json:"positions"`
	CapitalAvailable float64           `json:"capital_available"`
	AgentActive      bool              `json:"agent_active"`
}

// Controller handles activation, the kill switch and capital sync.
type Controller struct {
	state     *State
	market    marketdata.Provider
	routers   Routers
	capital   broker.CapitalSource
	scheduler *Scheduler
	events    Publisher
	audit     *security.AuditLogger
	logger    zerolog.Logger
}

// Activate sets agent_active.
func (c *Controller) Activate(ctx context.Context) (models.TradingConfig, error) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	next := c.state.cfg.Clone()
	next.AgentActive = true
	if err := c.state.commit(ctx, &next, nil, nil); err != nil {
		return models.TradingConfig{}, apperrors.NewInternalError("activate", err)
	}

	c.logger.Info().Msg("Agent activated")
	_ = c.audit.LogControl(ctx, security.AuditActivated, nil, nil)
	return next.Clone(), nil
}

// Kill deactivates the agent, stops the scheduler, closes every open
// position at market and clears the signal cache and decision log. The
// ledger changes commit in one transaction. On failure nothing changes and
// a scheduler that was running is restarted.
func (c *Controller) Kill(ctx context.Context) (*KillResult, error) {
	if c.scheduler == nil {
		return c.kill(ctx)
	}
	interval, wasRunning := c.scheduler.pause(ctx)
	res, err := c.kill(ctx)
	if err != nil && wasRunning {
		c.scheduler.resume(ctx, interval)
		c.logger.Warn().Dur("interval", interval).Msg("Auto-trading resumed after failed kill")
	}
	return res, err
}

func (c *Controller) kill(ctx context.Context) (*KillResult, error) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	logger := logging.WithOperation(c.logger, "kill")
	open, err := c.state.store.GetPositions(ctx, store.PositionFilter{Status: models.PositionOpen})
	if err != nil {
		return nil, c.killFailed(ctx, apperrors.NewInternalError("kill", err))
	}

	cfg := c.state.cfg
	capital := cfg.CapitalAvailable
	now := c.state.now()
	closed := make([]*models.Position, 0, len(open))

	for i := range open {
		p := open[i]
		price := p.EntryPrice
		if q, err := c.market.Quote(ctx, p.Symbol); err == nil && q.LTP > 0 {
			price = q.LTP
		} else {
			logger.Warn().Err(err).Str("symbol", p.Symbol).Msg("No market price, closing at entry")
		}

		var orderID string
		if p.TradingMode == models.TradingLive {
			router, err := c.routers.For(models.TradingLive)
			if err != nil {
				return nil, c.killFailed(ctx, apperrors.NewInternalError("kill", err))
			}
			res, err := router.PlaceOrder(ctx, broker.NewMarketOrder(p.Symbol, models.OrderSideSell, p.Quantity, price))
			if err != nil {
				return nil, c.killFailed(ctx, apperrors.NewInternalError("kill", fmt.Errorf("exit order for %s: %w", p.Symbol, err)))
			}
			orderID = res.OrderID
		}

		var pos *models.Position
		pos, capital, err = trading.Close(capital, p, price, models.ExitKillSwitch, orderID, now)
		if err != nil {
			return nil, c.killFailed(ctx, apperrors.NewInternalError("kill", err))
		}
		closed = append(closed, pos)
	}

	next := cfg.Clone()
	next.CapitalAvailable = capital
	next.AgentActive = false
	err = c.state.commit(ctx, &next, nil, func(tx *store.Tx) error {
		for _, p := range closed {
			if err := tx.ClosePosition(p); err != nil {
				return err
			}
		}
		if err := tx.ClearSignals(); err != nil {
			return err
		}
		return tx.ClearDecisionLog()
	})
	if err != nil {
		return nil, c.killFailed(ctx, apperrors.NewInternalError("kill", err))
	}

	result := &KillResult{
		PositionsClosed:  len(closed),
		Positions:        make([]models.Position, 0, len(closed)),
		CapitalAvailable: next.CapitalAvailable.InexactFloat64(),
		AgentActive:      false,
	}
	for _, p := range closed {
		result.Positions = append(result.Positions, *p)
		logging.LogExit(logger, p.ID, p.Symbol, string(p.ExitReason), p.ExitPrice, p.PnL)
	}

	logger.Warn().Int("positions_closed", result.PositionsClosed).Msg("Kill switch engaged")
	if c.events != nil {
		c.events.Publish(stream.Event{
			Type:      stream.EventKill,
			Message:   fmt.Sprintf("kill switch engaged, %d positions closed", result.PositionsClosed),
			Timestamp: now,
		})
	}
	_ = c.audit.LogControl(ctx, security.AuditKillSwitch, map[string]interface{}{
		"positions_closed": result.PositionsClosed,
	}, nil)
	return result, nil
}

func (c *Controller) killFailed(ctx context.Context, err error) error {
	c.logger.Error().Err(err).Msg("Kill switch failed, state unchanged")
	_ = c.audit.LogControl(ctx, security.AuditKillSwitch, nil, err)
	return err
}

// SyncCapital refreshes capital_available from the broker. It only applies
// in LIVE mode.
func (c *Controller) SyncCapital(ctx context.Context) (bool, error) {
	if c.state.Config().TradingMode != models.TradingLive {
		return false, nil
	}
	if c.capital == nil {
		return false, apperrors.NewPreconditionError("sync_capital", "no live broker configured")
	}

	start := time.Now()
	available, err := c.capital.AvailableCapital(ctx)
	logging.LogAPICall(c.logger, "GET", "user/margins", time.Since(start), err)
	if err != nil {
		return false, apperrors.NewDataUnavailableError("margins", "", "capital sync failed", err)
	}

	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if c.state.cfg.TradingMode != models.TradingLive {
		return false, nil
	}
	next := c.state.cfg.Clone()
	next.CapitalAvailable = available
	if err := c.state.commit(ctx, &next, nil, nil); err != nil {
		return false, apperrors.NewInternalError("sync_capital", err)
	}
	c.logger.Info().Str("capital", available.String()).Msg("Capital synced from broker")
	return true, nil
}
