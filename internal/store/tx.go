package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
)

// Tx exposes the mutations available inside Update.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// SaveState writes the singleton trading config.
func (t *Tx) SaveState(cfg *models.TradingConfig) error {
	sectors, err := json.Marshal(cfg.AllowedSectors)
	if err != nil {
		return fmt.Errorf("failed to encode allowed sectors: %w", err)
	}
	active := 0
	if cfg.AgentActive {
		active = 1
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT OR REPLACE INTO agent_state (id, allowed_sectors, max_capital_per_trade, risk_per_trade,
			max_trades_per_day, stop_loss_type, stop_loss_value, profit_type, profit_value,
			execution_mode, trading_mode, agent_active, capital_available, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(sectors), cfg.MaxCapitalPerTrade, cfg.RiskPerTrade, cfg.MaxTradesPerDay,
		cfg.StopLossRule.Type, cfg.StopLossRule.Value, cfg.ProfitBookingRule.Type, cfg.ProfitBookingRule.Value,
		string(cfg.ExecutionMode), string(cfg.TradingMode), active, cfg.CapitalAvailable.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save agent state: %w", err)
	}
	return nil
}

// InsertScan records a scan cycle and its signals in scan order.
func (t *Tx) InsertScan(rec *ScanRecord, signals []models.Signal) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO scans (id, started_at, total, evaluated, skipped, qualified)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.StartedAt.UTC(), rec.Total, rec.Evaluated, rec.Skipped, rec.Qualified)
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	stmt, err := t.tx.PrepareContext(t.ctx, `
		INSERT INTO signals (id, scan_id, seq, symbol, sector, entry_price, stop_loss, target_price,
			risk_reward_ratio, rule_checks, signal_status, execution_instruction, user_action, rationale, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, sig := range signals {
		checks, err := json.Marshal(sig.RuleChecks)
		if err != nil {
			return fmt.Errorf("failed to encode rule checks: %w", err)
		}
		_, err = stmt.ExecContext(t.ctx, sig.ID, rec.ID, i, sig.Symbol, sig.Sector, sig.EntryPrice, sig.StopLoss,
			sig.TargetPrice, sig.RiskRewardRatio, string(checks), string(sig.SignalStatus),
			string(sig.ExecutionInstruction), string(sig.UserAction), sig.Rationale, sig.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert signal: %w", err)
		}
	}
	return nil
}

// SetUserAction records the single decision on a signal. It fails with
// ErrPrecondition if the signal already carries one.
func (t *Tx) SetUserAction(signalID string, action models.UserAction) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE signals SET user_action = ? WHERE id = ? AND user_action = ''
	`, string(action), signalID)
	if err != nil {
		return fmt.Errorf("failed to update signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update signal: %w", err)
	}
	if n == 0 {
		return apperrors.NewPreconditionError("set_user_action", "signal "+signalID+" already actioned or missing")
	}
	return nil
}

// InsertPosition adds a new open position.
func (t *Tx) InsertPosition(p *models.Position) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO positions (id, signal_id, symbol, sector, entry_price, stop_loss, target_price, quantity,
			entry_time, trading_mode, status, entry_order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.SignalID, p.Symbol, p.Sector, p.EntryPrice, p.StopLoss, p.TargetPrice, p.Quantity,
		p.EntryTime.UTC(), string(p.TradingMode), string(p.Status), p.EntryOrderID)
	if err != nil {
		return fmt.Errorf("failed to insert position: %w", err)
	}
	return nil
}

// ClosePosition persists the exit fields of a position that is still open.
func (t *Tx) ClosePosition(p *models.Position) error {
	if p.ExitTime == nil {
		return fmt.Errorf("position %s has no exit time", p.ID)
	}
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE positions
		SET status = ?, exit_price = ?, exit_time = ?, exit_reason = ?, pnl = ?, pnl_percent = ?, exit_order_id = ?
		WHERE id = ? AND status = ?
	`, string(models.PositionClosed), p.ExitPrice, p.ExitTime.UTC(), string(p.ExitReason), p.PnL, p.PnLPercent,
		p.ExitOrderID, p.ID, string(models.PositionOpen))
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("position %s is not open: %w", p.ID, apperrors.ErrNotFound)
	}
	return nil
}

// AppendLog appends entries and assigns their IDs.
func (t *Tx) AppendLog(entries ...*models.DecisionLogEntry) error {
	for _, e := range entries {
		res, err := t.tx.ExecContext(t.ctx, `
			INSERT INTO decision_log (timestamp, kind, signal_id, symbol, signal_status, user_action, position_id, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, e.Timestamp.UTC(), string(e.Kind), e.SignalID, e.Symbol, string(e.Status), string(e.UserAction),
			e.PositionID, e.Message)
		if err != nil {
			return fmt.Errorf("failed to append decision log: %w", err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to append decision log: %w", err)
		}
	}
	return nil
}

// ClearSignals deletes every scan and cached signal.
func (t *Tx) ClearSignals() error {
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM signals"); err != nil {
		return fmt.Errorf("failed to clear signals: %w", err)
	}
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM scans"); err != nil {
		return fmt.Errorf("failed to clear scans: %w", err)
	}
	return nil
}

// ClearDecisionLog deletes every decision log entry.
func (t *Tx) ClearDecisionLog() error {
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM decision_log"); err != nil {
		return fmt.Errorf("failed to clear decision log: %w", err)
	}
	return nil
}
