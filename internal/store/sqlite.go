// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Singleton trading configuration and capital
	CREATE TABLE IF NOT EXISTS agent_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		allowed_sectors TEXT NOT NULL,
		max_capital_per_trade REAL NOT NULL,
		risk_per_trade REAL NOT NULL,
		max_trades_per_day INTEGER NOT NULL,
		stop_loss_type TEXT NOT NULL,
		stop_loss_value REAL NOT NULL,
		profit_type TEXT NOT NULL,
		profit_value REAL NOT NULL,
		execution_mode TEXT NOT NULL,
		trading_mode TEXT NOT NULL,
		agent_active INTEGER NOT NULL,
		capital_available TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- One row per scan cycle
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		total INTEGER NOT NULL,
		evaluated INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		qualified INTEGER NOT NULL
	);

	-- Signal cache
	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		scan_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		sector TEXT NOT NULL,
		entry_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		target_price REAL NOT NULL,
		risk_reward_ratio REAL NOT NULL,
		rule_checks TEXT NOT NULL,
		signal_status TEXT NOT NULL,
		execution_instruction TEXT NOT NULL,
		user_action TEXT NOT NULL DEFAULT '',
		rationale TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
	);

	-- Position ledger
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		signal_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		sector TEXT NOT NULL,
		entry_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		target_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		entry_time DATETIME NOT NULL,
		trading_mode TEXT NOT NULL,
		status TEXT NOT NULL,
		exit_price REAL NOT NULL DEFAULT 0,
		exit_time DATETIME,
		exit_reason TEXT NOT NULL DEFAULT '',
		pnl REAL NOT NULL DEFAULT 0,
		pnl_percent REAL NOT NULL DEFAULT 0,
		entry_order_id TEXT NOT NULL DEFAULT '',
		exit_order_id TEXT NOT NULL DEFAULT ''
	);

	-- Append-only decision log
	CREATE TABLE IF NOT EXISTS decision_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		kind TEXT NOT NULL,
		signal_id TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL DEFAULT '',
		signal_status TEXT NOT NULL DEFAULT '',
		user_action TEXT NOT NULL DEFAULT '',
		position_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_signals_scan ON signals(scan_id, seq);
	CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
	CREATE INDEX IF NOT EXISTS idx_positions_entry ON positions(entry_time);
	CREATE INDEX IF NOT EXISTS idx_positions_exit ON positions(exit_time);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_symbol ON positions(symbol) WHERE status = 'OPEN';
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Update runs fn inside a single transaction. The transaction commits
// only if fn returns nil.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, ctx: ctx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ============================================================================
// Agent State
// ============================================================================

// LoadState returns the persisted trading config, or nil if none was saved yet.
func (s *SQLiteStore) LoadState(ctx context.Context) (*models.TradingConfig, error) {
	var (
		cfg      models.TradingConfig
		sectors  string
		active   int
		capital  string
		execMode string
		mode     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT allowed_sectors, max_capital_per_trade, risk_per_trade, max_trades_per_day,
			stop_loss_type, stop_loss_value, profit_type, profit_value,
			execution_mode, trading_mode, agent_active, capital_available
		FROM agent_state WHERE id = 1
	`).Scan(&sectors, &cfg.MaxCapitalPerTrade, &cfg.RiskPerTrade, &cfg.MaxTradesPerDay,
		&cfg.StopLossRule.Type, &cfg.StopLossRule.Value, &cfg.ProfitBookingRule.Type, &cfg.ProfitBookingRule.Value,
		&execMode, &mode, &active, &capital)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent state: %w", err)
	}

	if err := json.Unmarshal([]byte(sectors), &cfg.AllowedSectors); err != nil {
		return nil, fmt.Errorf("failed to decode allowed sectors: %w", err)
	}
	cfg.CapitalAvailable, err = decimal.NewFromString(capital)
	if err != nil {
		return nil, fmt.Errorf("failed to decode capital: %w", err)
	}
	cfg.ExecutionMode = models.ExecutionMode(execMode)
	cfg.TradingMode = models.TradingMode(mode)
	cfg.AgentActive = active == 1

	return &cfg, nil
}

// ============================================================================
// Signals
// ============================================================================

const signalColumns = `id, scan_id, symbol, sector, entry_price, stop_loss, target_price,
	risk_reward_ratio, rule_checks, signal_status, execution_instruction, user_action, rationale, timestamp`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*models.Signal, error) {
	var (
		sig         models.Signal
		checks      string
		status      string
		instruction string
		action      string
	)
	if err := row.Scan(&sig.ID, &sig.ScanID, &sig.Symbol, &sig.Sector, &sig.EntryPrice, &sig.StopLoss,
		&sig.TargetPrice, &sig.RiskRewardRatio, &checks, &status, &instruction, &action,
		&sig.Rationale, &sig.Timestamp); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(checks), &sig.RuleChecks); err != nil {
		return nil, fmt.Errorf("failed to decode rule checks: %w", err)
	}
	sig.SignalStatus = models.SignalStatus(status)
	sig.ExecutionInstruction = models.ExecutionInstruction(instruction)
	sig.UserAction = models.UserAction(action)
	return &sig, nil
}

// GetSignal retrieves a signal by ID.
func (s *SQLiteStore) GetSignal(ctx context.Context, id string) (*models.Signal, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+signalColumns+" FROM signals WHERE id = ?", id)
	sig, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("signal %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return sig, nil
}

// LatestScan returns the most recent scan, or nil if none exists.
func (s *SQLiteStore) LatestScan(ctx context.Context) (*ScanRecord, error) {
	var rec ScanRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, total, evaluated, skipped, qualified
		FROM scans ORDER BY started_at DESC LIMIT 1
	`).Scan(&rec.ID, &rec.StartedAt, &rec.Total, &rec.Evaluated, &rec.Skipped, &rec.Qualified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest scan: %w", err)
	}
	rec.Rejected = rec.Evaluated - rec.Qualified
	return &rec, nil
}

// GetSignalsByScan returns the signals of a scan in scan order.
func (s *SQLiteStore) GetSignalsByScan(ctx context.Context, scanID string) ([]models.Signal, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+signalColumns+" FROM signals WHERE scan_id = ? ORDER BY seq ASC", scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	signals := []models.Signal{}
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, *sig)
	}
	return signals, rows.Err()
}

// GetSignalStats counts all cached signals by outcome.
func (s *SQLiteStore) GetSignalStats(ctx context.Context) (*SignalStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signal_status, execution_instruction, user_action, COUNT(*)
		FROM signals GROUP BY signal_status, execution_instruction, user_action
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal stats: %w", err)
	}
	defer rows.Close()

	stats := &SignalStats{}
	for rows.Next() {
		var status, instruction, action string
		var n int
		if err := rows.Scan(&status, &instruction, &action, &n); err != nil {
			return nil, fmt.Errorf("failed to scan signal stats: %w", err)
		}
		stats.Total += n
		switch models.SignalStatus(status) {
		case models.SignalQualified:
			stats.Qualified += n
		case models.SignalRejected:
			stats.Rejected += n
		}
		switch models.UserAction(action) {
		case models.ActionApproved:
			stats.UserApproved += n
		case models.ActionRejectedByUser:
			stats.UserRejected += n
		case models.ActionAutoExecuted:
			stats.AutoExecuted += n
		case models.ActionNone:
			if models.ExecutionInstruction(instruction) == models.InstructionWaitForUser {
				stats.AwaitingInput += n
			}
		}
	}
	return stats, rows.Err()
}

// ============================================================================
// Positions
// ============================================================================

const positionColumns = `id, signal_id, symbol, sector, entry_price, stop_loss, target_price, quantity,
	entry_time, trading_mode, status, exit_price, exit_time, exit_reason, pnl, pnl_percent,
	entry_order_id, exit_order_id`

func scanPosition(row rowScanner) (*models.Position, error) {
	var (
		p        models.Position
		mode     string
		status   string
		reason   string
		exitTime sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.SignalID, &p.Symbol, &p.Sector, &p.EntryPrice, &p.StopLoss, &p.TargetPrice,
		&p.Quantity, &p.EntryTime, &mode, &status, &p.ExitPrice, &exitTime, &reason, &p.PnL, &p.PnLPercent,
		&p.EntryOrderID, &p.ExitOrderID); err != nil {
		return nil, err
	}
	p.TradingMode = models.TradingMode(mode)
	p.Status = models.PositionStatus(status)
	p.ExitReason = models.ExitReason(reason)
	if exitTime.Valid {
		t := exitTime.Time
		p.ExitTime = &t
	}
	return &p, nil
}

// GetPositions retrieves positions. Open positions are ordered by entry
// time, closed positions by exit time, newest first.
func (s *SQLiteStore) GetPositions(ctx context.Context, filter PositionFilter) ([]models.Position, error) {
	query := "SELECT " + positionColumns + " FROM positions WHERE 1=1"
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.ExitedAfter.IsZero() {
		query += " AND exit_time >= ?"
		args = append(args, filter.ExitedAfter.UTC())
	}

	if filter.Status == models.PositionClosed {
		query += " ORDER BY exit_time DESC"
	} else {
		query += " ORDER BY entry_time ASC"
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []models.Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// GetOpenPosition returns the open position on symbol, or nil.
func (s *SQLiteStore) GetOpenPosition(ctx context.Context, symbol string) (*models.Position, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+positionColumns+" FROM positions WHERE symbol = ? AND status = ?",
		symbol, string(models.PositionOpen))
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open position: %w", err)
	}
	return p, nil
}

// CountPositionsEntered counts positions opened at or after since.
func (s *SQLiteStore) CountPositionsEntered(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM positions WHERE entry_time >= ?", since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count positions: %w", err)
	}
	return n, nil
}

// ============================================================================
// Decision Log
// ============================================================================

// TailDecisionLog returns the most recent entries, newest first.
func (s *SQLiteStore) TailDecisionLog(ctx context.Context, limit int) ([]models.DecisionLogEntry, error) {
	query := `SELECT id, timestamp, kind, signal_id, symbol, signal_status, user_action, position_id, message
		FROM decision_log ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision log: %w", err)
	}
	defer rows.Close()

	entries := []models.DecisionLogEntry{}
	for rows.Next() {
		var e models.DecisionLogEntry
		var kind, status, action string
		if err := rows.Scan(&e.ID, &e.Timestamp, &kind, &e.SignalID, &e.Symbol, &status, &action, &e.PositionID, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan decision log: %w", err)
		}
		e.Kind = models.DecisionKind(kind)
		e.Status = models.SignalStatus(status)
		e.UserAction = models.UserAction(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
