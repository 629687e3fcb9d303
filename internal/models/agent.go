package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionMode controls whether qualified signals need a human decision.
type ExecutionMode string

const (
	ExecutionManualConfirm ExecutionMode = "MANUAL_CONFIRM"
	ExecutionAutoRuled     ExecutionMode = "AUTO_RULED"
)

// TradingMode selects paper or live order routing.
type TradingMode string

const (
	TradingPaper TradingMode = "PAPER"
	TradingLive  TradingMode = "LIVE"
)

// Rule types accepted for stop-loss and profit booking.
const (
	RuleFixedPercent  = "fixed_percent"
	RuleTargetPercent = "target_percent"
)

// Rule is a typed percentage rule.
type Rule struct {
	Type  string  `json:"type" mapstructure:"type"`
	Value float64 `json:"value" mapstructure:"value"`
}

// TradingConfig is the single active agent configuration.
type TradingConfig struct {
	AllowedSectors     []string        `json:"allowed_sectors"`
	MaxCapitalPerTrade float64         `json:"max_capital_per_trade"`
	RiskPerTrade       float64         `json:"risk_per_trade"`
	MaxTradesPerDay    int             `json:"max_trades_per_day"`
	StopLossRule       Rule            `json:"stop_loss_rule"`
	ProfitBookingRule  Rule            `json:"profit_booking_rule"`
	ExecutionMode      ExecutionMode   `json:"execution_mode"`
	TradingMode        TradingMode     `json:"trading_mode"`
	AgentActive        bool            `json:"agent_active"`
	CapitalAvailable   decimal.Decimal `json:"capital_available"`
}

// MarshalJSON renders capital as a JSON number.
func (c TradingConfig) MarshalJSON() ([]byte, error) {
	type plain TradingConfig
	return json.Marshal(struct {
		plain
		CapitalAvailable float64 `json:"capital_available"`
	}{
		plain:            plain(c),
		CapitalAvailable: c.CapitalAvailable.InexactFloat64(),
	})
}

// SectorAllowed reports whether sector is in the allowed set.
func (c *TradingConfig) SectorAllowed(sector string) bool {
	for _, s := range c.AllowedSectors {
		if s == sector {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c TradingConfig) Clone() TradingConfig {
	out := c
	out.AllowedSectors = append([]string(nil), c.AllowedSectors...)
	return out
}

// SignalStatus is the qualification outcome of a signal.
type SignalStatus string

const (
	SignalQualified SignalStatus = "QUALIFIED"
	SignalRejected  SignalStatus = "REJECTED"
)

// ExecutionInstruction tells the gateway what to do with a signal.
type ExecutionInstruction string

const (
	InstructionWaitForUser ExecutionInstruction = "WAIT_FOR_USER_CONFIRMATION"
	InstructionAutoExecute ExecutionInstruction = "AUTO_EXECUTE"
	InstructionNone        ExecutionInstruction = "NONE"
)

// UserAction is the single decision recorded against a signal.
type UserAction string

const (
	ActionNone           UserAction = ""
	ActionApproved       UserAction = "APPROVED"
	ActionRejectedByUser UserAction = "REJECTED_BY_USER"
	ActionAutoExecuted   UserAction = "AUTO_EXECUTED"
)

// Signal is a candidate trade produced by a scan.
type Signal struct {
	ID                   string               `json:"id"`
	ScanID               string               `json:"scan_id"`
	Symbol               string               `json:"symbol"`
	Sector               string               `json:"sector"`
	EntryPrice           float64              `json:"entry_price"`
	StopLoss             float64              `json:"stop_loss"`
	TargetPrice          float64              `json:"target_price"`
	RiskRewardRatio      float64              `json:"risk_reward_ratio"`
	RuleChecks           map[string]bool      `json:"rule_checks"`
	SignalStatus         SignalStatus         `json:"signal_status"`
	ExecutionInstruction ExecutionInstruction `json:"execution_instruction"`
	UserAction           UserAction           `json:"user_action"`
	Rationale            string               `json:"rationale"`
	Timestamp            time.Time            `json:"timestamp"`
}

// MarshalJSON renders an absent user action as null.
func (s Signal) MarshalJSON() ([]byte, error) {
	type plain Signal
	var action *UserAction
	if s.UserAction != ActionNone {
		a := s.UserAction
		action = &a
	}
	return json.Marshal(struct {
		plain
		UserAction *UserAction `json:"user_action"`
	}{plain: plain(s), UserAction: action})
}

// DecisionKind classifies decision log entries.
type DecisionKind string

const (
	DecisionSignalEvaluated DecisionKind = "SIGNAL_EVALUATED"
	DecisionScanSkipped     DecisionKind = "SYMBOL_SKIPPED"
	DecisionUserApproved    DecisionKind = "USER_APPROVED"
	DecisionUserRejected    DecisionKind = "USER_REJECTED"
	DecisionAutoExecuted    DecisionKind = "AUTO_EXECUTED"
	DecisionAutoSkipped     DecisionKind = "AUTO_SKIPPED"
	DecisionExecutionFailed DecisionKind = "EXECUTION_DECLINED"
	DecisionPositionClosed  DecisionKind = "POSITION_CLOSED"
)

// DecisionLogEntry is one append-only audit record.
type DecisionLogEntry struct {
	ID         int64        `json:"id"`
	Timestamp  time.Time    `json:"timestamp"`
	Kind       DecisionKind `json:"kind"`
	SignalID   string       `json:"signal_id,omitempty"`
	Symbol     string       `json:"symbol,omitempty"`
	Status     SignalStatus `json:"signal_status,omitempty"`
	UserAction UserAction   `json:"user_action,omitempty"`
	PositionID string       `json:"position_id,omitempty"`
	Message    string       `json:"message"`
}
