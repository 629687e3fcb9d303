package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nse-agent/internal/broker"
	"nse-agent/internal/config"
	"nse-agent/internal/logging"
	"nse-agent/internal/marketdata"
	"nse-agent/internal/models"
	"nse-agent/internal/security"
	"nse-agent/internal/store"
	"nse-agent/internal/trading"
)

// Settings are the fixed, server-side knobs of the agent.
type Settings struct {
	Defaults        models.TradingConfig
	MinRiskReward   float64
	ScanConcurrency int
	HistoryPeriod   string
	HistoryInterval string
	DefaultInterval time.Duration
	MinInterval     time.Duration
	SyncCapital     bool
}

// DefaultSettings returns settings matching the built-in config defaults.
func DefaultSettings() Settings {
	return Settings{
		Defaults: models.TradingConfig{
			AllowedSectors:     append([]string(nil), config.DefaultSectorOrder...),
			MaxCapitalPerTrade: 5,
			RiskPerTrade:       2,
			MaxTradesPerDay:    3,
			StopLossRule:       models.Rule{Type: models.RuleFixedPercent, Value: 1.5},
			ProfitBookingRule:  models.Rule{Type: models.RuleTargetPercent, Value: 3},
			ExecutionMode:      models.ExecutionManualConfirm,
			TradingMode:        models.TradingPaper,
			AgentActive:        true,
			CapitalAvailable:   decimal.Zero,
		},
		MinRiskReward:   1.5,
		ScanConcurrency: 8,
		HistoryPeriod:   "1mo",
		HistoryInterval: "1d",
		DefaultInterval: 300 * time.Second,
		MinInterval:     60 * time.Second,
	}
}

// SettingsFromConfig builds settings from the loaded server config.
func SettingsFromConfig(cfg *config.Config) Settings {
	a := cfg.Agent
	return Settings{
		Defaults: models.TradingConfig{
			AllowedSectors:     append([]string(nil), a.AllowedSectors...),
			MaxCapitalPerTrade: a.MaxCapitalPerTrade,
			RiskPerTrade:       a.RiskPerTrade,
			MaxTradesPerDay:    a.MaxTradesPerDay,
			StopLossRule:       models.Rule{Type: models.RuleFixedPercent, Value: a.StopLossPercent},
			ProfitBookingRule:  models.Rule{Type: models.RuleTargetPercent, Value: a.TargetPercent},
			ExecutionMode:      models.ExecutionMode(a.ExecutionMode),
			TradingMode:        models.TradingMode(a.TradingMode),
			AgentActive:        a.StartActive,
			CapitalAvailable:   decimal.NewFromFloat(a.InitialCapital).Round(2),
		},
		MinRiskReward:   a.MinRiskReward,
		ScanConcurrency: a.ScanConcurrency,
		HistoryPeriod:   a.HistoryPeriod,
		HistoryInterval: a.HistoryInterval,
		DefaultInterval: cfg.Scheduler.DefaultInterval,
		MinInterval:     cfg.Scheduler.MinInterval,
		SyncCapital:     cfg.Scheduler.SyncCapital,
	}
}

// Deps are the collaborators the agent is built from.
type Deps struct {
	Store    store.DataStore
	Market   marketdata.Provider
	Universe map[string][]string
	Routers  Routers
	Capital  broker.CapitalSource
	Sessions *trading.SessionManager
	Events   Publisher
	Audit    *security.AuditLogger
	Logger   zerolog.Logger
	Settings Settings
	Now      func() time.Time
	NewID    func() string
}

// Agent bundles the components sharing one State.
type Agent struct {
	State      *State
	Config     *ConfigStore
	Engine     *SignalEngine
	Gateway    *ExecutionGateway
	Scheduler  *Scheduler
	Controller *Controller
	Log        *DecisionLog
	Ledger     *Ledger
	Market     marketdata.Provider
}

// New loads persisted state and wires the components.
func New(ctx context.Context, d Deps) (*Agent, error) {
	if d.Store == nil || d.Market == nil {
		return nil, fmt.Errorf("agent: store and market data provider are required")
	}
	if d.Routers.Paper == nil {
		d.Routers.Paper = broker.NewPaperRouter()
	}
	if d.Sessions == nil {
		sm, err := trading.NewSessionManager(nil)
		if err != nil {
			return nil, err
		}
		d.Sessions = sm
	}
	if d.Universe == nil {
		d.Universe = config.DefaultUniverse()
	}
	if d.NewID == nil {
		d.NewID = newPositionID
	}
	s := d.Settings
	if s.ScanConcurrency < 1 {
		s.ScanConcurrency = 1
	}
	if s.MinInterval <= 0 {
		s.MinInterval = 60 * time.Second
	}
	if s.DefaultInterval < s.MinInterval {
		s.DefaultInterval = s.MinInterval
	}

	st, err := NewState(ctx, d.Store, s.Defaults, d.Now, d.Events, d.Logger)
	if err != nil {
		return nil, err
	}
	universe := NewUniverse(d.Universe)

	a := &Agent{
		State:  st,
		Market: d.Market,
		Log:    &DecisionLog{state: st},
		Ledger: &Ledger{state: st},
	}
	a.Config = &ConfigStore{
		state:         st,
		universe:      universe,
		liveAvailable: d.Routers.Live != nil,
		audit:         d.Audit,
		logger:        logging.WithComponent(d.Logger, "config"),
	}
	a.Engine = &SignalEngine{
		state:    st,
		market:   d.Market,
		universe: universe,
		settings: s,
		logger:   logging.WithComponent(d.Logger, "engine"),
	}
	a.Gateway = &ExecutionGateway{
		state:       st,
		market:      d.Market,
		routers:     d.Routers,
		audit:       d.Audit,
		concurrency: s.ScanConcurrency,
		newID:       d.NewID,
		logger:      logging.WithComponent(d.Logger, "gateway"),
	}
	a.Controller = &Controller{
		state:   st,
		market:  d.Market,
		routers: d.Routers,
		capital: d.Capital,
		events:  d.Events,
		audit:   d.Audit,
		logger:  logging.WithComponent(d.Logger, "controller"),
	}
	a.Scheduler = &Scheduler{
		state:      st,
		engine:     a.Engine,
		gateway:    a.Gateway,
		controller: a.Controller,
		sessions:   d.Sessions,
		settings:   s,
		audit:      d.Audit,
		logger:     logging.WithComponent(d.Logger, "scheduler"),
		run:        SchedulerStopped,
	}
	a.Controller.scheduler = a.Scheduler
	return a, nil
}

// Shutdown stops the scheduler and waits for its loop to exit.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.Scheduler.Stop(ctx)
	return a.Scheduler.Wait(ctx)
}
