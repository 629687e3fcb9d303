package cli

import (
	"context"
	"fmt"
	"time"

	"nse-agent/internal/agent"
	"nse-agent/internal/broker"
	"nse-agent/internal/logging"
	"nse-agent/internal/marketdata"
	"nse-agent/internal/resilience"
	"nse-agent/internal/security"
	"nse-agent/internal/store"
	"nse-agent/internal/stream"
	"nse-agent/internal/trading"
	"nse-agent/pkg/utils"
)

// runtime is a fully wired agent plus the resources it owns.
type runtime struct {
	agent *agent.Agent
	store *store.SQLiteStore
	hub   *stream.Hub
	audit *security.AuditLogger
}

// newRuntime opens the ledger and wires the agent. withHub adds the live
// event hub used by the HTTP stream.
func (app *App) newRuntime(ctx context.Context, withHub bool) (*runtime, error) {
	cfg := app.Config
	logger := app.Logger

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	rt := &runtime{store: st}

	if cfg.Audit.Enabled {
		audit, err := security.NewAuditLogger(security.DefaultAuditConfig(cfg.Audit.Path))
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.audit = audit
	}

	md := cfg.MarketData
	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = md.MaxRetries + 1
	breaker := resilience.DefaultCircuitBreakerConfig()
	if md.FailureThreshold > 0 {
		breaker.FailureThreshold = md.FailureThreshold
	}
	if md.ResetTimeout > 0 {
		breaker.Timeout = md.ResetTimeout
	}
	market := marketdata.NewGuarded(
		marketdata.NewYahooProvider(md.SymbolSuffix, md.SearchURL, md.Timeout),
		marketdata.GuardConfig{
			Timeout:        md.Timeout,
			RequestsPerSec: md.RequestsPerSec,
			Burst:          md.Burst,
			Retry:          retry,
			Breaker:        breaker,
		},
		logger,
	)

	var routers agent.Routers
	var capital broker.CapitalSource
	if z := cfg.Credentials.Zerodha; z.Configured() {
		router, err := broker.NewZerodhaRouter(broker.ZerodhaConfig{APIKey: z.APIKey, AccessToken: z.AccessToken})
		if err != nil {
			rt.Close()
			return nil, err
		}
		routers.Live = router
		capital = router
		logger.Info().Msg("Zerodha live routing enabled")
	}

	sessions, err := trading.NewSessionManager(cfg.Scheduler.Holidays)
	if err != nil {
		rt.Close()
		return nil, err
	}

	deps := agent.Deps{
		Store:    st,
		Market:   market,
		Universe: cfg.Universe,
		Routers:  routers,
		Capital:  capital,
		Sessions: sessions,
		Audit:    rt.audit,
		Logger:   logger,
		Settings: agent.SettingsFromConfig(cfg),
		Now:      time.Now,
	}
	if withHub {
		rt.hub = stream.NewHub()
		deps.Events = rt.hub
	}

	rt.agent, err = agent.New(ctx, deps)
	if err != nil {
		rt.Close()
		return nil, err
	}
	l := logging.WithComponent(logger, "cli")
	l.Debug().
		Str("db", cfg.Storage.DBPath).
		Bool("live", routers.Live != nil).
		Msg("Agent runtime ready")
	return rt, nil
}

// Close releases the runtime's resources.
func (rt *runtime) Close() {
	if rt.agent != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = rt.agent.Shutdown(ctx)
		cancel()
	}
	if rt.hub != nil {
		rt.hub.Stop()
	}
	if rt.audit != nil {
		_ = rt.audit.Close()
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
}
