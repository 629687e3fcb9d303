package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nse-agent/internal/api"
	"nse-agent/internal/notify"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and auto-trading scheduler",
		Long: `Serve the agent API under /api/agent. Every route requires the bearer token
from credentials.toml or AGENT_API_TOKEN. The scheduler only runs once
started through POST /api/agent/auto/start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			if cfg.Credentials.APIToken == "" {
				return errors.New("no API token configured: set api_token in credentials.toml or AGENT_API_TOKEN")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := app.newRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.hub.Start(ctx)

			if cfg.Notify.Enabled {
				notifier := notify.NewMultiNotifier(cfg.Notify, cfg.Credentials.TelegramBotToken, app.Logger)
				events, unsubscribe := rt.hub.Subscribe("notify")
				defer unsubscribe()
				go notifier.Run(ctx, events)
				app.Logger.Info().Strs("channels", notifier.Channels()).Msg("Notifications enabled")
			}

			srv, err := api.NewServer(api.ServerConfig{
				Addr:            cfg.Server.Addr,
				Token:           cfg.Credentials.APIToken,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
				Agent:           rt.agent,
				Hub:             rt.hub,
				Audit:           rt.audit,
				Logger:          app.Logger,
			})
			if err != nil {
				return err
			}

			state := rt.agent.State.Config()
			app.Logger.Info().
				Str("addr", cfg.Server.Addr).
				Str("trading_mode", string(state.TradingMode)).
				Str("execution_mode", string(state.ExecutionMode)).
				Bool("agent_active", state.AgentActive).
				Msg("Starting agent server")

			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			app.Logger.Info().Msg("Agent server stopped")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return cmd
}
