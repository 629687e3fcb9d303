// Package cli provides the command-line interface for the trading agent.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nse-agent/internal/config"
	"nse-agent/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-03-01"
)

// App holds the loaded configuration and logger shared by every command.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewRootCmd creates the root command. Configuration is loaded once the
// --config flag has been parsed.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: logging.NewLogger()}

	rootCmd := &cobra.Command{
		Use:   "agentd",
		Short: "Rule-based intraday trading agent for NSE equities",
		Long: `agentd scans a sector universe of NSE stocks, turns bullish setups into
trade signals and executes them in paper or live mode, either on manual
approval or automatically within fixed risk rules.

Use 'agentd serve' to run the HTTP API and the auto-trading scheduler.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "path" {
				return nil
			}
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.Config = cfg

			logCfg := logging.FromConfig(cfg.Logging)
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logCfg.Level = "debug"
			}
			app.Logger = logging.NewLoggerWithConfig(logCfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/nse-agent)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(app),
		newServeCmd(app),
		newScanCmd(app),
		newTradesCmd(app),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("agentd v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redacted(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": dir})
			}
			output.Println(dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load already validated; reaching here means it passed.
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

// redacted returns a copy of cfg without secrets.
func redacted(cfg *config.Config) config.Config {
	out := *cfg
	out.Credentials = config.Credentials{}
	return out
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Server")
	output.Printf("  Listen:           %s\n", cfg.Server.Addr)
	output.Printf("  API token:        %s\n", configured(cfg.Credentials.APIToken != ""))
	output.Printf("  Database:         %s\n", cfg.Storage.DBPath)
	output.Println()

	a := cfg.Agent
	output.Bold("Agent defaults")
	output.Printf("  Sectors:          %v\n", a.AllowedSectors)
	output.Printf("  Max capital/trade: %.1f%%\n", a.MaxCapitalPerTrade)
	output.Printf("  Risk/trade:       %.1f%%\n", a.RiskPerTrade)
	output.Printf("  Max trades/day:   %d\n", a.MaxTradesPerDay)
	output.Printf("  Stop loss:        %.2f%%\n", a.StopLossPercent)
	output.Printf("  Target:           %.2f%%\n", a.TargetPercent)
	output.Printf("  Execution mode:   %s\n", a.ExecutionMode)
	output.Printf("  Trading mode:     %s\n", a.TradingMode)
	output.Printf("  Min risk/reward:  %.2f\n", a.MinRiskReward)
	output.Println()

	output.Bold("Scheduler")
	output.Printf("  Default interval: %s\n", cfg.Scheduler.DefaultInterval)
	output.Printf("  Min interval:     %s\n", cfg.Scheduler.MinInterval)
	output.Printf("  Capital sync:     %v\n", cfg.Scheduler.SyncCapital)
	output.Println()

	output.Bold("Zerodha")
	output.Printf("  Live routing:     %s\n", configured(cfg.Credentials.Zerodha.Configured()))
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}
