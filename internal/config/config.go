// Package config provides configuration management for the trading agent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig        `mapstructure:"server"`
	Storage     StorageConfig       `mapstructure:"storage"`
	Agent       AgentConfig         `mapstructure:"agent"`
	Scheduler   SchedulerConfig     `mapstructure:"scheduler"`
	MarketData  MarketDataConfig    `mapstructure:"market_data"`
	Logging     LoggingConfig       `mapstructure:"logging"`
	Audit       AuditConfig         `mapstructure:"audit"`
	Notify      NotifyConfig        `mapstructure:"notifications"`
	Universe    map[string][]string `mapstructure:"universe"`
	Credentials Credentials         `mapstructure:"-"` // Loaded separately
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig holds the ledger database location.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// AgentConfig holds the defaults used to seed the runtime trading config
// and the fixed thresholds of the rule checks.
type AgentConfig struct {
	AllowedSectors     []string `mapstructure:"allowed_sectors"`
	MaxCapitalPerTrade float64  `mapstructure:"max_capital_per_trade"`
	RiskPerTrade       float64  `mapstructure:"risk_per_trade"`
	MaxTradesPerDay    int      `mapstructure:"max_trades_per_day"`
	StopLossPercent    float64  `mapstructure:"stop_loss_percent"`
	TargetPercent      float64  `mapstructure:"target_percent"`
	ExecutionMode      string   `mapstructure:"execution_mode"`
	TradingMode        string   `mapstructure:"trading_mode"`
	InitialCapital     float64  `mapstructure:"initial_capital"`
	StartActive        bool     `mapstructure:"start_active"`
	MinRiskReward      float64  `mapstructure:"min_risk_reward"`
	ScanConcurrency    int      `mapstructure:"scan_concurrency"`
	HistoryPeriod      string   `mapstructure:"history_period"`
	HistoryInterval    string   `mapstructure:"history_interval"`
}

// SchedulerConfig holds auto-trading loop settings.
type SchedulerConfig struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	MinInterval     time.Duration `mapstructure:"min_interval"`
	SyncCapital     bool          `mapstructure:"sync_capital"`
	Holidays        []string      `mapstructure:"holidays"` // YYYY-MM-DD
}

// MarketDataConfig holds provider call limits.
type MarketDataConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	RequestsPerSec   float64       `mapstructure:"requests_per_sec"`
	Burst            int           `mapstructure:"burst"`
	MaxRetries       int           `mapstructure:"max_retries"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	SymbolSuffix     string        `mapstructure:"symbol_suffix"`
	SearchURL        string        `mapstructure:"search_url"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// NotifyConfig holds trade notification settings.
type NotifyConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, trades_only, errors_only
	Timeout  time.Duration  `mapstructure:"timeout"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds generic webhook settings.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// TelegramConfig holds Telegram bot settings. The bot token is a secret
// and comes from credentials.toml or TELEGRAM_BOT_TOKEN.
type TelegramConfig struct {
	ChatID string `mapstructure:"chat_id"`
}

// Credentials holds secrets.
type Credentials struct {
	APIToken         string             `mapstructure:"api_token"`
	TelegramBotToken string             `mapstructure:"telegram_bot_token"`
	Zerodha          ZerodhaCredentials `mapstructure:"zerodha"`
}

// ZerodhaCredentials holds Kite Connect credentials for LIVE routing.
type ZerodhaCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
}

// Configured reports whether LIVE routing can be enabled.
func (z ZerodhaCredentials) Configured() bool {
	return z.APIKey != "" && z.AccessToken != ""
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/nse-agent"
	}
	return filepath.Join(home, ".config", "nse-agent")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env in the working directory, then in the config directory
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.normalize(configDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("storage.db_path", "")

	v.SetDefault("agent.allowed_sectors", DefaultSectorOrder)
	v.SetDefault("agent.max_capital_per_trade", 5.0)
	v.SetDefault("agent.risk_per_trade", 2.0)
	v.SetDefault("agent.max_trades_per_day", 3)
	v.SetDefault("agent.stop_loss_percent", 1.5)
	v.SetDefault("agent.target_percent", 3.0)
	v.SetDefault("agent.execution_mode", "MANUAL_CONFIRM")
	v.SetDefault("agent.trading_mode", "PAPER")
	v.SetDefault("agent.initial_capital", 0.0)
	v.SetDefault("agent.start_active", true)
	v.SetDefault("agent.min_risk_reward", 1.5)
	v.SetDefault("agent.scan_concurrency", 8)
	v.SetDefault("agent.history_period", "1mo")
	v.SetDefault("agent.history_interval", "1d")

	v.SetDefault("scheduler.default_interval", "300s")
	v.SetDefault("scheduler.min_interval", "60s")
	v.SetDefault("scheduler.sync_capital", false)
	v.SetDefault("scheduler.holidays", []string{})

	v.SetDefault("market_data.timeout", "10s")
	v.SetDefault("market_data.requests_per_sec", 5.0)
	v.SetDefault("market_data.burst", 5)
	v.SetDefault("market_data.max_retries", 2)
	v.SetDefault("market_data.failure_threshold", 5)
	v.SetDefault("market_data.reset_timeout", "30s")
	v.SetDefault("market_data.symbol_suffix", ".NS")
	v.SetDefault("market_data.search_url", "https://query2.finance.yahoo.com/v1/finance/search")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", "")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.level", "trades_only")
	v.SetDefault("notifications.timeout", "10s")
	v.SetDefault("notifications.webhook.url", "")
	v.SetDefault("notifications.telegram.chat_id", "")
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// First run: write the template and continue on defaults.
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENT_API_TOKEN"); v != "" {
		cfg.Credentials.APIToken = v
	}
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Zerodha.AccessToken = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Credentials.TelegramBotToken = v
	}
	if v := os.Getenv("AGENT_LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("AGENT_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Agent.TradingMode = strings.ToUpper(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// normalize fills derived paths and restores the case of sector names,
// which viper lower-cases.
func (c *Config) normalize(configDir string) {
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = filepath.Join(configDir, "agent.db")
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(configDir, "logs", "agent.log")
	}
	if c.Audit.Path == "" {
		c.Audit.Path = filepath.Join(configDir, "logs", "audit.log")
	}

	if len(c.Universe) == 0 {
		c.Universe = DefaultUniverse()
	} else {
		upper := make(map[string][]string, len(c.Universe))
		for sector, symbols := range c.Universe {
			upper[strings.ToUpper(sector)] = symbols
		}
		c.Universe = upper
	}
	for i, s := range c.Agent.AllowedSectors {
		c.Agent.AllowedSectors[i] = strings.ToUpper(s)
	}
	c.Agent.ExecutionMode = strings.ToUpper(c.Agent.ExecutionMode)
	c.Agent.TradingMode = strings.ToUpper(c.Agent.TradingMode)
	c.Notify.Level = strings.ToLower(c.Notify.Level)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Agent.TradingMode != "PAPER" && c.Agent.TradingMode != "LIVE" {
		return fmt.Errorf("invalid trading mode: %s (must be 'PAPER' or 'LIVE')", c.Agent.TradingMode)
	}
	if c.Agent.ExecutionMode != "MANUAL_CONFIRM" && c.Agent.ExecutionMode != "AUTO_RULED" {
		return fmt.Errorf("invalid execution mode: %s (must be 'MANUAL_CONFIRM' or 'AUTO_RULED')", c.Agent.ExecutionMode)
	}

	if c.Agent.MaxCapitalPerTrade <= 0 || c.Agent.MaxCapitalPerTrade > 100 {
		return fmt.Errorf("max_capital_per_trade must be in (0, 100]")
	}
	if c.Agent.RiskPerTrade <= 0 || c.Agent.RiskPerTrade > 100 {
		return fmt.Errorf("risk_per_trade must be in (0, 100]")
	}
	if c.Agent.StopLossPercent <= 0 || c.Agent.StopLossPercent >= 100 {
		return fmt.Errorf("stop_loss_percent must be in (0, 100)")
	}
	if c.Agent.TargetPercent <= 0 || c.Agent.TargetPercent > 100 {
		return fmt.Errorf("target_percent must be in (0, 100]")
	}
	if c.Agent.MaxTradesPerDay < 0 {
		return fmt.Errorf("max_trades_per_day must be non-negative")
	}
	if c.Agent.InitialCapital < 0 {
		return fmt.Errorf("initial_capital must be non-negative")
	}
	if c.Agent.MinRiskReward < 0 {
		return fmt.Errorf("min_risk_reward must be non-negative")
	}
	if c.Agent.ScanConcurrency < 1 {
		return fmt.Errorf("scan_concurrency must be at least 1")
	}

	for _, s := range c.Agent.AllowedSectors {
		if _, ok := c.Universe[s]; !ok {
			return fmt.Errorf("allowed sector %q is not in the universe", s)
		}
	}

	if c.Scheduler.MinInterval <= 0 {
		return fmt.Errorf("scheduler.min_interval must be positive")
	}
	if c.Scheduler.DefaultInterval < c.Scheduler.MinInterval {
		return fmt.Errorf("scheduler.default_interval must be at least min_interval")
	}
	for _, d := range c.Scheduler.Holidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid holiday date %q: %w", d, err)
		}
	}

	if c.MarketData.Timeout <= 0 {
		return fmt.Errorf("market_data.timeout must be positive")
	}
	if c.MarketData.RequestsPerSec <= 0 {
		return fmt.Errorf("market_data.requests_per_sec must be positive")
	}

	switch c.Notify.Level {
	case "all", "trades_only", "errors_only":
	default:
		return fmt.Errorf("invalid notifications.level: %s (must be all, trades_only or errors_only)", c.Notify.Level)
	}

	if c.Agent.TradingMode == "LIVE" && !c.Credentials.Zerodha.Configured() {
		return fmt.Errorf("LIVE trading mode requires zerodha api_key and access_token")
	}

	return nil
}

// IsPaperMode returns true if the default trading mode is paper.
func (c *Config) IsPaperMode() bool {
	return c.Agent.TradingMode == "PAPER"
}
