package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# NSE Agent Configuration

[server]
# Listen address for the /api/agent HTTP API
addr = ":8080"
read_timeout = "15s"
write_timeout = "30s"
shutdown_timeout = "10s"

[storage]
# SQLite ledger; defaults to <config dir>/agent.db
db_path = ""

[agent]
# Seed values for the runtime trading config (first start only)
allowed_sectors = ["NIFTY50", "BANKNIFTY", "IT", "PHARMA", "AUTO", "FMCG", "ENERGY", "METAL"]
max_capital_per_trade = 5.0
risk_per_trade = 2.0
max_trades_per_day = 3
stop_loss_percent = 1.5
target_percent = 3.0
# MANUAL_CONFIRM or AUTO_RULED
execution_mode = "MANUAL_CONFIRM"
# PAPER or LIVE
trading_mode = "PAPER"
initial_capital = 0.0
start_active = true
# Minimum reward:risk for the risk_reward_ok check
min_risk_reward = 1.5
# Parallel market data fetches per scan
scan_concurrency = 8
history_period = "1mo"
history_interval = "1d"

[scheduler]
default_interval = "300s"
min_interval = "60s"
# Refresh capital from the broker before each LIVE tick
sync_capital = false
# Exchange holidays, YYYY-MM-DD
holidays = []

[market_data]
timeout = "10s"
requests_per_sec = 5.0
burst = 5
max_retries = 2
failure_threshold = 5
reset_timeout = "30s"
symbol_suffix = ".NS"

[logging]
level = "info"
console = true
file = false

[audit]
enabled = true

[notifications]
enabled = false
# all, trades_only or errors_only
level = "trades_only"
timeout = "10s"

[notifications.webhook]
url = ""

[notifications.telegram]
chat_id = ""

# Override the built-in sector map, e.g.
# [universe]
# IT = ["TCS", "INFY", "WIPRO"]
`

const credentialsTemplate = `# NSE Agent Credentials
# WARNING: Keep this file secure! Do not commit to version control.

# Bearer token required by every /api/agent request
api_token = ""

# Only needed when [notifications.telegram] is used
telegram_bot_token = ""

[zerodha]
api_key = ""
access_token = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
