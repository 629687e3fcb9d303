package agent

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"nse-agent/internal/models"
	"nse-agent/internal/trading"
)

// Rule names, in evaluation order.
const (
	RuleSectorAllowed      = "sector_allowed"
	RuleTrendConfirmed     = "trend_confirmed"
	RuleRSIInRange         = "rsi_in_range"
	RuleVolumeAdequate     = "volume_adequate"
	RuleRiskRewardOK       = "risk_reward_ok"
	RuleRiskWithinLimit    = "risk_within_limit"
	RuleCapitalWithinLimit = "capital_within_limit"
	RuleTradeCountOK       = "trade_count_ok"
)

// RuleOrder lists every rule check.
var RuleOrder = []string{
	RuleSectorAllowed,
	RuleTrendConfirmed,
	RuleRSIInRange,
	RuleVolumeAdequate,
	RuleRiskRewardOK,
	RuleRiskWithinLimit,
	RuleCapitalWithinLimit,
	RuleTradeCountOK,
}

const (
	rsiLow         = 40.0
	rsiHigh        = 70.0
	volumeFraction = 0.8
)

// candidate is a symbol's fetched data with its computed levels.
type candidate struct {
	target Target
	bar    models.Bar
	entry  float64
	stop   float64
	tp     float64
	rr     float64
}

// evaluateRules runs the fixed rule set. tradesSoFar counts trades entered
// today plus signals already qualified earlier in the same scan.
func evaluateRules(cfg *models.TradingConfig, c *candidate, tradesSoFar int, minRR float64) map[string]bool {
	b := c.bar
	checks := make(map[string]bool, len(RuleOrder))

	checks[RuleSectorAllowed] = cfg.SectorAllowed(c.target.Sector)
	checks[RuleTrendConfirmed] = b.EMA9 > b.EMA21 && b.Close > b.VWAP
	checks[RuleRSIInRange] = b.RSI >= rsiLow && b.RSI <= rsiHigh
	checks[RuleVolumeAdequate] = b.AvgVolume > 0 && float64(b.Volume) >= volumeFraction*b.AvgVolume
	checks[RuleRiskRewardOK] = c.rr >= minRR

	capital := cfg.CapitalAvailable
	if capital.IsZero() {
		checks[RuleRiskWithinLimit] = true
		checks[RuleCapitalWithinLimit] = true
	} else {
		qty := trading.QuantityFor(capital, cfg.MaxCapitalPerTrade, c.entry)
		if qty < 1 {
			qty = 1
		}
		risk := decimal.NewFromFloat(c.entry).Sub(decimal.NewFromFloat(c.stop)).Mul(decimal.NewFromInt(int64(qty)))
		riskLimit := capital.Mul(decimal.NewFromFloat(cfg.RiskPerTrade)).Div(decimal.NewFromInt(100))
		checks[RuleRiskWithinLimit] = risk.LessThanOrEqual(riskLimit)

		budget := capital.Mul(decimal.NewFromFloat(cfg.MaxCapitalPerTrade)).Div(decimal.NewFromInt(100))
		checks[RuleCapitalWithinLimit] = decimal.NewFromFloat(c.entry).LessThanOrEqual(budget)
	}

	checks[RuleTradeCountOK] = tradesSoFar < cfg.MaxTradesPerDay
	return checks
}

func allPassed(checks map[string]bool) bool {
	for _, name := range RuleOrder {
		if !checks[name] {
			return false
		}
	}
	return true
}

// rationale describes the evaluation from data alone.
func rationale(c *candidate, checks map[string]bool) string {
	b := c.bar
	var parts []string

	if checks[RuleTrendConfirmed] {
		parts = append(parts, fmt.Sprintf("Bullish EMA crossover detected (EMA9 %.2f > EMA21 %.2f), price above VWAP %.2f.", b.EMA9, b.EMA21, b.VWAP))
	} else {
		parts = append(parts, fmt.Sprintf("Trend not confirmed: EMA9 %.2f, EMA21 %.2f, close %.2f vs VWAP %.2f.", b.EMA9, b.EMA21, b.Close, b.VWAP))
	}

	if checks[RuleRSIInRange] {
		parts = append(parts, fmt.Sprintf("RSI at %.1f, within %.0f-%.0f range.", b.RSI, rsiLow, rsiHigh))
	} else {
		parts = append(parts, fmt.Sprintf("RSI at %.1f, outside %.0f-%.0f range.", b.RSI, rsiLow, rsiHigh))
	}

	parts = append(parts, fmt.Sprintf("R:R ratio = %.2f.", c.rr))

	var failed []string
	for _, name := range RuleOrder {
		if !checks[name] {
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		parts = append(parts, "Rule check(s) failed: "+strings.Join(failed, ", ")+".")
	}
	return strings.Join(parts, " ")
}
