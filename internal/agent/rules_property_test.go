package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"nse-agent/internal/models"
	"nse-agent/internal/trading"
)

func ruleConfig(capital int64, maxTrades int) *models.TradingConfig {
	return &models.TradingConfig{
		AllowedSectors:     []string{"IT"},
		MaxCapitalPerTrade: 5,
		RiskPerTrade:       2,
		MaxTradesPerDay:    maxTrades,
		StopLossRule:       models.Rule{Type: models.RuleFixedPercent, Value: 1.5},
		ProfitBookingRule:  models.Rule{Type: models.RuleTargetPercent, Value: 3},
		CapitalAvailable:   decimal.NewFromInt(capital),
	}
}

func ruleCandidate(entry, rsi float64) *candidate {
	c := &candidate{
		target: Target{Symbol: "INFY", Sector: "IT"},
		bar:    bullishBars(entry, rsi)[29],
		entry:  entry,
	}
	c.stop, c.tp, c.rr = trading.Levels(entry, 1.5, 3)
	return c
}

// Property: the trade count rule passes exactly while earlier trades are
// below the daily cap.
func TestProperty_TradeCountRule(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("trade_count_ok iff so far < max", prop.ForAll(
		func(maxTrades, soFar int) bool {
			checks := evaluateRules(ruleConfig(100000, maxTrades), ruleCandidate(1500, 55), soFar, 1.5)
			return checks[RuleTradeCountOK] == (soFar < maxTrades)
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

// Property: a signal qualifies iff every rule passes, and the rationale
// lists exactly the failing rules.
func TestProperty_RationaleNamesFailedRules(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("rationale lists failures", prop.ForAll(
		func(entryPaise int64, rsi float64, capital int64, soFar int) bool {
			c := ruleCandidate(float64(entryPaise)/100, rsi)
			checks := evaluateRules(ruleConfig(capital, 3), c, soFar, 1.5)
			text := rationale(c, checks)

			if allPassed(checks) {
				return !strings.Contains(text, "failed")
			}
			for _, name := range RuleOrder {
				if strings.Contains(text, name) == checks[name] {
					return false
				}
			}
			return true
		},
		gen.Int64Range(100, 1_000_000),
		gen.Float64Range(0, 100),
		gen.Int64Range(0, 10_000_000),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

func TestRules_ZeroCapitalPassesCapitalChecks(t *testing.T) {
	checks := evaluateRules(ruleConfig(0, 3), ruleCandidate(1500, 55), 0, 1.5)
	if !checks[RuleRiskWithinLimit] || !checks[RuleCapitalWithinLimit] {
		t.Fatalf("capital checks should pass with zero capital: %v", checks)
	}
}

func TestRules_ExpensiveEntryFailsCapitalLimit(t *testing.T) {
	// 5% of 20000 is 1000, below a 1500 entry.
	checks := evaluateRules(ruleConfig(20000, 3), ruleCandidate(1500, 55), 0, 1.5)
	if checks[RuleCapitalWithinLimit] {
		t.Fatal("entry above the per-trade budget should fail")
	}
	if allPassed(checks) {
		t.Fatal("signal should not qualify")
	}
}
