package agent

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	apperrors "nse-agent/internal/errors"
	"nse-agent/internal/models"
	"nse-agent/internal/security"
)

//go:embed schema/trading_config.json
var tradingConfigSchema string

var configSchema = mustCompileSchema(tradingConfigSchema)

func mustCompileSchema(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("trading_config.json", strings.NewReader(src)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("trading_config.json")
}

// configPatch is the decoded form of a configure payload. Only keys present
// in the payload are applied.
type configPatch struct {
	AllowedSectors     []string             `mapstructure:"allowed_sectors"`
	MaxCapitalPerTrade float64              `mapstructure:"max_capital_per_trade"`
	RiskPerTrade       float64              `mapstructure:"risk_per_trade"`
	MaxTradesPerDay    int                  `mapstructure:"max_trades_per_day"`
	StopLossRule       models.Rule          `mapstructure:"stop_loss_rule"`
	ProfitBookingRule  models.Rule          `mapstructure:"profit_booking_rule"`
	ExecutionMode      models.ExecutionMode `mapstructure:"execution_mode"`
	TradingMode        models.TradingMode   `mapstructure:"trading_mode"`
	CapitalAvailable   decimal.Decimal      `mapstructure:"capital_available"`
}

// ConfigStore validates and applies changes to the trading config.
type ConfigStore struct {
	state         *State
	universe      Universe
	liveAvailable bool
	audit         *security.AuditLogger
	logger        zerolog.Logger
}

// Get returns the active config.
func (c *ConfigStore) Get() models.TradingConfig {
	return c.state.Config()
}

// AvailableSectors lists the sectors a config may allow.
func (c *ConfigStore) AvailableSectors() []string {
	return c.universe.Sectors()
}

// Configure validates a JSON patch against the config schema and applies
// it atomically. Unknown keys and out-of-range values are rejected with a
// ValidationError before anything changes.
func (c *ConfigStore) Configure(ctx context.Context, payload []byte) (models.TradingConfig, error) {
	raw, err := decodePayload(payload)
	if err != nil {
		return models.TradingConfig{}, err
	}
	if err := configSchema.Validate(raw); err != nil {
		return models.TradingConfig{}, schemaError(err)
	}
	fields := raw.(map[string]interface{})

	var patch configPatch
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  decimalHook,
		ErrorUnused: true,
		Result:      &patch,
	})
	if err != nil {
		return models.TradingConfig{}, apperrors.NewInternalError("configure", err)
	}
	if err := dec.Decode(fields); err != nil {
		return models.TradingConfig{}, apperrors.NewValidationError("config", nil, err.Error())
	}

	c.state.mu.Lock()
	defer c.state.mu.Unlock()

	next := c.state.cfg.Clone()
	changed := make(map[string]interface{}, len(fields))
	for key := range fields {
		switch key {
		case "allowed_sectors":
			sectors := make([]string, len(patch.AllowedSectors))
			for i, s := range patch.AllowedSectors {
				s = strings.ToUpper(s)
				if !c.universe.Has(s) {
					return models.TradingConfig{}, apperrors.NewValidationError("allowed_sectors", s, "unknown sector")
				}
				sectors[i] = s
			}
			next.AllowedSectors = sectors
			changed[key] = sectors
		case "max_capital_per_trade":
			next.MaxCapitalPerTrade = patch.MaxCapitalPerTrade
			changed[key] = patch.MaxCapitalPerTrade
		case "risk_per_trade":
			next.RiskPerTrade = patch.RiskPerTrade
			changed[key] = patch.RiskPerTrade
		case "max_trades_per_day":
			next.MaxTradesPerDay = patch.MaxTradesPerDay
			changed[key] = patch.MaxTradesPerDay
		case "stop_loss_rule":
			next.StopLossRule = mergeRule(next.StopLossRule, patch.StopLossRule)
			changed[key] = next.StopLossRule
		case "profit_booking_rule":
			next.ProfitBookingRule = mergeRule(next.ProfitBookingRule, patch.ProfitBookingRule)
			changed[key] = next.ProfitBookingRule
		case "execution_mode":
			next.ExecutionMode = patch.ExecutionMode
			changed[key] = patch.ExecutionMode
		case "trading_mode":
			if patch.TradingMode == models.TradingLive && !c.liveAvailable {
				return models.TradingConfig{}, apperrors.NewPreconditionError("configure", "LIVE trading requires broker credentials")
			}
			next.TradingMode = patch.TradingMode
			changed[key] = patch.TradingMode
		case "capital_available":
			next.CapitalAvailable = patch.CapitalAvailable.Round(2)
			changed[key] = next.CapitalAvailable.InexactFloat64()
		}
	}

	if err := c.state.commit(ctx, &next, nil, nil); err != nil {
		return models.TradingConfig{}, apperrors.NewInternalError("configure", err)
	}

	c.logger.Info().Interface("changed", changed).Msg("Trading config updated")
	if err := c.audit.LogConfigChanged(ctx, changed); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to write audit event")
	}
	return next.Clone(), nil
}

func mergeRule(current, patch models.Rule) models.Rule {
	if patch.Type != "" {
		current.Type = patch.Type
	}
	current.Value = patch.Value
	return current
}

func decodePayload(payload []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, apperrors.NewValidationError("body", nil, "invalid JSON: "+err.Error())
	}
	if dec.More() {
		return nil, apperrors.NewValidationError("body", nil, "trailing data after JSON object")
	}
	if _, ok := raw.(map[string]interface{}); !ok {
		return nil, apperrors.NewValidationError("body", nil, "expected a JSON object")
	}
	return raw, nil
}

// schemaError turns the deepest schema failure into a ValidationError
// naming the offending field.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return apperrors.NewValidationError("config", nil, err.Error())
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.TrimPrefix(ve.InstanceLocation, "/")
	if field == "" {
		field = "config"
	}
	return apperrors.NewValidationError(strings.ReplaceAll(field, "/", "."), nil, ve.Message)
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decimalHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(v)
	}
	return data, nil
}
