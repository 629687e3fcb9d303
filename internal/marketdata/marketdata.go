// Package marketdata defines the market data port and its adapters.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"nse-agent/internal/models"
)

// Provider is the market data port. Implementations never mutate agent
// state; failures surface as DataUnavailableError once guarded.
type Provider interface {
	// Quote returns the latest traded price for symbol.
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	// History returns OHLCV bars annotated with indicator values, oldest first.
	History(ctx context.Context, symbol, period, interval string) ([]models.Bar, error)
	// Search returns exchange-listed equities matching query.
	Search(ctx context.Context, query string) ([]models.SymbolMatch, error)
}

// periodDurations maps the supported history periods to lookback windows.
var periodDurations = map[string]time.Duration{
	"1d":  24 * time.Hour,
	"5d":  5 * 24 * time.Hour,
	"1mo": 31 * 24 * time.Hour,
	"3mo": 92 * 24 * time.Hour,
	"6mo": 183 * 24 * time.Hour,
	"1y":  366 * 24 * time.Hour,
}

var validIntervals = map[string]bool{
	"1m": true, "5m": true, "15m": true, "30m": true, "60m": true,
	"1h": true, "1d": true, "1wk": true,
}

// ParsePeriod converts a history period such as "1mo" into a lookback.
func ParsePeriod(period string) (time.Duration, error) {
	d, ok := periodDurations[period]
	if !ok {
		return 0, fmt.Errorf("unsupported period %q", period)
	}
	return d, nil
}

// ValidInterval reports whether interval is a supported bar size.
func ValidInterval(interval string) bool {
	return validIntervals[interval]
}
