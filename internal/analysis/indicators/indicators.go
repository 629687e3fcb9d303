// Package indicators annotates OHLCV history with the technical indicators
// used by signal qualification.
package indicators

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"

	"nse-agent/internal/models"
)

// Indicator periods.
const (
	FastEMAPeriod   = 9
	SlowEMAPeriod   = 21
	RSIPeriod       = 14
	ATRPeriod       = 14
	VolumePeriod    = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	MinBars         = 26
	macdMinimumBars = MACDSlow + MACDSignal - 1
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
)

// Annotate computes indicator values for every candle. Values that need
// more history than is available at a bar are left at zero.
func Annotate(candles []models.Candle) ([]models.Bar, error) {
	if len(candles) < MinBars {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = float64(c.Volume)
	}

	ema9 := talib.Ema(closes, FastEMAPeriod)
	ema21 := talib.Ema(closes, SlowEMAPeriod)
	rsi := talib.Rsi(closes, RSIPeriod)
	atr := talib.Atr(highs, lows, closes, ATRPeriod)
	avgVol := talib.Sma(volumes, VolumePeriod)
	vwap := VWAP(candles)

	var macd, macdSignal []float64
	if n >= macdMinimumBars {
		macd, macdSignal, _ = talib.Macd(closes, MACDFast, MACDSlow, MACDSignal)
	}

	bars := make([]models.Bar, n)
	for i, c := range candles {
		bars[i] = models.Bar{
			Candle:    c,
			EMA9:      finite(ema9, i),
			EMA21:     finite(ema21, i),
			RSI:       finite(rsi, i),
			ATR:       finite(atr, i),
			VWAP:      vwap[i],
			AvgVolume: finite(avgVol, i),
		}
		if macd != nil {
			bars[i].MACD = finite(macd, i)
			bars[i].MACDSignal = finite(macdSignal, i)
		}
	}
	return bars, nil
}

// VWAP returns the cumulative volume weighted average of the typical
// price. Bars before any volume has traded fall back to the close.
func VWAP(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	var pv, vol float64
	for i, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		pv += typical * float64(c.Volume)
		vol += float64(c.Volume)
		if vol == 0 {
			out[i] = c.Close
			continue
		}
		out[i] = pv / vol
	}
	return out
}

func finite(series []float64, i int) float64 {
	if i >= len(series) {
		return 0
	}
	v := series[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
