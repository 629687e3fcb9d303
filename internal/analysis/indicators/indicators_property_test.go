package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"nse-agent/internal/models"
)

// buildCandles turns a seed price and relative moves into a valid OHLCV series.
func buildCandles(start float64, moves []float64, volume int64) []models.Candle {
	candles := make([]models.Candle, len(moves))
	price := start
	ts := time.Date(2026, 1, 1, 9, 15, 0, 0, time.UTC)
	for i, m := range moves {
		open := price
		price = math.Max(1, price*(1+m))
		candles[i] = models.Candle{
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
			Open:      open,
			High:      math.Max(open, price) * 1.005,
			Low:       math.Min(open, price) * 0.995,
			Close:     price,
			Volume:    volume + int64(i)*100,
		}
	}
	return candles
}

// Property: For any valid candle series, RSI stays within [0, 100], ATR is
// non-negative, and VWAP lies between the lowest low and highest high seen so far.
func TestProperty_IndicatorBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("indicator values within bounds", prop.ForAll(
		func(start float64, moves []float64, volume int64) bool {
			if len(moves) < MinBars {
				return true
			}
			candles := buildCandles(start, moves, volume)
			bars, err := Annotate(candles)
			if err != nil {
				return false
			}

			lo, hi := math.Inf(1), math.Inf(-1)
			for i, b := range bars {
				lo = math.Min(lo, candles[i].Low)
				hi = math.Max(hi, candles[i].High)
				if b.RSI < 0 || b.RSI > 100 {
					return false
				}
				if b.ATR < 0 {
					return false
				}
				if b.VWAP < lo-1e-9 || b.VWAP > hi+1e-9 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(50, 5000),
		gen.SliceOfN(40, gen.Float64Range(-0.05, 0.05)),
		gen.Int64Range(1000, 1000000),
	))

	properties.TestingRun(t)
}

func TestAnnotate_InsufficientData(t *testing.T) {
	candles := buildCandles(100, make([]float64, MinBars-1), 1000)
	if _, err := Annotate(candles); err != ErrInsufficientData {
		t.Fatalf("Annotate() error = %v, want ErrInsufficientData", err)
	}
}

func TestAnnotate_RisingSeriesHasFastAboveSlow(t *testing.T) {
	moves := make([]float64, 40)
	for i := range moves {
		moves[i] = 0.01
	}
	bars, err := Annotate(buildCandles(100, moves, 5000))
	if err != nil {
		t.Fatal(err)
	}
	last := bars[len(bars)-1]
	if last.EMA9 <= last.EMA21 {
		t.Errorf("EMA9 = %.2f, EMA21 = %.2f; want fast above slow", last.EMA9, last.EMA21)
	}
	if last.Close <= last.VWAP {
		t.Errorf("close %.2f should be above VWAP %.2f in an uptrend", last.Close, last.VWAP)
	}
	if last.AvgVolume <= 0 {
		t.Error("expected average volume to be populated")
	}
	if last.MACD <= 0 {
		t.Errorf("MACD = %.4f, want positive in an uptrend", last.MACD)
	}
}

func TestVWAP_ZeroVolumeFallsBackToClose(t *testing.T) {
	candles := []models.Candle{{High: 11, Low: 9, Close: 10, Volume: 0}}
	if got := VWAP(candles); got[0] != 10 {
		t.Errorf("VWAP = %v, want 10", got[0])
	}
}
