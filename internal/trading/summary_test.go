package trading

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"nse-agent/internal/models"
	"nse-agent/pkg/utils"
)

func closedTrade(sector string, entry, exit float64, qty int, at time.Time) models.Position {
	exitAt := at
	return models.Position{
		Symbol:     sector + "SYM",
		Sector:     sector,
		EntryPrice: entry,
		Quantity:   qty,
		EntryTime:  at.Add(-time.Hour),
		Status:     models.PositionClosed,
		ExitPrice:  exit,
		ExitTime:   &exitAt,
		PnL:        (exit - entry) * float64(qty),
	}
}

func TestSummarize(t *testing.T) {
	day1 := time.Date(2024, 3, 4, 10, 0, 0, 0, utils.IndiaLocation)
	day2 := day1.AddDate(0, 0, 1)

	trades := []models.Position{
		closedTrade("IT", 100, 110, 10, day1),                // +100
		closedTrade("IT", 100, 80, 10, day1.Add(time.Hour)), // -200
		closedTrade("AUTO", 50, 60, 5, day2),                // +50
		{Symbol: "OPEN", Status: models.PositionOpen},
	}

	s := Summarize(trades)

	if s.TotalTrades != 3 || s.OpenTrades != 1 {
		t.Fatalf("counts = %d closed, %d open", s.TotalTrades, s.OpenTrades)
	}
	if s.Wins != 2 || s.Losses != 1 {
		t.Errorf("wins/losses = %d/%d", s.Wins, s.Losses)
	}
	if math.Abs(s.WinRate-66.6666666) > 1e-4 {
		t.Errorf("win rate = %v", s.WinRate)
	}
	if s.TotalPnL != -50 {
		t.Errorf("total pnl = %v", s.TotalPnL)
	}
	if s.MaxWin != 100 || s.MaxLoss != -200 {
		t.Errorf("max win/loss = %v/%v", s.MaxWin, s.MaxLoss)
	}
	if s.AvgWin != 75 || s.AvgLoss != -200 {
		t.Errorf("avg win/loss = %v/%v", s.AvgWin, s.AvgLoss)
	}
	// cumulative: 100, -100, -50; peak 100
	if s.MaxDrawdown != 200 {
		t.Errorf("max drawdown = %v", s.MaxDrawdown)
	}
	if s.SectorBreakdown["IT"].PnL != -100 || s.SectorBreakdown["IT"].Trades != 2 {
		t.Errorf("IT breakdown = %+v", s.SectorBreakdown["IT"])
	}
	if s.DailyBreakdown["2024-03-05"].PnL != 50 {
		t.Errorf("daily breakdown = %+v", s.DailyBreakdown)
	}
	if s.SharpeRatio == 0 {
		t.Error("expected non-zero sharpe ratio")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalTrades != 0 || s.WinRate != 0 || s.SharpeRatio != 0 || s.MaxDrawdown != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
	if s.SectorBreakdown == nil || s.DailyBreakdown == nil {
		t.Error("breakdown maps should be non-nil")
	}
}

// Property: win rate stays within [0,100], drawdown is non-negative and the
// breakdowns partition total pnl.
func TestProperty_SummaryInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, utils.IndiaLocation)
	sectors := []string{"IT", "AUTO", "PHARMA"}

	properties.Property("summary bounds", prop.ForAll(
		func(exits []float64) bool {
			trades := make([]models.Position, len(exits))
			for i, x := range exits {
				trades[i] = closedTrade(sectors[i%len(sectors)], 100, x, 1+i%4, base.Add(time.Duration(i)*7*time.Hour))
			}
			s := Summarize(trades)

			if s.WinRate < 0 || s.WinRate > 100 || s.MaxDrawdown < 0 {
				return false
			}
			if s.Wins+s.Losses != s.TotalTrades {
				return false
			}
			var sectorSum, daySum float64
			for _, b := range s.SectorBreakdown {
				sectorSum += b.PnL
			}
			for _, b := range s.DailyBreakdown {
				daySum += b.PnL
			}
			return math.Abs(sectorSum-s.TotalPnL) < 1e-6 && math.Abs(daySum-s.TotalPnL) < 1e-6
		},
		gen.SliceOf(gen.Float64Range(50, 150)),
	))

	properties.TestingRun(t)
}
