package trading

import (
	"math"
	"sort"
	"time"

	"nse-agent/internal/models"
	"nse-agent/pkg/utils"
)

// Breakdown aggregates closed trades sharing a sector or a trading day.
type Breakdown struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	PnL    float64 `json:"pnl"`
}

// Summary holds ledger performance metrics.
type Summary struct {
	TotalTrades     int                  `json:"total_trades"`
	OpenTrades      int                  `json:"open_trades"`
	Wins            int                  `json:"wins"`
	Losses          int                  `json:"losses"`
	WinRate         float64              `json:"win_rate"`
	TotalPnL        float64              `json:"total_pnl"`
	AvgPnL          float64              `json:"avg_pnl"`
	MaxWin          float64              `json:"max_win"`
	MaxLoss         float64              `json:"max_loss"`
	AvgWin          float64              `json:"avg_win"`
	AvgLoss         float64              `json:"avg_loss"`
	SharpeRatio     float64              `json:"sharpe_ratio"`
	MaxDrawdown     float64              `json:"max_drawdown"`
	SectorBreakdown map[string]Breakdown `json:"sector_breakdown"`
	DailyBreakdown  map[string]Breakdown `json:"daily_breakdown"`
}

// Summarize computes metrics over the closed positions in trades. Open
// positions are only counted. A trade with pnl <= 0 is a loss.
func Summarize(trades []models.Position) Summary {
	s := Summary{
		SectorBreakdown: make(map[string]Breakdown),
		DailyBreakdown:  make(map[string]Breakdown),
	}

	closed := make([]models.Position, 0, len(trades))
	for _, t := range trades {
		if t.IsOpen() {
			s.OpenTrades++
			continue
		}
		closed = append(closed, t)
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return exitTime(closed[i]).Before(exitTime(closed[j]))
	})

	s.TotalTrades = len(closed)
	if s.TotalTrades == 0 {
		return s
	}

	var winSum, lossSum float64
	returns := make([]float64, 0, len(closed))
	for i, t := range closed {
		s.TotalPnL += t.PnL
		win := t.PnL > 0
		if win {
			s.Wins++
			winSum += t.PnL
		} else {
			s.Losses++
			lossSum += t.PnL
		}
		if i == 0 || t.PnL > s.MaxWin {
			s.MaxWin = t.PnL
		}
		if i == 0 || t.PnL < s.MaxLoss {
			s.MaxLoss = t.PnL
		}

		if cost := t.Cost(); cost > 0 {
			returns = append(returns, t.PnL/cost)
		} else {
			returns = append(returns, 0)
		}

		s.SectorBreakdown[t.Sector] = addTrade(s.SectorBreakdown[t.Sector], t.PnL, win)
		day := utils.TradingDate(exitTime(t))
		s.DailyBreakdown[day] = addTrade(s.DailyBreakdown[day], t.PnL, win)
	}

	s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100
	s.AvgPnL = s.TotalPnL / float64(s.TotalTrades)
	if s.Wins > 0 {
		s.AvgWin = winSum / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = lossSum / float64(s.Losses)
	}
	s.SharpeRatio = sharpeRatio(returns)
	s.MaxDrawdown = maxDrawdown(closed)
	return s
}

func addTrade(b Breakdown, pnl float64, win bool) Breakdown {
	b.Trades++
	b.PnL += pnl
	if win {
		b.Wins++
	}
	return b
}

func exitTime(p models.Position) time.Time {
	if p.ExitTime != nil {
		return *p.ExitTime
	}
	return p.EntryTime
}

// sharpeRatio is mean over sample standard deviation of per-trade returns.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}

// maxDrawdown is the largest peak-to-trough drop of cumulative pnl, with
// the running peak starting at zero. closed must be ordered by exit time.
func maxDrawdown(closed []models.Position) float64 {
	var cum, peak, dd float64
	for _, t := range closed {
		cum += t.PnL
		if cum > peak {
			peak = cum
		}
		if peak-cum > dd {
			dd = peak - cum
		}
	}
	return dd
}
