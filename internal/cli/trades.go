package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"nse-agent/internal/models"
	"nse-agent/internal/trading"
	"nse-agent/pkg/utils"
)

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Inspect positions and trade analytics",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "open",
		Short: "List open positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			rt, err := app.newRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			open, err := rt.agent.Ledger.OpenPositions(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(open)
			}
			printPositions(output, open, false)
			return nil
		},
	})

	closed := &cobra.Command{
		Use:   "closed",
		Short: "List closed trades, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")
			days, _ := cmd.Flags().GetInt("days")
			rt, err := app.newRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			trades, err := rt.agent.Ledger.ClosedPositions(cmd.Context(), limit, days)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			printPositions(output, trades, true)
			return nil
		},
	}
	closed.Flags().Int("limit", 0, "maximum trades to list (default 50)")
	closed.Flags().Int("days", 0, "only trades closed in the last N days")
	cmd.AddCommand(closed)

	summary := &cobra.Command{
		Use:   "summary",
		Short: "Show win rate, P&L and breakdowns",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			days, _ := cmd.Flags().GetInt("days")
			rt, err := app.newRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.agent.Ledger.Summary(cmd.Context(), days)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(s)
			}
			printSummary(output, s)
			return nil
		},
	}
	summary.Flags().Int("days", 0, "only trades closed in the last N days")
	cmd.AddCommand(summary)

	return cmd
}

func printPositions(output *Output, positions []models.Position, closed bool) {
	if len(positions) == 0 {
		output.Dim("No positions")
		return
	}

	headers := []string{"SYMBOL", "MODE", "QTY", "ENTRY", "STOP", "TARGET", "OPENED"}
	if closed {
		headers = []string{"SYMBOL", "MODE", "QTY", "ENTRY", "EXIT", "REASON", "P&L", "P&L %", "CLOSED"}
	}
	table := NewTable(output, headers...)
	for _, p := range positions {
		if !closed {
			table.AddRow(p.Symbol, string(p.TradingMode), fmt.Sprint(p.Quantity),
				fmt.Sprintf("%.2f", p.EntryPrice),
				fmt.Sprintf("%.2f", p.StopLoss),
				fmt.Sprintf("%.2f", p.TargetPrice),
				p.EntryTime.In(utils.IndiaLocation).Format("2006-01-02 15:04"))
			continue
		}
		exitTime := ""
		if p.ExitTime != nil {
			exitTime = p.ExitTime.In(utils.IndiaLocation).Format("2006-01-02 15:04")
		}
		table.AddRow(p.Symbol, string(p.TradingMode), fmt.Sprint(p.Quantity),
			fmt.Sprintf("%.2f", p.EntryPrice),
			fmt.Sprintf("%.2f", p.ExitPrice),
			string(p.ExitReason),
			output.PnL(p.PnL, utils.FormatPnL(p.PnL)),
			output.PnL(p.PnL, utils.FormatPercent(p.PnLPercent)),
			exitTime)
	}
	table.Render()
}

func printSummary(output *Output, s *trading.Summary) {
	output.Bold("Trade summary")
	output.Printf("  Closed trades:  %d (%d open)\n", s.TotalTrades, s.OpenTrades)
	output.Printf("  Wins / losses:  %d / %d\n", s.Wins, s.Losses)
	output.Printf("  Win rate:       %.1f%%\n", s.WinRate)
	output.Printf("  Total P&L:      %s\n", output.PnL(s.TotalPnL, utils.FormatPnL(s.TotalPnL)))
	output.Printf("  Average P&L:    %s\n", output.PnL(s.AvgPnL, utils.FormatPnL(s.AvgPnL)))
	output.Printf("  Best / worst:   %s / %s\n", utils.FormatPnL(s.MaxWin), utils.FormatPnL(s.MaxLoss))
	output.Printf("  Sharpe:         %.2f\n", s.SharpeRatio)
	output.Printf("  Max drawdown:   %s\n", utils.FormatIndianCurrency(s.MaxDrawdown))

	if len(s.SectorBreakdown) > 0 {
		output.Println()
		table := NewTable(output, "SECTOR", "TRADES", "WINS", "P&L")
		for _, sector := range sortedKeys(s.SectorBreakdown) {
			b := s.SectorBreakdown[sector]
			table.AddRow(sector, fmt.Sprint(b.Trades), fmt.Sprint(b.Wins), output.PnL(b.PnL, utils.FormatPnL(b.PnL)))
		}
		table.Render()
	}
}

func sortedKeys(m map[string]trading.Breakdown) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
