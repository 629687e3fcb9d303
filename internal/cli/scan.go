package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nse-agent/internal/models"
)

func newScanCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one signal scan against the configured universe",
		Long: `Scan every symbol of the allowed sectors once, record the signals in the
ledger and print them. Nothing is executed; approve signals through the API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			rt, err := app.newRuntime(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.agent.Engine.Scan(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			printScan(output, res.Scan.ID, res.Signals)
			return nil
		},
	}
}

func printScan(output *Output, scanID string, signals []models.Signal) {
	output.Bold("Scan %s", scanID)
	if len(signals) == 0 {
		output.Warning("No symbols could be evaluated")
		return
	}

	table := NewTable(output, "SYMBOL", "SECTOR", "STATUS", "ENTRY", "STOP", "TARGET", "R:R", "ACTION")
	qualified := 0
	for _, s := range signals {
		status := string(s.SignalStatus)
		if s.SignalStatus == models.SignalQualified {
			status = output.Green(status)
			qualified++
		} else {
			status = output.Red(status)
		}
		action := string(s.ExecutionInstruction)
		if s.ExecutionInstruction == models.InstructionAutoExecute {
			action = output.Yellow(action)
		}
		table.AddRow(
			s.Symbol,
			s.Sector,
			status,
			fmt.Sprintf("%.2f", s.EntryPrice),
			fmt.Sprintf("%.2f", s.StopLoss),
			fmt.Sprintf("%.2f", s.TargetPrice),
			fmt.Sprintf("%.2f", s.RiskRewardRatio),
			action,
		)
	}
	table.Render()
	output.Println()
	output.Info("%d of %d signals qualified", qualified, len(signals))

	for _, s := range signals {
		if s.SignalStatus != models.SignalQualified {
			output.Dim("%s: %s", s.Symbol, strings.TrimSpace(s.Rationale))
		}
	}
}
