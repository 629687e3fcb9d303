package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nse-agent/internal/models"
	"nse-agent/internal/trading"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func bufferOutput() (*Output, *bytes.Buffer) {
	cmd := &cobra.Command{}
	cmd.Flags().Bool("json", false, "")
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	return NewOutput(cmd), &buf
}

func TestVersionJSON(t *testing.T) {
	out := execute(t, "version", "--json")
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
}

func TestConfigShowRedactsCredentials(t *testing.T) {
	t.Setenv("AGENT_API_TOKEN", "super-secret")
	dir := t.TempDir()

	out := execute(t, "--config", dir, "config", "show")
	assert.Contains(t, out, "Agent defaults")
	assert.Contains(t, out, "API token:        configured")
	assert.NotContains(t, out, "super-secret")

	out = execute(t, "--config", dir, "config", "show", "--json")
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, "MaxTradesPerDay")
}

func TestTableAlignsColumns(t *testing.T) {
	output, buf := bufferOutput()
	table := NewTable(output, "SYMBOL", "P&L")
	table.AddRow("INFY", "+₹1,500.00")
	table.AddRow("HCLTECH", "-₹20.00")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "SYMBOL   P&L", lines[0])
	assert.Equal(t, "INFY     +₹1,500.00", lines[1])
	assert.Equal(t, "HCLTECH  -₹20.00", lines[2])
}

func TestVisibleLenSkipsEscapes(t *testing.T) {
	assert.Equal(t, 4, visibleLen("\x1b[32mINFY\x1b[0m"))
	assert.Equal(t, 4, visibleLen("₹100"))
}

func TestPrintScanSummarisesQualified(t *testing.T) {
	output, buf := bufferOutput()
	printScan(output, "20240304T100000.000", []models.Signal{
		{Symbol: "INFY", Sector: "IT", SignalStatus: models.SignalQualified, EntryPrice: 1500, ExecutionInstruction: models.InstructionWaitForUser},
		{Symbol: "TCS", Sector: "IT", SignalStatus: models.SignalRejected, Rationale: "Rule check(s) failed: rsi_in_range."},
	})

	out := buf.String()
	assert.Contains(t, out, "Scan 20240304T100000.000")
	assert.Contains(t, out, "1 of 2 signals qualified")
	assert.Contains(t, out, "TCS: Rule check(s) failed: rsi_in_range.")
	assert.NotContains(t, out, "INFY: ")
}

func TestPrintPositionsClosed(t *testing.T) {
	output, buf := bufferOutput()
	exit := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	printPositions(output, []models.Position{{
		Symbol: "INFY", TradingMode: models.TradingPaper, Quantity: 3,
		EntryPrice: 1500, ExitPrice: 1545, ExitReason: models.ExitTargetHit,
		PnL: 135, PnLPercent: 3, ExitTime: &exit,
	}}, true)

	out := buf.String()
	assert.Contains(t, out, "+₹135.00")
	assert.Contains(t, out, "+3.00%")
	assert.Contains(t, out, "2024-03-04 14:30")
}

func TestPrintSummary(t *testing.T) {
	output, buf := bufferOutput()
	printSummary(output, &trading.Summary{
		TotalTrades: 2, Wins: 1, Losses: 1, WinRate: 50, TotalPnL: -10,
		SectorBreakdown: map[string]trading.Breakdown{"IT": {Trades: 2, Wins: 1, PnL: -10}},
	})
	out := buf.String()
	assert.Contains(t, out, "Win rate:       50.0%")
	assert.Contains(t, out, "-₹10.00")
	assert.Contains(t, out, "IT")
}
