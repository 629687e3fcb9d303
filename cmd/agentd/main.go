// Command agentd runs the NSE intraday trading agent.
package main

import (
	"fmt"
	"os"

	"nse-agent/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
