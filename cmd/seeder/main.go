// Command seeder generates ERP demo data for a target revenue and pushes it
// through the destination's bulk-import API.
package main

import (
	"os"

	"github.com/fatih/color"
)

// Version information (populated at build time)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
