// Command biomapper is the CLI entry point for the mapping-resolution
// engine: it resolves single identifiers, runs batches, composes transitive
// mappings, and serves Prometheus metrics for the monitor's counters.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set via -ldflags at build time.
var (
	version    = "dev"
	commitHash = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "biomapper",
		Short:         "Biological-entity mapping resolution engine",
		Version:       fmt.Sprintf("%s (%s)", version, commitHash),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newMapCmd(),
		newBatchCmd(),
		newTransitivityCmd(),
		newServeMetricsCmd(),
		newStrategyCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
