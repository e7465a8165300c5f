package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arpanauts/biomapper-sub002/internal/transitivity"
)

func newTransitivityCmd() *cobra.Command {
	var params transitivity.Params
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "transitivity",
		Short: "Run the offline job that composes new derived mappings from existing chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			jobLog, err := a.transit.Run(ctx, params)
			if err != nil {
				return fmt.Errorf("run transitivity job: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(jobLog)
		},
	}

	cmd.Flags().Float64Var(&params.MinConfidence, "min-confidence", 0.5, "minimum confidence for a mapping to seed a chain")
	cmd.Flags().IntVar(&params.MaxChainLength, "max-chain-length", 2, "maximum number of hops to compose (>= 2)")
	cmd.Flags().Float64Var(&params.ConfidenceDecay, "confidence-decay", 0.9, "multiplicative decay applied once per additional hop")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall job timeout")
	return cmd
}
