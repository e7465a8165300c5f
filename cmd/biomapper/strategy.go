package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newStrategyCmd() *cobra.Command {
	var sourceType, sourceEndpoint, targetEndpoint string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "strategy <strategy-name> <id1,id2,...>",
		Short: "Run a named multi-step mapping strategy over a batch of identifiers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ids := strings.Split(args[1], ",")

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			result, err := a.runner.Run(ctx, args[0], sourceEndpoint, targetEndpoint, ids, sourceType)
			if err != nil {
				return fmt.Errorf("run strategy: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(result)
		},
	}

	cmd.Flags().StringVar(&sourceType, "source-type", "name", "ontology type of the input identifiers")
	cmd.Flags().StringVar(&sourceEndpoint, "source-endpoint", "", "opaque source endpoint label passed to actions")
	cmd.Flags().StringVar(&targetEndpoint, "target-endpoint", "", "opaque target endpoint label passed to actions")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall strategy timeout")
	return cmd
}
