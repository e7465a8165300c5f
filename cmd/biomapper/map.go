package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newMapCmd() *cobra.Command {
	var opts map[string]string

	cmd := &cobra.Command{
		Use:   "map <source-id> <source-type> <target-type>",
		Short: "Resolve one identifier through the dispatcher's ranked adapters",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			anyOpts := make(map[string]any, len(opts))
			for k, v := range opts {
				anyOpts[k] = v
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			result, err := a.dispatch.MapEntity(ctx, args[0], args[1], args[2], anyOpts)
			if err != nil {
				return fmt.Errorf("map entity: %w", err)
			}
			if result == nil {
				fmt.Fprintln(os.Stderr, "no mapping found")
				os.Exit(2)
			}
			return json.NewEncoder(os.Stdout).Encode(result)
		},
	}

	cmd.Flags().StringToStringVar(&opts, "opt", nil, "adapter-specific option, key=value (repeatable)")
	return cmd
}
