package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arpanauts/biomapper-sub002/internal/dispatcher"
)

func newBatchCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Resolve a newline-delimited list of source_id,source_type,target_type entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open batch file: %w", err)
			}
			defer f.Close()

			var items []dispatcher.BatchItem
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				parts := strings.SplitN(line, ",", 3)
				if len(parts) != 3 {
					return fmt.Errorf("malformed line %q: expected source_id,source_type,target_type", line)
				}
				items = append(items, dispatcher.BatchItem{
					SourceID: strings.TrimSpace(parts[0]), SourceType: strings.TrimSpace(parts[1]), TargetType: strings.TrimSpace(parts[2]),
				})
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read batch file: %w", err)
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			results, err := a.dispatch.BatchMapEntities(ctx, items)
			if err != nil {
				return fmt.Errorf("batch map entities: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(results)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall batch timeout")
	return cmd
}
