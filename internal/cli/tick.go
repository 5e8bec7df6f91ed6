package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick [n]",
		Short: "Advance the scheduler clock by n ticks (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticks := uint64(1)
			if len(args) == 1 {
				n, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil || n == 0 {
					return fmt.Errorf("invalid tick count %q", args[0])
				}
				ticks = n
			}

			resp, err := client.Post("/api/v1/scheduler/tick", map[string]any{"ticks": ticks})
			if err != nil {
				return fmt.Errorf("advance clock: %w", err)
			}

			var data struct {
				Tick uint64 `json:"tick"`
			}
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Printf("Clock advanced to tick %d\n", data.Tick)
			return nil
		},
	}
}
