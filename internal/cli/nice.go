package cli

import (
	"fmt"
	"strconv"

	"github.com/me/gosched/pkg/model"
	"github.com/spf13/cobra"
)

func newNiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nice <pid> <priority>",
		Short: "Change a process's priority class",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			if _, err := model.ParsePriority(args[1]); err != nil {
				return err
			}

			path := fmt.Sprintf("/api/v1/processes/%d/priority", pid)
			if _, err := client.Put(path, map[string]any{"priority": args[1]}); err != nil {
				return fmt.Errorf("set priority: %w", err)
			}
			fmt.Printf("Process %d priority set to %s\n", pid, args[1])
			return nil
		},
	}
}
