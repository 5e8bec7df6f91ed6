package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newKillCmd() *cobra.Command {
	var (
		exitStatus int
		thread     bool
	)

	cmd := &cobra.Command{
		Use:   "kill <pid|tid>",
		Short: "Terminate a process (or a single thread with --thread)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}

			if thread {
				if _, err := client.Delete(fmt.Sprintf("/api/v1/threads/%d/", id)); err != nil {
					return fmt.Errorf("terminate thread: %w", err)
				}
				fmt.Printf("Thread %d terminated\n", id)
				return nil
			}

			path := fmt.Sprintf("/api/v1/processes/%d/?exit_status=%d", id, exitStatus)
			if _, err := client.Delete(path); err != nil {
				return fmt.Errorf("terminate process: %w", err)
			}
			fmt.Printf("Process %d terminated (exit status %d)\n", id, exitStatus)
			return nil
		},
	}

	cmd.Flags().IntVar(&exitStatus, "status", 0, "Exit status to record")
	cmd.Flags().BoolVar(&thread, "thread", false, "Treat the argument as a TID")
	return cmd
}
