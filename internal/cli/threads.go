package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/gosched/pkg/model"
	"github.com/spf13/cobra"
)

func newThreadsCmd() *cobra.Command {
	var pidFilter uint32

	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/threads/")
			if err != nil {
				return fmt.Errorf("list threads: %w", err)
			}

			var threads []model.ThreadInfo
			if err := json.Unmarshal(resp.Data, &threads); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("%-6s  %-6s  %-16s  %-8s  %-12s  %-4s  %-6s  %s\n", "TID", "PID", "NAME", "PRIO", "STATE", "CPU", "LEVEL", "CPU_TIME")
			for _, th := range threads {
				if pidFilter != 0 && th.PID != model.PID(pidFilter) {
					continue
				}
				fmt.Printf("%-6d  %-6d  %-16s  %-8s  %-12s  %-4d  %-6d  %d\n",
					th.TID, th.PID, th.Name, th.Priority, th.State, th.CPU, th.Sched.FeedbackLevel, th.CPUTime)
			}
			return nil
		},
	}

	cmd.Flags().Uint32Var(&pidFilter, "pid", 0, "Only show threads of this process")
	return cmd
}
