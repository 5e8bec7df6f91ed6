package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/gosched/pkg/model"
	"github.com/spf13/cobra"
)

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/processes/")
			if err != nil {
				return fmt.Errorf("list processes: %w", err)
			}

			var procs []model.ProcessInfo
			if err := json.Unmarshal(resp.Data, &procs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("%-6s  %-6s  %-20s  %-8s  %-10s  %-8s  %s\n", "PID", "PARENT", "NAME", "PRIO", "STATE", "THREADS", "CPU_TIME")
			for _, p := range procs {
				fmt.Printf("%-6d  %-6d  %-20s  %-8s  %-10s  %-8d  %d\n",
					p.PID, p.Parent, p.Name, p.Priority, p.State, len(p.Threads), p.CPUTime)
			}
			return nil
		},
	}
}
