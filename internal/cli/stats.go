package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/gosched/pkg/model"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show scheduler statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/scheduler/stats")
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}

			var stats model.SchedStats
			if err := json.Unmarshal(resp.Data, &stats); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("Algorithm:         %s\n", stats.Algorithm)
			fmt.Printf("Tick:              %d\n", stats.Tick)
			fmt.Printf("Context switches:  %d\n", stats.ContextSwitches)
			fmt.Printf("Threads scheduled: %d\n", stats.ThreadsScheduled)
			fmt.Printf("Preemptions:       %d\n", stats.Preemptions)
			fmt.Printf("Load balances:     %d\n", stats.LoadBalances)
			fmt.Printf("Migrations:        %d\n", stats.Migrations)
			fmt.Printf("Deadlines missed:  %d\n", stats.DeadlinesMissed)
			fmt.Println("CPUs:")
			for _, c := range stats.CPUs {
				fmt.Printf("  cpu%-2d %-8s ready=%-4d current=%-6s switches=%d\n",
					c.CPU, c.State, c.ReadyCount, currentLabel(c), c.ContextSwitch)
			}
			return nil
		},
	}
}

func currentLabel(c model.CPUStat) string {
	if c.Current == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", c.Current)
}
