package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/me/gosched/pkg/model"
	"github.com/spf13/cobra"
)

func newCPUsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cpus",
		Short: "List CPUs and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/scheduler/stats")
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}

			var stats model.SchedStats
			if err := json.Unmarshal(resp.Data, &stats); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("%-5s  %-8s  %-6s  %-8s  %s\n", "CPU", "STATE", "READY", "CURRENT", "LAST_BALANCED")
			for _, c := range stats.CPUs {
				fmt.Printf("%-5d  %-8s  %-6d  %-8s  %d\n",
					c.CPU, c.State, c.ReadyCount, currentLabel(c), c.LastBalanced)
			}
			return nil
		},
	}

	cmd.AddCommand(newCPUStateCmd("online", "Bring a CPU online"))
	cmd.AddCommand(newCPUStateCmd("offline", "Take a CPU offline, draining its queue"))
	return cmd
}

func newCPUStateCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <cpu>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cpu, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid cpu %q", args[0])
			}
			path := fmt.Sprintf("/api/v1/scheduler/cpus/%d/%s", cpu, verb)
			if _, err := client.Put(path, map[string]any{}); err != nil {
				return fmt.Errorf("%s cpu: %w", verb, err)
			}
			fmt.Printf("CPU %d %s\n", cpu, verb)
			return nil
		},
	}
}
