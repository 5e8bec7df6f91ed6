package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/gosched/pkg/model"
	"github.com/spf13/cobra"
)

func newSpawnCmd() *cobra.Command {
	var (
		priority  string
		parent    uint32
		stackSize int64
		affinity  uint64
		threads   int
	)

	cmd := &cobra.Command{
		Use:   "spawn <name>",
		Short: "Create a process with a main thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prio, err := model.ParsePriority(priority)
			if err != nil {
				return err
			}

			resp, err := client.Post("/api/v1/processes/", map[string]any{
				"name":       args[0],
				"priority":   prio,
				"parent":     parent,
				"stack_size": stackSize,
				"affinity":   affinity,
			})
			if err != nil {
				return fmt.Errorf("create process: %w", err)
			}

			var info model.ProcessInfo
			if err := json.Unmarshal(resp.Data, &info); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Printf("Process created: pid=%d main_tid=%d priority=%s\n", info.PID, info.MainThread, info.Priority)

			for i := 1; i < threads; i++ {
				resp, err := client.Post("/api/v1/threads/", map[string]any{
					"pid":   info.PID,
					"entry": fmt.Sprintf("worker-%d", i),
				})
				if err != nil {
					return fmt.Errorf("create thread %d: %w", i, err)
				}
				var th model.ThreadInfo
				if err := json.Unmarshal(resp.Data, &th); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				fmt.Printf("Thread created: tid=%d\n", th.TID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&priority, "priority", "normal", "Priority class (system, high, normal, low, idle)")
	cmd.Flags().Uint32Var(&parent, "parent", 0, "Parent PID (0 = root)")
	cmd.Flags().Int64Var(&stackSize, "stack", 0, "Main thread stack size in bytes (0 = default)")
	cmd.Flags().Uint64Var(&affinity, "affinity", 0, "CPU affinity bitmask (0 = all CPUs)")
	cmd.Flags().IntVar(&threads, "threads", 1, "Total threads to create, including main")
	return cmd
}
