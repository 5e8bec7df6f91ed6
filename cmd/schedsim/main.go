// schedsim runs JavaScript workload scenarios against an in-process
// kernel. Each script drives the clock itself, so runs are repeatable.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/me/gosched/internal/config"
	"github.com/me/gosched/internal/kernel"
	"github.com/me/gosched/internal/logging"
	"github.com/me/gosched/internal/scenario"
	"github.com/me/gosched/pkg/model"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")
	algorithm := flag.String("algorithm", "", "Scheduling policy: round-robin, priority, mlfq, edf (overrides config)")
	cpus := flag.Int("cpus", 0, "Number of simulated CPUs (overrides config)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "Log format (text, json)")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: schedsim [flags] <scenario.js>...")
		os.Exit(2)
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *algorithm != "" {
		cfg.Algorithm = model.Algorithm(*algorithm)
	}
	if *cpus > 0 {
		cfg.CPUCount = *cpus
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.ParseLevel(*logLevel), *logFormat)

	failed := 0
	for _, path := range flag.Args() {
		// A fresh kernel per script keeps scenarios independent.
		k, err := kernel.New(&cfg, nil, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init kernel: %v\n", err)
			os.Exit(1)
		}
		runner := scenario.NewRunner(k, logger)

		if err := runner.RunFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", path, err)
			failed++
			continue
		}
		stats := k.SchedulerStats()
		fmt.Printf("PASS %s (ticks=%d switches=%d migrations=%d)\n",
			path, stats.Tick, stats.ContextSwitches, stats.Migrations)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
