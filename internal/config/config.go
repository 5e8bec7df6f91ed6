package config

import (
	"fmt"
	"os"

	"github.com/me/gosched/pkg/model"
	"gopkg.in/yaml.v3"
)

// Config holds the full configuration for the scheduling core and its
// control surface. Zero values are filled in by Default and Validate.
type Config struct {
	// Scheduler selection and tuning.
	Algorithm           model.Algorithm `yaml:"algorithm"`
	CPUCount            int             `yaml:"cpu_count"`
	DefaultQuantum      uint64          `yaml:"default_quantum"`       // ticks
	LoadBalanceInterval uint64          `yaml:"load_balance_interval"` // ticks between rebalance passes
	LoadThreshold       int             `yaml:"load_threshold"`        // max tolerated load difference
	AgingThreshold      uint64          `yaml:"aging_threshold"`       // ticks waited before a one-level promotion
	BoostInterval       uint64          `yaml:"boost_interval"`        // ticks between MLFQ priority boosts
	EnableAffinity      bool            `yaml:"enable_affinity"`
	EnableBalancing     bool            `yaml:"enable_balancing"`

	// Table caps and stack bounds.
	MaxProcesses int   `yaml:"max_processes"`
	MaxThreads   int   `yaml:"max_threads"`
	MinStackSize int64 `yaml:"min_stack_size"` // bytes
	MaxStackSize int64 `yaml:"max_stack_size"` // bytes
	StackDefault int64 `yaml:"stack_default"`  // bytes
	StackBudget  int64 `yaml:"stack_budget"`   // total bytes the stack allocator may hand out

	// Control surface.
	Addr      string `yaml:"addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	DBPath    string `yaml:"db_path"` // accounting database, ":memory:" for tests
}

// Default returns the stock configuration: four CPUs, round-robin,
// quantum 20, rebalance every 50 ticks.
func Default() Config {
	return Config{
		Algorithm:           model.AlgorithmRoundRobin,
		CPUCount:            4,
		DefaultQuantum:      20,
		LoadBalanceInterval: 50,
		LoadThreshold:       2,
		AgingThreshold:      100,
		BoostInterval:       200,
		EnableAffinity:      true,
		EnableBalancing:     true,
		MaxProcesses:        256,
		MaxThreads:          1024,
		MinStackSize:        4 << 10,
		MaxStackSize:        8 << 20,
		StackDefault:        64 << 10,
		StackBudget:         256 << 20,
		Addr:                ":8080",
		LogLevel:            "info",
		LogFormat:           "text",
		DBPath:              ":memory:",
	}
}

// Load reads a YAML config file and overlays it on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if !c.Algorithm.IsValid() {
		return fmt.Errorf("unknown algorithm %q", c.Algorithm)
	}
	if c.CPUCount < 1 || c.CPUCount > 64 {
		return fmt.Errorf("cpu_count %d outside 1..64", c.CPUCount)
	}
	if c.DefaultQuantum == 0 {
		return fmt.Errorf("default_quantum must be positive")
	}
	if c.LoadBalanceInterval == 0 {
		return fmt.Errorf("load_balance_interval must be positive")
	}
	if c.LoadThreshold < 1 {
		return fmt.Errorf("load_threshold %d must be at least 1", c.LoadThreshold)
	}
	if c.MaxProcesses < 1 || c.MaxThreads < 1 {
		return fmt.Errorf("process/thread caps must be positive")
	}
	if c.MinStackSize <= 0 || c.MaxStackSize < c.MinStackSize {
		return fmt.Errorf("stack bounds %d..%d invalid", c.MinStackSize, c.MaxStackSize)
	}
	if c.StackDefault < c.MinStackSize || c.StackDefault > c.MaxStackSize {
		return fmt.Errorf("stack_default %d outside %d..%d", c.StackDefault, c.MinStackSize, c.MaxStackSize)
	}
	return nil
}
