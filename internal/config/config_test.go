package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/me/gosched/pkg/model"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() should validate: %v", err)
	}
	if cfg.Algorithm != model.AlgorithmRoundRobin {
		t.Errorf("Algorithm = %s, want round-robin", cfg.Algorithm)
	}
	if cfg.CPUCount != 4 {
		t.Errorf("CPUCount = %d, want 4", cfg.CPUCount)
	}
	if cfg.DefaultQuantum != 20 {
		t.Errorf("DefaultQuantum = %d, want 20", cfg.DefaultQuantum)
	}
	if cfg.LoadBalanceInterval != 50 {
		t.Errorf("LoadBalanceInterval = %d, want 50", cfg.LoadBalanceInterval)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched.yaml")
	content := "algorithm: mlfq\ncpu_count: 8\nboost_interval: 500\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Algorithm != model.AlgorithmMLFQ {
		t.Errorf("Algorithm = %s, want mlfq", cfg.Algorithm)
	}
	if cfg.CPUCount != 8 {
		t.Errorf("CPUCount = %d, want 8", cfg.CPUCount)
	}
	if cfg.BoostInterval != 500 {
		t.Errorf("BoostInterval = %d, want 500", cfg.BoostInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.DefaultQuantum != 20 {
		t.Errorf("DefaultQuantum = %d, want default 20", cfg.DefaultQuantum)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of missing file should fail")
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad algorithm", func(c *Config) { c.Algorithm = "lottery" }},
		{"zero cpus", func(c *Config) { c.CPUCount = 0 }},
		{"too many cpus", func(c *Config) { c.CPUCount = 65 }},
		{"zero quantum", func(c *Config) { c.DefaultQuantum = 0 }},
		{"zero balance interval", func(c *Config) { c.LoadBalanceInterval = 0 }},
		{"zero threshold", func(c *Config) { c.LoadThreshold = 0 }},
		{"zero process cap", func(c *Config) { c.MaxProcesses = 0 }},
		{"inverted stack bounds", func(c *Config) { c.MaxStackSize = c.MinStackSize - 1 }},
		{"default outside bounds", func(c *Config) { c.StackDefault = c.MaxStackSize * 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}
