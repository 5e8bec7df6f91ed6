// Package kernel is the public control surface of the scheduling core.
// It owns the process and thread tables, the per-CPU scheduler, the
// simulated hardware, and the accounting store, and exposes the
// operations other subsystems call: process and thread lifecycle,
// block/wake/sleep, affinity, and introspection.
package kernel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/me/gosched/internal/config"
	"github.com/me/gosched/internal/hal"
	"github.com/me/gosched/internal/sched"
	"github.com/me/gosched/internal/store"
	"github.com/me/gosched/internal/table"
	"github.com/me/gosched/pkg/model"
)

// statSampleInterval is how often (in ticks) scheduler counters are
// persisted to the accounting store.
const statSampleInterval = 100

// Kernel wires the scheduling core together and enforces the
// cross-process permission rules. All methods are safe for concurrent
// use.
type Kernel struct {
	logger *slog.Logger
	cfg    *config.Config

	procs   *table.ProcessTable
	threads *table.ThreadTable
	core    *sched.Core
	clock   *hal.Clock
	mem     hal.Memory
	store   store.Store // nil disables accounting

	// reapMu serializes thread teardown so the asynchronous kill path
	// and direct termination cannot double-free a stack.
	reapMu sync.Mutex
}

// New assembles a kernel from the configuration. The store may be nil
// when accounting is not wanted (most tests).
func New(cfg *config.Config, st store.Store, logger *slog.Logger) (*Kernel, error) {
	k := &Kernel{
		logger:  logger.With("component", "kernel"),
		cfg:     cfg,
		procs:   table.NewProcessTable(cfg.MaxProcesses, logger),
		threads: table.NewThreadTable(cfg.MaxThreads, logger),
		clock:   hal.NewClock(),
		mem:     hal.NewSimMemory(cfg.StackBudget),
		store:   st,
	}
	core, err := sched.NewCore(sched.Config{
		Algorithm:      cfg.Algorithm,
		CPUCount:       cfg.CPUCount,
		DefaultQuantum: cfg.DefaultQuantum,
		AgingThreshold: cfg.AgingThreshold,
		BoostInterval:  cfg.BoostInterval,
		LoadThreshold:  cfg.LoadThreshold,
		EnableAffinity: cfg.EnableAffinity,
	}, k.threads, hal.NewSimCPU(), logger)
	if err != nil {
		return nil, err
	}
	core.OnReap = k.reapKilled
	core.OnAccount = k.chargeProcess
	k.core = core
	k.clock.RegisterTickHandler(k.onTick)
	return k, nil
}

// Clock exposes the tick source so drivers (daemon loop, scenario
// runner, tests) can advance simulated time.
func (k *Kernel) Clock() *hal.Clock { return k.clock }

// Now returns the current scheduler tick.
func (k *Kernel) Now() uint64 { return k.clock.Now() }

// chargeProcess rolls one consumed tick up to the owning process.
func (k *Kernel) chargeProcess(tid model.TID) {
	th, err := k.threads.Get(tid)
	if err != nil {
		return
	}
	if p, err := k.procs.Get(th.PID()); err == nil {
		p.AddCPUTime(1)
	}
}

// onTick is the registered tick handler: one scheduling step, the
// balancer on its interval, and a periodic counter sample.
func (k *Kernel) onTick(now uint64) {
	k.core.Tick(now)

	if k.cfg.EnableBalancing && k.cfg.LoadBalanceInterval > 0 && now%k.cfg.LoadBalanceInterval == 0 {
		k.core.Rebalance(now)
	}

	if k.store != nil && now%statSampleInterval == 0 {
		stats := k.core.Stats(now)
		sample := &model.StatSample{
			Tick:             stats.Tick,
			ContextSwitches:  stats.ContextSwitches,
			ThreadsScheduled: stats.ThreadsScheduled,
			LoadBalances:     stats.LoadBalances,
			DeadlinesMissed:  stats.DeadlinesMissed,
			RecordedAt:       time.Now().UTC(),
		}
		if err := k.store.RecordSample(context.Background(), sample); err != nil {
			k.logger.Warn("stat sample write failed", "tick", now, "error", err)
		}
	}
}

// SchedulerStats returns the scheduler-wide counters and per-CPU view.
func (k *Kernel) SchedulerStats() model.SchedStats {
	return k.core.Stats(k.clock.Now())
}

// SetCPUOnline returns a drained CPU to service.
func (k *Kernel) SetCPUOnline(id model.CPUID) error {
	return k.core.SetCPUOnline(id)
}

// SetCPUOffline drains a CPU; its threads are redistributed.
func (k *Kernel) SetCPUOffline(id model.CPUID) error {
	return k.core.SetCPUOffline(id, k.clock.Now())
}

// CPUState reports the availability of one CPU.
func (k *Kernel) CPUState(id model.CPUID) (model.CPUState, error) {
	return k.core.CPUState(id)
}

// ExitHistory lists persisted exit records, newest first.
func (k *Kernel) ExitHistory(ctx context.Context, opts model.ListOptions) ([]*model.ExitRecord, int, error) {
	if k.store == nil {
		return nil, 0, nil
	}
	return k.store.ListExits(ctx, opts)
}

// StatHistory lists persisted scheduler counter samples, newest first.
func (k *Kernel) StatHistory(ctx context.Context, opts model.ListOptions) ([]*model.StatSample, int, error) {
	if k.store == nil {
		return nil, 0, nil
	}
	return k.store.ListSamples(ctx, opts)
}

// stackSize applies the configured default and bounds.
func (k *Kernel) stackSize(requested int64) (int64, error) {
	if requested == 0 {
		return k.cfg.StackDefault, nil
	}
	if requested < k.cfg.MinStackSize || requested > k.cfg.MaxStackSize {
		return 0, model.ErrInvalidStackSize(requested)
	}
	return requested, nil
}

// affinityMask applies the all-CPUs default and validates the mask
// against the configured CPU count.
func (k *Kernel) affinityMask(requested model.Affinity) (model.Affinity, error) {
	if requested == 0 {
		return model.AffinityAll, nil
	}
	if !requested.Valid(k.cfg.CPUCount) {
		return 0, model.ErrInvalidAffinity(requested)
	}
	return requested, nil
}
