package sched

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/me/gosched/internal/hal"
	"github.com/me/gosched/internal/table"
	"github.com/me/gosched/pkg/model"
)

// cpuCore is one logical CPU's scheduler instance. The mutex guards
// the queue, the current slot, and the CPU state; it is held only for
// the duration of a single scheduling decision.
type cpuCore struct {
	id model.CPUID

	mu       sync.Mutex
	state    model.CPUState
	queue    readyQueue
	current  *table.Thread
	preempt  bool // resched requested before slice expiry
	balanced uint64
	switches uint64
}

// Config carries the knobs the scheduler core needs. The kernel fills
// it from the daemon configuration.
type Config struct {
	Algorithm      model.Algorithm
	CPUCount       int
	DefaultQuantum uint64
	AgingThreshold uint64
	BoostInterval  uint64
	LoadThreshold  int
	EnableAffinity bool
}

// Core is the scheduling engine: one ready queue and dispatch loop per
// logical CPU, a shared sleep wheel, and the load balancer. All entry
// points are safe for concurrent use.
type Core struct {
	logger  *slog.Logger
	threads *table.ThreadTable
	hw      hal.CPU

	alg            model.Algorithm
	params         queueParams
	boostInterval  uint64
	loadThreshold  int
	enableAffinity bool

	cpus []*cpuCore
	seq  atomic.Uint64

	wheel sleepWheel

	contextSwitches  atomic.Uint64
	threadsScheduled atomic.Uint64
	loadBalances     atomic.Uint64
	migrations       atomic.Uint64
	deadlinesMissed  atomic.Uint64
	preemptions      atomic.Uint64

	// OnReap is called (outside all core locks) when a kill-flagged
	// thread is evicted at dispatch. The kernel finishes the
	// termination there.
	OnReap func(tid model.TID)

	// OnAccount is called (outside all core locks) once per tick for
	// each thread that consumed CPU that tick. The kernel charges
	// process accounting there.
	OnAccount func(tid model.TID)
}

// NewCore builds the per-CPU scheduler instances. All CPUs start
// online with empty queues.
func NewCore(cfg Config, threads *table.ThreadTable, hw hal.CPU, logger *slog.Logger) (*Core, error) {
	if !cfg.Algorithm.IsValid() {
		return nil, &model.KernelError{Code: model.ErrInvalidParam, Message: "unknown scheduling algorithm " + string(cfg.Algorithm)}
	}
	if cfg.LoadThreshold < 1 {
		// A zero threshold would keep ping-ponging one thread between
		// two CPUs whenever the ready count is odd.
		cfg.LoadThreshold = 1
	}
	c := &Core{
		logger:  logger.With("component", "sched"),
		threads: threads,
		hw:      hw,
		alg:     cfg.Algorithm,
		params: queueParams{
			defaultQuantum: cfg.DefaultQuantum,
			agingThreshold: cfg.AgingThreshold,
		},
		boostInterval:  cfg.BoostInterval,
		loadThreshold:  cfg.LoadThreshold,
		enableAffinity: cfg.EnableAffinity,
	}
	for i := 0; i < cfg.CPUCount; i++ {
		q, err := newReadyQueue(cfg.Algorithm, c.params)
		if err != nil {
			return nil, err
		}
		c.cpus = append(c.cpus, &cpuCore{
			id:    model.CPUID(i),
			state: model.CPUStateOnline,
			queue: q,
		})
	}
	return c, nil
}

// CPUCount returns the number of configured logical CPUs.
func (c *Core) CPUCount() int { return len(c.cpus) }

// Algorithm returns the active scheduling policy.
func (c *Core) Algorithm() model.Algorithm { return c.alg }

func (c *Core) cpu(id model.CPUID) (*cpuCore, error) {
	if int(id) < 0 || int(id) >= len(c.cpus) {
		return nil, model.ErrCPUDown(id)
	}
	return c.cpus[id], nil
}

// entryFor snapshots the scheduling-relevant fields of a thread record
// into a fresh queue entry.
func (c *Core) entryFor(th *table.Thread, now uint64) *entry {
	return &entry{
		tid:      th.TID(),
		prio:     th.Priority(),
		level:    th.Level(),
		deadline: th.Deadline(),
		seq:      c.seq.Add(1),
		arrived:  now,
	}
}

// allowedOn reports whether the thread's affinity mask permits the CPU.
// With affinity disabled every online CPU is permitted.
func (c *Core) allowedOn(aff model.Affinity, id model.CPUID) bool {
	if !c.enableAffinity {
		return true
	}
	return aff.Allows(id)
}

// Place admits a thread to the ready queue of the least loaded online
// CPU its affinity permits. Used for newly created and rebalance-placed
// threads.
func (c *Core) Place(th *table.Thread, now uint64) error {
	target := c.leastLoaded(th.Affinity())
	if target == nil {
		return model.ErrInvalidAffinity(th.Affinity())
	}
	if err := th.SetState(model.ThreadStateReady); err != nil {
		return err
	}
	th.SetCPU(target.id)
	target.mu.Lock()
	target.queue.Enqueue(c.entryFor(th, now))
	if cur := target.current; cur != nil && th.Priority() < cur.Priority() {
		target.preempt = true
	}
	target.mu.Unlock()
	c.threadsScheduled.Add(1)
	c.logger.Debug("thread placed", "tid", th.TID(), "cpu", int(target.id))
	return nil
}

// leastLoaded picks the online CPU with the fewest ready threads among
// those the mask permits, lowest id on ties. Returns nil when the mask
// excludes every online CPU.
func (c *Core) leastLoaded(aff model.Affinity) *cpuCore {
	var best *cpuCore
	bestLoad := 0
	for _, cc := range c.cpus {
		if !c.allowedOn(aff, cc.id) {
			continue
		}
		cc.mu.Lock()
		if cc.state != model.CPUStateOnline {
			cc.mu.Unlock()
			continue
		}
		load := cc.queue.Len()
		if cc.current != nil {
			load++
		}
		cc.mu.Unlock()
		if best == nil || load < bestLoad {
			best = cc
			bestLoad = load
		}
	}
	return best
}

// Tick advances every online CPU by one tick at the given time:
// charges the running thread, preempts on slice expiry, and dispatches
// idle CPUs. It also wakes due sleepers first so a thread whose sleep
// expires this tick is eligible for dispatch this tick.
func (c *Core) Tick(now uint64) {
	for _, tid := range c.wheel.popDue(now) {
		if err := c.Wake(tid, now); err != nil {
			c.logger.Warn("sleep expiry wake failed", "tid", tid, "error", err)
		}
	}
	if c.boostInterval > 0 && now%c.boostInterval == 0 {
		c.boostAll()
	}
	var reaped, ran []model.TID
	for _, cc := range c.cpus {
		r, tid := c.tickCPU(cc, now)
		reaped = append(reaped, r...)
		if tid != 0 {
			ran = append(ran, tid)
		}
	}
	if c.OnAccount != nil {
		for _, tid := range ran {
			c.OnAccount(tid)
		}
	}
	if c.OnReap != nil {
		for _, tid := range reaped {
			c.OnReap(tid)
		}
	}
}

// tickCPU runs one scheduling step on one CPU: evict a killed thread,
// honor a preemption request, dispatch if idle, then charge the
// running thread one tick. A thread whose slice ends this tick is
// requeued; its successor is dispatched at the start of the next tick,
// so a quantum of N means exactly N charged ticks. The outgoing
// thread's register file is saved whenever it leaves the CPU, on every
// path. Returns the TIDs of
// kill-flagged threads evicted (reaped by the kernel outside the CPU
// lock) and the TID that consumed CPU this tick, 0 if the CPU idled.
func (c *Core) tickCPU(cc *cpuCore, now uint64) (reaped []model.TID, ran model.TID) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.state != model.CPUStateOnline {
		return nil, 0
	}

	if cur := cc.current; cur != nil && cur.Killed() {
		c.hw.SaveContext(cur.Context())
		cc.current = nil
		reaped = append(reaped, cur.TID())
	}
	if cur := cc.current; cur != nil && cc.preempt {
		if err := cur.SetState(model.ThreadStateReady); err != nil {
			c.halt(cc, cur.TID(), err)
			return reaped, 0
		}
		c.hw.SaveContext(cur.Context())
		cc.current = nil
		cc.queue.Enqueue(c.entryFor(cur, now))
	}
	cc.preempt = false

	if cc.current == nil {
		reaped = append(reaped, c.dispatch(cc, now)...)
	}

	if cur := cc.current; cur != nil {
		ran = cur.TID()
		if cur.ConsumeTick() {
			c.preemptions.Add(1)
			if err := cur.SetState(model.ThreadStateReady); err != nil {
				c.halt(cc, cur.TID(), err)
				return reaped, ran
			}
			c.hw.SaveContext(cur.Context())
			cc.current = nil
			cc.queue.OnQuantumExpired(c.entryFor(cur, now))
		}
	}
	return reaped, ran
}

// dispatch selects and installs the next thread on an idle CPU. Caller
// holds cc.mu. Kill-flagged threads found in the queue are evicted and
// returned for reaping; a queue entry with no backing record halts the
// CPU, that is a table/queue inconsistency we cannot schedule around.
func (c *Core) dispatch(cc *cpuCore, now uint64) []model.TID {
	var reaped []model.TID
	for {
		e, missed := cc.queue.SelectNext(now)
		if e == nil {
			return reaped
		}
		th, err := c.threads.Get(e.tid)
		if err != nil {
			c.halt(cc, e.tid, err)
			return reaped
		}
		if th.Killed() {
			reaped = append(reaped, e.tid)
			continue
		}
		if missed {
			th.MarkDeadlineMissed()
			c.deadlinesMissed.Add(1)
			c.logger.Warn("deadline missed", "tid", e.tid, "deadline", e.deadline, "tick", now)
		}
		if err := th.SetState(model.ThreadStateRunning); err != nil {
			c.halt(cc, e.tid, err)
			return reaped
		}
		th.SetLevel(e.level)
		th.SetCPU(cc.id)
		th.GrantQuantum(cc.queue.Quantum(e))
		c.hw.RestoreContext(th.Context())
		cc.current = th
		cc.switches++
		c.contextSwitches.Add(1)
		return reaped
	}
}

// halt takes the CPU out of service after an internal inconsistency.
// Scheduling on this CPU stops; the rest of the machine keeps running.
func (c *Core) halt(cc *cpuCore, tid model.TID, err error) {
	cc.state = model.CPUStateHalted
	cc.current = nil
	c.logger.Error("cpu halted on scheduler inconsistency",
		"cpu", int(cc.id), "tid", tid, "error", err)
}

// Block moves a thread out of the running or ready set. A running
// thread's context is saved and its CPU dispatches a successor at the
// next tick; a ready thread is simply removed from its queue.
func (c *Core) Block(tid model.TID, now uint64) error {
	th, err := c.threads.Get(tid)
	if err != nil {
		return err
	}
	switch th.State() {
	case model.ThreadStateRunning:
		cc, err := c.cpu(th.CPU())
		if err != nil {
			return err
		}
		cc.mu.Lock()
		if cc.current != th {
			cc.mu.Unlock()
			return &model.KernelError{Code: model.ErrInternal, Message: "thread " + tid.String() + " claims CPU it is not running on"}
		}
		if err := th.SetState(model.ThreadStateBlocked); err != nil {
			cc.mu.Unlock()
			return err
		}
		c.hw.SaveContext(th.Context())
		cc.current = nil
		cc.mu.Unlock()
	case model.ThreadStateReady:
		cc, err := c.cpu(th.CPU())
		if err != nil {
			return err
		}
		cc.mu.Lock()
		removed := cc.queue.Remove(tid)
		cc.mu.Unlock()
		if !removed {
			// Ready but queued nowhere we can see: inconsistent.
			return &model.KernelError{Code: model.ErrInternal, Message: "ready thread " + tid.String() + " not found in any queue"}
		}
		if err := th.SetState(model.ThreadStateBlocked); err != nil {
			return err
		}
	default:
		return (&model.InvalidStateError{
			Entity: "Thread",
			ID:     tid.String(),
			From:   th.State().String(),
			To:     model.ThreadStateBlocked.String(),
		}).Kernel()
	}
	c.logger.Debug("thread blocked", "tid", tid)
	return nil
}

// Wake makes a blocked thread ready again. The thread goes back to its
// last CPU when that CPU is online and still permitted by affinity,
// otherwise to the least loaded permitted CPU. If the woken thread is
// more urgent than what the target CPU runs now, a preemption is
// requested and honored at the next tick.
func (c *Core) Wake(tid model.TID, now uint64) error {
	th, err := c.threads.Get(tid)
	if err != nil {
		return err
	}
	if th.State() != model.ThreadStateBlocked {
		return (&model.InvalidStateError{
			Entity: "Thread",
			ID:     tid.String(),
			From:   th.State().String(),
			To:     model.ThreadStateReady.String(),
		}).Kernel()
	}
	th.SetWakeAt(0)

	target, err := c.cpu(th.CPU())
	if err == nil {
		target.mu.Lock()
		if target.state != model.CPUStateOnline || !c.allowedOn(th.Affinity(), target.id) {
			target.mu.Unlock()
			target = nil
		}
	} else {
		target = nil
	}
	if target == nil {
		target = c.leastLoaded(th.Affinity())
		if target == nil {
			return model.ErrInvalidAffinity(th.Affinity())
		}
		target.mu.Lock()
	}
	defer target.mu.Unlock()

	if err := th.SetState(model.ThreadStateReady); err != nil {
		return err
	}
	th.SetCPU(target.id)
	target.queue.Enqueue(c.entryFor(th, now))
	if cur := target.current; cur != nil && th.Priority() < cur.Priority() {
		target.preempt = true
	}
	c.logger.Debug("thread woken", "tid", tid, "cpu", int(target.id))
	return nil
}

// Sleep blocks a thread until the wheel wakes it at now+ticks.
func (c *Core) Sleep(tid model.TID, ticks uint64, now uint64) error {
	if ticks == 0 {
		return &model.KernelError{Code: model.ErrInvalidParam, Message: "sleep duration must be positive"}
	}
	th, err := c.threads.Get(tid)
	if err != nil {
		return err
	}
	if err := c.Block(tid, now); err != nil {
		return err
	}
	wake := now + ticks
	th.SetWakeAt(wake)
	c.wheel.push(tid, wake)
	return nil
}

// Evict removes a thread from scheduling entirely: out of its ready
// queue, or off its CPU if running. Used by synchronous termination of
// non-running threads and as the final step of asynchronous kills.
func (c *Core) Evict(tid model.TID) {
	th, err := c.threads.Get(tid)
	if err != nil {
		return
	}
	c.wheel.remove(tid)
	cc, err := c.cpu(th.CPU())
	if err != nil {
		return
	}
	cc.mu.Lock()
	if cc.current == th {
		cc.current = nil
	} else {
		cc.queue.Remove(tid)
	}
	cc.mu.Unlock()
}

// boostAll applies the periodic MLFQ starvation reset on every CPU and
// resets stored feedback levels so blocked threads also restart at the
// top.
func (c *Core) boostAll() {
	boosted := false
	for _, cc := range c.cpus {
		cc.mu.Lock()
		if b, ok := cc.queue.(booster); ok {
			b.Boost()
			boosted = true
		}
		cc.mu.Unlock()
	}
	if boosted {
		for _, info := range c.threads.List() {
			if th, err := c.threads.Get(info.TID); err == nil {
				th.SetLevel(0)
			}
		}
	}
}

// SetCPUOnline brings an offline CPU back into dispatch and balancing.
// Halted CPUs stay down.
func (c *Core) SetCPUOnline(id model.CPUID) error {
	cc, err := c.cpu(id)
	if err != nil {
		return err
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	switch cc.state {
	case model.CPUStateOnline:
		return nil
	case model.CPUStateHalted:
		return model.ErrCPUDown(id)
	}
	cc.state = model.CPUStateOnline
	c.logger.Info("cpu online", "cpu", int(id))
	return nil
}

// SetCPUOffline drains a CPU and redistributes its ready threads. The
// currently running thread finishes by being requeued elsewhere too.
// The last online CPU cannot be taken down.
func (c *Core) SetCPUOffline(id model.CPUID, now uint64) error {
	cc, err := c.cpu(id)
	if err != nil {
		return err
	}
	online := 0
	for _, other := range c.cpus {
		other.mu.Lock()
		if other.state == model.CPUStateOnline {
			online++
		}
		other.mu.Unlock()
	}
	if online <= 1 {
		return &model.KernelError{Code: model.ErrInvalidState, Message: "cannot offline the last online CPU"}
	}

	cc.mu.Lock()
	if cc.state != model.CPUStateOnline {
		cc.mu.Unlock()
		return model.ErrCPUDown(id)
	}
	cc.state = model.CPUStateOffline
	drained := cc.queue.DrainAll()
	cur := cc.current
	cc.current = nil
	cc.mu.Unlock()

	if cur != nil {
		c.hw.SaveContext(cur.Context())
		if err := cur.SetState(model.ThreadStateReady); err == nil {
			if err := c.Place(cur, now); err != nil {
				c.logger.Error("re-place of running thread failed", "tid", cur.TID(), "error", err)
			}
		}
	}
	for _, e := range drained {
		th, err := c.threads.Get(e.tid)
		if err != nil {
			continue
		}
		target := c.leastLoaded(th.Affinity())
		if target == nil {
			// Affinity pinned the thread to the dead CPU; park it on the
			// first online CPU rather than lose it.
			target = c.leastLoaded(model.AffinityAll)
		}
		if target == nil {
			continue
		}
		th.SetCPU(target.id)
		target.mu.Lock()
		target.queue.Enqueue(e)
		target.mu.Unlock()
	}
	c.logger.Info("cpu offline", "cpu", int(id), "requeued", len(drained))
	return nil
}

// CPUState returns the availability state of one CPU.
func (c *Core) CPUState(id model.CPUID) (model.CPUState, error) {
	cc, err := c.cpu(id)
	if err != nil {
		return "", err
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.state, nil
}

// Current returns the TID running on the CPU, 0 when idle.
func (c *Core) Current(id model.CPUID) model.TID {
	cc, err := c.cpu(id)
	if err != nil {
		return 0
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.current == nil {
		return 0
	}
	return cc.current.TID()
}

// Stats assembles the scheduler-wide statistics snapshot.
func (c *Core) Stats(now uint64) model.SchedStats {
	stats := model.SchedStats{
		Algorithm:        c.alg,
		Tick:             now,
		ContextSwitches:  c.contextSwitches.Load(),
		ThreadsScheduled: c.threadsScheduled.Load(),
		LoadBalances:     c.loadBalances.Load(),
		Migrations:       c.migrations.Load(),
		DeadlinesMissed:  c.deadlinesMissed.Load(),
		Preemptions:      c.preemptions.Load(),
	}
	for _, cc := range c.cpus {
		cc.mu.Lock()
		stat := model.CPUStat{
			CPU:           cc.id,
			State:         cc.state,
			ReadyCount:    cc.queue.Len(),
			LastBalanced:  cc.balanced,
			ContextSwitch: cc.switches,
		}
		if cc.current != nil {
			stat.Current = cc.current.TID()
			stat.Load = stat.ReadyCount + 1
		} else {
			stat.Load = stat.ReadyCount
		}
		cc.mu.Unlock()
		stats.CPUs = append(stats.CPUs, stat)
	}
	return stats
}
