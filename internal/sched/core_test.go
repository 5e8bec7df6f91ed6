package sched

import (
	"testing"

	"github.com/me/gosched/internal/hal"
	"github.com/me/gosched/internal/logging"
	"github.com/me/gosched/internal/table"
	"github.com/me/gosched/pkg/model"
)

func newTestCore(t *testing.T, cfg Config) (*Core, *table.ThreadTable) {
	t.Helper()
	if cfg.CPUCount == 0 {
		cfg.CPUCount = 1
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = model.AlgorithmRoundRobin
	}
	if cfg.DefaultQuantum == 0 {
		cfg.DefaultQuantum = 20
	}
	threads := table.NewThreadTable(64, logging.Nop())
	core, err := NewCore(cfg, threads, hal.NewSimCPU(), logging.Nop())
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	return core, threads
}

func spawnReady(t *testing.T, core *Core, threads *table.ThreadTable, prio model.Priority, aff model.Affinity, deadline, now uint64) *table.Thread {
	t.Helper()
	th, err := threads.Allocate(1, "worker", prio, aff, deadline, hal.StackRegion{Base: 0x10000, Size: 64 << 10})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := core.Place(th, now); err != nil {
		t.Fatalf("Place(%s): %v", th.TID(), err)
	}
	return th
}

func TestNewCoreRejectsUnknownAlgorithm(t *testing.T) {
	threads := table.NewThreadTable(8, logging.Nop())
	_, err := NewCore(Config{Algorithm: "lottery", CPUCount: 1, DefaultQuantum: 20}, threads, hal.NewSimCPU(), logging.Nop())
	if model.CodeOf(err) != model.ErrInvalidParam {
		t.Fatalf("expected INVALID_PARAMETER, got %v", err)
	}
}

func TestRoundRobinFairness(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 1})
	a := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	b := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	cth := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)

	for now := uint64(1); now <= 60; now++ {
		core.Tick(now)
	}

	for _, th := range []*table.Thread{a, b, cth} {
		if got := th.CPUTime(); got != 20 {
			t.Errorf("thread %s cpu time = %d, want 20", th.TID(), got)
		}
	}

	stats := core.Stats(60)
	if stats.ContextSwitches != 3 {
		t.Errorf("context switches = %d, want 3", stats.ContextSwitches)
	}
	if stats.Preemptions != 3 {
		t.Errorf("preemptions = %d, want 3", stats.Preemptions)
	}
	if stats.ThreadsScheduled != 3 {
		t.Errorf("threads scheduled = %d, want 3", stats.ThreadsScheduled)
	}
}

func TestQuantumExpirySavesRegisterFile(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 1})
	a := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	b := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)

	// Run a through its full 20-tick slice; tick 21 dispatches b.
	for now := uint64(1); now <= 21; now++ {
		core.Tick(now)
	}

	if got := a.Context().Generation(); got != 1 {
		t.Errorf("a context saves = %d, want 1", got)
	}
	if got := a.Context().Restores(); got != 1 {
		t.Errorf("a context restores = %d, want 1", got)
	}
	if got := b.Context().Restores(); got != 1 {
		t.Errorf("b context restores = %d, want 1", got)
	}
}

func TestDispatchPrefersUrgentOnWake(t *testing.T) {
	core, threads := newTestCore(t, Config{Algorithm: model.AlgorithmPriority, CPUCount: 1})
	low := spawnReady(t, core, threads, model.PriorityLow, model.AffinityAll, 0, 0)
	sys := spawnReady(t, core, threads, model.PrioritySystem, model.AffinityAll, 0, 0)

	core.Tick(1)
	if got := core.Current(0); got != sys.TID() {
		t.Fatalf("running tid = %s, want the system thread", got)
	}

	// Block the system thread; the low one takes over.
	if err := core.Block(sys.TID(), 1); err != nil {
		t.Fatalf("Block: %v", err)
	}
	core.Tick(2)
	if got := core.Current(0); got != low.TID() {
		t.Fatalf("running tid = %s, want the low thread", got)
	}

	// Waking the system thread preempts it back at the next tick.
	if err := core.Wake(sys.TID(), 2); err != nil {
		t.Fatalf("Wake: %v", err)
	}
	core.Tick(3)
	if got := core.Current(0); got != sys.TID() {
		t.Errorf("running tid = %s after wake, want the system thread", got)
	}
	if low.State() != model.ThreadStateReady {
		t.Errorf("preempted thread state = %s, want READY", low.State())
	}
	if got := low.Context().Generation(); got != 1 {
		t.Errorf("preempted thread context saves = %d, want 1", got)
	}
}

func TestRunningNeverExceedsCPUCount(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 2})
	for i := 0; i < 5; i++ {
		spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	}
	for now := uint64(1); now <= 30; now++ {
		core.Tick(now)
		running := 0
		for _, info := range threads.List() {
			if info.State == model.ThreadStateRunning {
				running++
			}
		}
		if running > 2 {
			t.Fatalf("tick %d: %d threads running on 2 CPUs", now, running)
		}
	}
}

func TestMLFQLevelsDemoteThenBoost(t *testing.T) {
	core, threads := newTestCore(t, Config{
		Algorithm:      model.AlgorithmMLFQ,
		CPUCount:       1,
		DefaultQuantum: 2,
		BoostInterval:  40,
	})
	hog := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)

	for now := uint64(1); now <= 39; now++ {
		core.Tick(now)
	}
	if hog.Level() == 0 {
		t.Fatal("CPU-bound thread never demoted")
	}

	core.Tick(40) // boost interval
	for _, info := range threads.List() {
		if info.Sched.FeedbackLevel != 0 {
			t.Errorf("thread %s level = %d after boost, want 0", info.TID, info.Sched.FeedbackLevel)
		}
	}
}

func TestEDFDispatchAndMiss(t *testing.T) {
	core, threads := newTestCore(t, Config{Algorithm: model.AlgorithmEDF, CPUCount: 1})
	spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 100, 0)
	tight := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 3, 0)

	core.Tick(1)
	if got := core.Current(0); got != tight.TID() {
		t.Fatalf("running tid = %s, want the earliest deadline", got)
	}
	if tight.Info().Sched.DeadlineMissed {
		t.Error("deadline 3 dispatched at tick 1 wrongly counted missed")
	}

	core2, threads2 := newTestCore(t, Config{Algorithm: model.AlgorithmEDF, CPUCount: 1})
	late := spawnReady(t, core2, threads2, model.PriorityNormal, model.AffinityAll, 2, 0)
	core2.Tick(5)
	if got := core2.Current(0); got != late.TID() {
		t.Fatal("missed thread must still be dispatched")
	}
	if !late.Info().Sched.DeadlineMissed {
		t.Error("deadline 2 dispatched at tick 5 not flagged missed")
	}
	if got := core2.Stats(5).DeadlinesMissed; got != 1 {
		t.Errorf("deadlines missed = %d, want 1", got)
	}
}

func TestKilledThreadEvictedAtDispatch(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 1})
	var reaped []model.TID
	core.OnReap = func(tid model.TID) { reaped = append(reaped, tid) }

	victim := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	core.Tick(1)
	if core.Current(0) != victim.TID() {
		t.Fatal("victim not running")
	}

	victim.MarkKilled()
	core.Tick(2)
	if core.Current(0) == victim.TID() {
		t.Fatal("killed thread still running after tick")
	}
	if len(reaped) != 1 || reaped[0] != victim.TID() {
		t.Fatalf("reaped = %v, want [%s]", reaped, victim.TID())
	}
	if got := victim.Context().Generation(); got != 1 {
		t.Errorf("evicted thread context saves = %d, want 1", got)
	}
}

func TestKilledReadyThreadSkippedAtDispatch(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 1})
	var reaped []model.TID
	core.OnReap = func(tid model.TID) { reaped = append(reaped, tid) }

	victim := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	survivor := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)

	victim.MarkKilled()
	core.Tick(1)
	if got := core.Current(0); got != survivor.TID() {
		t.Fatalf("running tid = %s, want the survivor", got)
	}
	if len(reaped) != 1 || reaped[0] != victim.TID() {
		t.Fatalf("reaped = %v, want [%s]", reaped, victim.TID())
	}
}

func TestSleepAndTimerWake(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 1})
	sleeper := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	worker := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)

	core.Tick(1)
	if core.Current(0) != sleeper.TID() {
		t.Fatal("sleeper not running")
	}
	if err := core.Sleep(sleeper.TID(), 5, 1); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if sleeper.State() != model.ThreadStateBlocked {
		t.Fatalf("state = %s during sleep, want BLOCKED", sleeper.State())
	}
	if sleeper.WakeAt() != 6 {
		t.Fatalf("wake tick = %d, want 6", sleeper.WakeAt())
	}

	core.Tick(2)
	if core.Current(0) != worker.TID() {
		t.Fatal("worker not dispatched while sleeper blocked")
	}
	for now := uint64(3); now <= 5; now++ {
		core.Tick(now)
		if sleeper.State() != model.ThreadStateBlocked {
			t.Fatalf("tick %d: sleeper woke early", now)
		}
	}
	core.Tick(6)
	if sleeper.State() != model.ThreadStateReady {
		t.Fatalf("state = %s at wake tick, want READY", sleeper.State())
	}
	if sleeper.WakeAt() != 0 {
		t.Errorf("wake tick not cleared after wake")
	}
}

func TestSleepRejectsZeroDuration(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 1})
	th := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	core.Tick(1)
	if err := core.Sleep(th.TID(), 0, 1); model.CodeOf(err) != model.ErrInvalidParam {
		t.Fatalf("expected INVALID_PARAMETER, got %v", err)
	}
}

func TestRebalanceMigratesAcrossCPUs(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 2, LoadThreshold: 1, EnableAffinity: true})
	pinned := model.Affinity(1) // CPU 0 only
	var ths []*table.Thread
	for i := 0; i < 4; i++ {
		ths = append(ths, spawnReady(t, core, threads, model.PriorityNormal, pinned, 0, 0))
	}
	for _, th := range ths {
		th.SetAffinity(model.AffinityAll)
	}

	core.Rebalance(10)

	stats := core.Stats(10)
	if stats.Migrations != 2 {
		t.Fatalf("migrations = %d, want 2", stats.Migrations)
	}
	if stats.CPUs[0].ReadyCount != 2 || stats.CPUs[1].ReadyCount != 2 {
		t.Errorf("ready counts = %d/%d, want 2/2",
			stats.CPUs[0].ReadyCount, stats.CPUs[1].ReadyCount)
	}
	if stats.CPUs[1].LastBalanced != 10 {
		t.Errorf("last balanced = %d, want 10", stats.CPUs[1].LastBalanced)
	}

	core.Rebalance(20) // balanced already, no further movement
	if got := core.Stats(20).Migrations; got != 2 {
		t.Errorf("migrations = %d after balanced pass, want 2", got)
	}
}

func TestRebalanceHonorsAffinity(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 2, LoadThreshold: 1, EnableAffinity: true})
	pinned := model.Affinity(1)
	for i := 0; i < 4; i++ {
		spawnReady(t, core, threads, model.PriorityNormal, pinned, 0, 0)
	}

	core.Rebalance(10)

	stats := core.Stats(10)
	if stats.Migrations != 0 {
		t.Fatalf("migrations = %d for fully pinned threads, want 0", stats.Migrations)
	}
	if stats.CPUs[0].ReadyCount != 4 {
		t.Errorf("pinned CPU ready count = %d, want 4", stats.CPUs[0].ReadyCount)
	}
}

func TestRebalanceBelowThresholdIsNoop(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 2, LoadThreshold: 2, EnableAffinity: true})
	pinned := model.Affinity(1)
	spawnReady(t, core, threads, model.PriorityNormal, pinned, 0, 0)
	spawnReady(t, core, threads, model.PriorityNormal, pinned, 0, 0)

	core.Rebalance(10)
	if got := core.Stats(10).Migrations; got != 0 {
		t.Fatalf("migrations = %d with imbalance at threshold, want 0", got)
	}
}

func TestRebalanceClampsZeroThreshold(t *testing.T) {
	// A zero threshold must behave like 1: a single odd thread is not
	// bounced between CPUs forever.
	core, threads := newTestCore(t, Config{CPUCount: 2, LoadThreshold: 0, EnableAffinity: true})
	for i := 0; i < 3; i++ {
		spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	}

	core.Rebalance(5)
	if got := core.Stats(5).Migrations; got != 0 {
		t.Fatalf("migrations = %d with load difference of one, want 0", got)
	}
}

func TestCPUOfflineDrainsAndOnlineRestores(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 2})
	for i := 0; i < 4; i++ {
		spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	}
	core.Tick(1)

	if err := core.SetCPUOffline(1, 1); err != nil {
		t.Fatalf("SetCPUOffline: %v", err)
	}
	if st, _ := core.CPUState(1); st != model.CPUStateOffline {
		t.Fatalf("cpu 1 state = %s, want OFFLINE", st)
	}
	for _, info := range threads.List() {
		if info.State != model.ThreadStateRunning && info.CPU != 0 {
			t.Errorf("thread %s still placed on cpu %d after drain", info.TID, info.CPU)
		}
	}

	if err := core.SetCPUOffline(0, 1); model.CodeOf(err) != model.ErrInvalidState {
		t.Fatalf("offlining the last CPU: expected INVALID_STATE, got %v", err)
	}

	if err := core.SetCPUOnline(1); err != nil {
		t.Fatalf("SetCPUOnline: %v", err)
	}
	if st, _ := core.CPUState(1); st != model.CPUStateOnline {
		t.Fatalf("cpu 1 state = %s after online, want ONLINE", st)
	}
}

func TestDanglingQueueEntryHaltsCPU(t *testing.T) {
	core, _ := newTestCore(t, Config{CPUCount: 2})
	core.cpus[0].mu.Lock()
	core.cpus[0].queue.Enqueue(&entry{tid: 9999})
	core.cpus[0].mu.Unlock()

	core.Tick(1)

	if st, _ := core.CPUState(0); st != model.CPUStateHalted {
		t.Fatalf("cpu 0 state = %s, want HALTED", st)
	}
	// A halted CPU stays down.
	if err := core.SetCPUOnline(0); model.CodeOf(err) != model.ErrCPUUnavailable {
		t.Fatalf("expected CPU_UNAVAILABLE bringing halted CPU online, got %v", err)
	}
	// The other CPU keeps scheduling.
	if st, _ := core.CPUState(1); st != model.CPUStateOnline {
		t.Fatalf("cpu 1 state = %s, want ONLINE", st)
	}
}

func TestEvictCancelsPendingWake(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 1})
	th := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	core.Tick(1)
	if err := core.Sleep(th.TID(), 10, 1); err != nil {
		t.Fatalf("Sleep: %v", err)
	}

	core.Evict(th.TID())
	if core.wheel.len() != 0 {
		t.Fatal("evicted thread left a pending timer")
	}
	core.Tick(11)
	if th.State() == model.ThreadStateReady {
		t.Error("evicted thread woke from canceled timer")
	}
}

func TestBlockReadyThread(t *testing.T) {
	core, threads := newTestCore(t, Config{CPUCount: 1})
	a := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	b := spawnReady(t, core, threads, model.PriorityNormal, model.AffinityAll, 0, 0)
	core.Tick(1) // a runs, b ready

	if err := core.Block(b.TID(), 1); err != nil {
		t.Fatalf("Block(ready): %v", err)
	}
	if b.State() != model.ThreadStateBlocked {
		t.Fatalf("state = %s, want BLOCKED", b.State())
	}
	// Blocking an already blocked thread is invalid.
	if err := core.Block(b.TID(), 1); model.CodeOf(err) != model.ErrInvalidState {
		t.Fatalf("expected INVALID_STATE, got %v", err)
	}
	_ = a
}
