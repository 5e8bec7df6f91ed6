package kernel

import (
	"context"
	"testing"

	"github.com/me/gosched/internal/config"
	"github.com/me/gosched/internal/logging"
	"github.com/me/gosched/internal/store"
	"github.com/me/gosched/pkg/model"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.CPUCount = 1
	return &cfg
}

func newTestKernel(t *testing.T, cfg *config.Config) *Kernel {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	k, err := New(cfg, nil, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return k
}

func mustCreateProcess(t *testing.T, k *Kernel, name string, prio model.Priority) model.ProcessInfo {
	t.Helper()
	info, err := k.CreateProcess(model.CreateProcessRequest{Name: name, Priority: prio})
	if err != nil {
		t.Fatalf("CreateProcess(%s): %v", name, err)
	}
	return info
}

func TestProcessLifecycle(t *testing.T) {
	k := newTestKernel(t, nil)
	info := mustCreateProcess(t, k, "init-child", model.PriorityNormal)

	if info.PID == 0 {
		t.Fatal("allocated pid 0")
	}
	if info.MainThread == 0 {
		t.Fatal("no main thread created")
	}
	if info.State != model.ProcessStateRunning {
		t.Errorf("state = %s, want RUNNING", info.State)
	}

	got, err := k.ProcessStats(info.PID)
	if err != nil {
		t.Fatalf("ProcessStats before terminate: %v", err)
	}
	if got.Name != "init-child" {
		t.Errorf("name = %q", got.Name)
	}

	if err := k.TerminateProcess(0, info.PID, 3); err != nil {
		t.Fatalf("TerminateProcess: %v", err)
	}
	if _, err := k.ProcessStats(info.PID); model.CodeOf(err) != model.ErrNotFound {
		t.Fatalf("lookup after terminate: %v, want NOT_FOUND", err)
	}
	if _, err := k.ThreadStats(info.MainThread); model.CodeOf(err) != model.ErrNotFound {
		t.Fatalf("main thread after terminate: %v, want NOT_FOUND", err)
	}
}

func TestTerminateProcessPermissions(t *testing.T) {
	k := newTestKernel(t, nil)
	parent := mustCreateProcess(t, k, "parent", model.PriorityNormal)
	child, err := k.CreateProcess(model.CreateProcessRequest{
		Name: "child", Priority: model.PriorityNormal, Parent: parent.PID,
	})
	if err != nil {
		t.Fatalf("CreateProcess child: %v", err)
	}
	stranger := mustCreateProcess(t, k, "stranger", model.PriorityNormal)

	tests := []struct {
		name   string
		caller model.PID
		target model.PID
		code   model.ErrorCode
	}{
		{"stranger denied", stranger.PID, child.PID, model.ErrAccessDenied},
		{"nobody kills root", parent.PID, 0, model.ErrAccessDenied},
		{"ancestor allowed", parent.PID, child.PID, ""},
		{"self allowed", stranger.PID, stranger.PID, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := k.TerminateProcess(tt.caller, tt.target, 0)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("TerminateProcess: %v", err)
				}
				return
			}
			if model.CodeOf(err) != tt.code {
				t.Fatalf("TerminateProcess = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestOrphansReparentToRoot(t *testing.T) {
	k := newTestKernel(t, nil)
	parent := mustCreateProcess(t, k, "parent", model.PriorityNormal)
	child, err := k.CreateProcess(model.CreateProcessRequest{
		Name: "child", Priority: model.PriorityNormal, Parent: parent.PID,
	})
	if err != nil {
		t.Fatalf("CreateProcess child: %v", err)
	}

	if err := k.TerminateProcess(0, parent.PID, 0); err != nil {
		t.Fatalf("TerminateProcess parent: %v", err)
	}

	got, err := k.ProcessStats(child.PID)
	if err != nil {
		t.Fatalf("orphan vanished: %v", err)
	}
	if got.Parent != 0 {
		t.Errorf("orphan parent = %d, want 0", got.Parent)
	}
}

func TestRoundRobinExampleScenario(t *testing.T) {
	// Three Normal threads under round-robin with quantum 20: after the
	// third slice ends every thread has run for exactly 20 ticks.
	k := newTestKernel(t, nil)
	proc := mustCreateProcess(t, k, "worker", model.PriorityNormal)
	tids := []model.TID{proc.MainThread}
	for i := 0; i < 2; i++ {
		ti, err := k.CreateThread(model.CreateThreadRequest{PID: proc.PID})
		if err != nil {
			t.Fatalf("CreateThread: %v", err)
		}
		tids = append(tids, ti.TID)
	}

	k.Clock().Advance(60)

	for i, tid := range tids {
		ti, err := k.ThreadStats(tid)
		if err != nil {
			t.Fatalf("ThreadStats(%s): %v", tid, err)
		}
		if ti.CPUTime != 20 {
			t.Errorf("thread %d cpu time = %d, want 20", i, ti.CPUTime)
		}
	}

	pi, err := k.ProcessStats(proc.PID)
	if err != nil {
		t.Fatal(err)
	}
	if pi.CPUTime != 60 {
		t.Errorf("process cpu time = %d, want 60", pi.CPUTime)
	}
	stats := k.SchedulerStats()
	if stats.ContextSwitches != 3 {
		t.Errorf("context switches = %d, want 3", stats.ContextSwitches)
	}
}

func TestTerminateRunningThreadIsAsync(t *testing.T) {
	k := newTestKernel(t, nil)
	proc := mustCreateProcess(t, k, "victim", model.PriorityNormal)
	extra, err := k.CreateThread(model.CreateThreadRequest{PID: proc.PID})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	k.Clock().Advance(1) // main thread dispatched

	if err := k.TerminateThread(proc.MainThread); err != nil {
		t.Fatalf("TerminateThread: %v", err)
	}
	// Still present until the next dispatch on its CPU.
	ti, err := k.ThreadStats(proc.MainThread)
	if err != nil {
		t.Fatalf("killed thread gone synchronously: %v", err)
	}
	if ti.State != model.ThreadStateRunning {
		t.Errorf("state = %s immediately after kill, want RUNNING", ti.State)
	}

	k.Clock().Advance(1)
	if _, err := k.ThreadStats(proc.MainThread); model.CodeOf(err) != model.ErrNotFound {
		t.Fatalf("killed thread after tick: %v, want NOT_FOUND", err)
	}
	// The process lives on through its second thread.
	if _, err := k.ProcessStats(proc.PID); err != nil {
		t.Fatalf("process gone with a live thread: %v", err)
	}
	_ = extra
}

func TestLastThreadExitTerminatesProcess(t *testing.T) {
	k := newTestKernel(t, nil)
	proc := mustCreateProcess(t, k, "oneshot", model.PriorityNormal)

	if err := k.TerminateThread(proc.MainThread); err != nil {
		// Not yet dispatched, so it is Ready and reaped synchronously.
		t.Fatalf("TerminateThread: %v", err)
	}
	if _, err := k.ProcessStats(proc.PID); model.CodeOf(err) != model.ErrNotFound {
		t.Fatalf("process lookup = %v, want NOT_FOUND after last thread exit", err)
	}
}

func TestTerminateThreadTwice(t *testing.T) {
	k := newTestKernel(t, nil)
	proc := mustCreateProcess(t, k, "p", model.PriorityNormal)
	extra, err := k.CreateThread(model.CreateThreadRequest{PID: proc.PID})
	if err != nil {
		t.Fatal(err)
	}
	if err := k.TerminateThread(extra.TID); err != nil {
		t.Fatalf("first TerminateThread: %v", err)
	}
	if err := k.TerminateThread(extra.TID); model.CodeOf(err) != model.ErrNotFound {
		t.Fatalf("second TerminateThread = %v, want NOT_FOUND", err)
	}
}

func TestSetProcessPriorityPropagates(t *testing.T) {
	k := newTestKernel(t, nil)
	proc := mustCreateProcess(t, k, "p", model.PriorityLow)

	if err := k.SetProcessPriority(proc.PID, model.Priority(9)); model.CodeOf(err) != model.ErrInvalidParam {
		t.Fatalf("bad priority = %v, want INVALID_PARAMETER", err)
	}
	if err := k.SetProcessPriority(proc.PID, model.PriorityHigh); err != nil {
		t.Fatalf("SetProcessPriority: %v", err)
	}
	ti, err := k.ThreadStats(proc.MainThread)
	if err != nil {
		t.Fatal(err)
	}
	if ti.Priority != model.PriorityHigh {
		t.Errorf("thread priority = %s, want HIGH", ti.Priority)
	}
}

func TestCreateProcessValidation(t *testing.T) {
	k := newTestKernel(t, nil)
	tests := []struct {
		name string
		req  model.CreateProcessRequest
		code model.ErrorCode
	}{
		{"priority out of range", model.CreateProcessRequest{Name: "x", Priority: model.Priority(7)}, model.ErrInvalidParam},
		{"stack too small", model.CreateProcessRequest{Name: "x", Priority: model.PriorityNormal, StackSize: 16}, model.ErrInvalidParam},
		{"stack too large", model.CreateProcessRequest{Name: "x", Priority: model.PriorityNormal, StackSize: 1 << 40}, model.ErrInvalidParam},
		{"affinity permits nothing", model.CreateProcessRequest{Name: "x", Priority: model.PriorityNormal, Affinity: model.Affinity(1 << 40)}, model.ErrInvalidParam},
		{"unknown parent", model.CreateProcessRequest{Name: "x", Priority: model.PriorityNormal, Parent: 999}, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := k.CreateProcess(tt.req); model.CodeOf(err) != tt.code {
				t.Fatalf("CreateProcess = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestProcessCapEnforced(t *testing.T) {
	cfg := testConfig()
	cfg.MaxProcesses = 2
	k := newTestKernel(t, cfg)

	mustCreateProcess(t, k, "a", model.PriorityNormal)
	mustCreateProcess(t, k, "b", model.PriorityNormal)
	if _, err := k.CreateProcess(model.CreateProcessRequest{Name: "c", Priority: model.PriorityNormal}); model.CodeOf(err) != model.ErrLimitExceeded {
		t.Fatalf("third CreateProcess = %v, want LIMIT_EXCEEDED", err)
	}
}

func TestStackBudgetExhaustion(t *testing.T) {
	cfg := testConfig()
	cfg.StackBudget = cfg.StackDefault // room for exactly one stack
	k := newTestKernel(t, cfg)

	mustCreateProcess(t, k, "a", model.PriorityNormal)
	if _, err := k.CreateProcess(model.CreateProcessRequest{Name: "b", Priority: model.PriorityNormal}); model.CodeOf(err) != model.ErrOutOfMemory {
		t.Fatalf("CreateProcess = %v, want OUT_OF_MEMORY", err)
	}
	// The failed allocation must not leave a half-built record behind.
	if got := len(k.ListProcesses()); got != 2 { // root + a
		t.Errorf("process count = %d, want 2", got)
	}
}

func TestSleepAndWakeThroughClock(t *testing.T) {
	k := newTestKernel(t, nil)
	proc := mustCreateProcess(t, k, "sleeper", model.PriorityNormal)
	k.Clock().Advance(1)

	if err := k.SleepThread(proc.MainThread, 5); err != nil {
		t.Fatalf("SleepThread: %v", err)
	}
	ti, _ := k.ThreadStats(proc.MainThread)
	if ti.State != model.ThreadStateBlocked {
		t.Fatalf("state = %s during sleep, want BLOCKED", ti.State)
	}

	k.Clock().Advance(5)
	ti, _ = k.ThreadStats(proc.MainThread)
	if ti.State != model.ThreadStateRunning && ti.State != model.ThreadStateReady {
		t.Fatalf("state = %s after sleep expiry, want runnable", ti.State)
	}
}

func TestBlockAndWake(t *testing.T) {
	k := newTestKernel(t, nil)
	proc := mustCreateProcess(t, k, "p", model.PriorityNormal)
	k.Clock().Advance(1)

	if err := k.BlockThread(proc.MainThread); err != nil {
		t.Fatalf("BlockThread: %v", err)
	}
	if err := k.WakeThread(proc.MainThread); err != nil {
		t.Fatalf("WakeThread: %v", err)
	}
	ti, _ := k.ThreadStats(proc.MainThread)
	if ti.State != model.ThreadStateReady {
		t.Errorf("state = %s after wake, want READY", ti.State)
	}
	// Waking a thread that is not blocked is an error.
	if err := k.WakeThread(proc.MainThread); model.CodeOf(err) != model.ErrInvalidState {
		t.Errorf("double wake = %v, want INVALID_STATE", err)
	}
}

func TestSetThreadAffinity(t *testing.T) {
	cfg := testConfig()
	cfg.CPUCount = 2
	k := newTestKernel(t, cfg)
	proc := mustCreateProcess(t, k, "p", model.PriorityNormal)

	if err := k.SetThreadAffinity(proc.MainThread, model.Affinity(1<<40)); model.CodeOf(err) != model.ErrInvalidParam {
		t.Fatalf("bad mask = %v, want INVALID_PARAMETER", err)
	}
	if err := k.SetThreadAffinity(proc.MainThread, model.Affinity(0b10)); err != nil {
		t.Fatalf("SetThreadAffinity: %v", err)
	}
	ti, _ := k.ThreadStats(proc.MainThread)
	if ti.Sched.Affinity != model.Affinity(0b10) {
		t.Errorf("affinity = %#x, want 0x2", uint64(ti.Sched.Affinity))
	}
}

func TestAccountingPersistsExitAndSamples(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:", logging.Nop())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	cfg := testConfig()
	k, err := New(cfg, st, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	proc := mustCreateProcess(t, k, "batch", model.PriorityHigh)
	k.Clock().Advance(10)
	if err := k.TerminateProcess(0, proc.PID, 42); err != nil {
		t.Fatalf("TerminateProcess: %v", err)
	}

	recs, total, err := k.ExitHistory(context.Background(), model.ListOptions{})
	if err != nil {
		t.Fatalf("ExitHistory: %v", err)
	}
	if total != 1 || len(recs) != 1 {
		t.Fatalf("exit history %d/%d, want 1/1", total, len(recs))
	}
	if recs[0].PID != proc.PID || recs[0].ExitStatus != 42 || recs[0].Name != "batch" {
		t.Errorf("exit record = %+v", recs[0])
	}
	if recs[0].CPUTime != 10 {
		t.Errorf("exit cpu time = %d, want 10", recs[0].CPUTime)
	}

	k.Clock().Advance(100)
	samples, _, err := k.StatHistory(context.Background(), model.ListOptions{})
	if err != nil {
		t.Fatalf("StatHistory: %v", err)
	}
	if len(samples) == 0 {
		t.Fatal("no counter samples persisted after 100 ticks")
	}
}

func TestCPUHotplugSurface(t *testing.T) {
	cfg := testConfig()
	cfg.CPUCount = 2
	k := newTestKernel(t, cfg)
	mustCreateProcess(t, k, "p", model.PriorityNormal)
	k.Clock().Advance(1)

	if err := k.SetCPUOffline(1); err != nil {
		t.Fatalf("SetCPUOffline: %v", err)
	}
	if st, _ := k.CPUState(1); st != model.CPUStateOffline {
		t.Fatalf("cpu 1 = %s, want OFFLINE", st)
	}
	if err := k.SetCPUOffline(0); model.CodeOf(err) != model.ErrInvalidState {
		t.Fatalf("offlining last CPU = %v, want INVALID_STATE", err)
	}
	if err := k.SetCPUOnline(1); err != nil {
		t.Fatalf("SetCPUOnline: %v", err)
	}
	if _, err := k.CPUState(7); model.CodeOf(err) != model.ErrCPUUnavailable {
		t.Fatalf("bogus cpu = %v, want CPU_UNAVAILABLE", err)
	}
}
