// Package scenario runs deterministic workload scripts against a kernel
// instance. Scripts are JavaScript (goja) and drive the same control
// surface the REST API exposes: create processes and threads, advance
// the clock, block and wake, and assert on scheduler state. Because the
// clock only moves when a script says so, a scenario always replays the
// same schedule.
package scenario

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dop251/goja"
	"github.com/me/gosched/internal/kernel"
	"github.com/me/gosched/internal/table"
	"github.com/me/gosched/pkg/model"
)

// Runner executes scenario scripts against one kernel.
type Runner struct {
	kernel *kernel.Kernel
	logger *slog.Logger
}

// NewRunner creates a Runner. The kernel is shared across scripts run
// on the same Runner, so state carries over between Run calls.
func NewRunner(k *kernel.Kernel, logger *slog.Logger) *Runner {
	return &Runner{
		kernel: k,
		logger: logger.With("component", "scenario"),
	}
}

// RunFile reads and runs one script file.
func (r *Runner) RunFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario: %w", err)
	}
	if err := r.Run(string(src)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Run executes one script. A thrown JS exception, a failed assert, or
// a kernel error surfaced by any sched.* call aborts the script and is
// returned as an error.
func (r *Runner) Run(src string) error {
	vm, err := r.setupVM()
	if err != nil {
		return err
	}
	if _, err := vm.RunString(src); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	return nil
}

// setupVM creates a JavaScript VM with the sched API object installed.
// Go functions returning an error throw in JS when the error is non-nil,
// so scripts fail loudly on kernel errors unless they catch.
func (r *Runner) setupVM() (*goja.Runtime, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	api := map[string]any{
		"spawn":      r.spawn,
		"thread":     r.thread,
		"kill":       r.kill,
		"killThread": r.kernel.TerminateThread,
		"nice":       r.nice,
		"block":      r.kernel.BlockThread,
		"wake":       r.kernel.WakeThread,
		"sleep":      r.kernel.SleepThread,
		"affinity":   r.affinity,
		"tick":       r.tick,
		"now":        r.kernel.Now,
		"stats":      r.kernel.SchedulerStats,
		"ps":         r.kernel.ListProcesses,
		"threads":    r.kernel.ListThreads,
		"process":    r.kernel.ProcessStats,
		"cpuOnline":  r.kernel.SetCPUOnline,
		"cpuOffline": r.kernel.SetCPUOffline,
	}
	if err := vm.Set("sched", api); err != nil {
		return nil, fmt.Errorf("set sched: %w", err)
	}
	if err := vm.Set("log", r.log); err != nil {
		return nil, fmt.Errorf("set log: %w", err)
	}
	if err := vm.Set("assert", assert); err != nil {
		return nil, fmt.Errorf("set assert: %w", err)
	}
	return vm, nil
}

// spawnOpts is the options bag scripts pass to sched.spawn.
type spawnOpts struct {
	Priority string `json:"priority"`
	Parent   uint32 `json:"parent"`
	Entry    string `json:"entry"`
	Stack    int64  `json:"stack"`
	Affinity uint64 `json:"affinity"`
}

func (r *Runner) spawn(name string, opts goja.Value) (model.ProcessInfo, error) {
	var o spawnOpts
	if err := exportOpts(opts, &o); err != nil {
		return model.ProcessInfo{}, err
	}
	prio := model.PriorityNormal
	if o.Priority != "" {
		p, err := model.ParsePriority(o.Priority)
		if err != nil {
			return model.ProcessInfo{}, err
		}
		prio = p
	}
	return r.kernel.CreateProcess(model.CreateProcessRequest{
		Name:      name,
		Priority:  prio,
		Parent:    model.PID(o.Parent),
		Entry:     o.Entry,
		StackSize: o.Stack,
		Affinity:  model.Affinity(o.Affinity),
	})
}

// threadOpts is the options bag scripts pass to sched.thread.
type threadOpts struct {
	Entry    string  `json:"entry"`
	Priority *string `json:"priority"`
	Stack    int64   `json:"stack"`
	Affinity uint64  `json:"affinity"`
	Deadline uint64  `json:"deadline"`
}

func (r *Runner) thread(pid uint32, opts goja.Value) (model.ThreadInfo, error) {
	var o threadOpts
	if err := exportOpts(opts, &o); err != nil {
		return model.ThreadInfo{}, err
	}
	req := model.CreateThreadRequest{
		PID:       model.PID(pid),
		Entry:     o.Entry,
		StackSize: o.Stack,
		Affinity:  model.Affinity(o.Affinity),
		Deadline:  o.Deadline,
	}
	if o.Priority != nil {
		p, err := model.ParsePriority(*o.Priority)
		if err != nil {
			return model.ThreadInfo{}, err
		}
		req.Priority = &p
	}
	return r.kernel.CreateThread(req)
}

func (r *Runner) kill(pid uint32, exitStatus int) error {
	return r.kernel.TerminateProcess(table.RootPID, model.PID(pid), exitStatus)
}

func (r *Runner) nice(pid uint32, priority string) error {
	p, err := model.ParsePriority(priority)
	if err != nil {
		return err
	}
	return r.kernel.SetProcessPriority(model.PID(pid), p)
}

func (r *Runner) affinity(tid uint32, mask uint64) error {
	return r.kernel.SetThreadAffinity(model.TID(tid), model.Affinity(mask))
}

func (r *Runner) tick(n uint64) uint64 {
	if n == 0 {
		n = 1
	}
	r.kernel.Clock().Advance(n)
	return r.kernel.Now()
}

func (r *Runner) log(args ...goja.Value) {
	parts := make([]any, 0, len(args)*2)
	for i, a := range args {
		parts = append(parts, fmt.Sprintf("arg%d", i), a.Export())
	}
	r.logger.Info("scenario", parts...)
}

func assert(cond bool, msg string) error {
	if !cond {
		return fmt.Errorf("assertion failed: %s", msg)
	}
	return nil
}

// exportOpts decodes a JS options object into a Go struct through its
// JSON form so field names match the API wire names. Undefined and null
// leave the defaults.
func exportOpts(v goja.Value, out any) error {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	raw, err := json.Marshal(v.Export())
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}
