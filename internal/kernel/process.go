package kernel

import (
	"context"
	"time"

	"github.com/me/gosched/internal/table"
	"github.com/me/gosched/pkg/model"
)

// CreateProcess allocates a process record and its main thread, places
// the thread, and returns a snapshot. A zero Parent attaches the
// process under the root.
func (k *Kernel) CreateProcess(req model.CreateProcessRequest) (model.ProcessInfo, error) {
	stackSize, err := k.stackSize(req.StackSize)
	if err != nil {
		return model.ProcessInfo{}, err
	}
	affinity, err := k.affinityMask(req.Affinity)
	if err != nil {
		return model.ProcessInfo{}, err
	}

	proc, err := k.procs.Allocate(req)
	if err != nil {
		return model.ProcessInfo{}, err
	}

	stack, err := k.mem.AllocateStack(stackSize)
	if err != nil {
		k.rollbackProcess(proc)
		k.logger.Warn("stack allocation failed", "pid", proc.PID(), "size", stackSize, "error", err)
		return model.ProcessInfo{}, model.ErrStackExhausted(stackSize)
	}
	entry := req.Entry
	if entry == "" {
		entry = "main"
	}
	th, err := k.threads.Allocate(proc.PID(), entry, req.Priority, affinity, 0, stack)
	if err != nil {
		k.mem.FreeStack(stack)
		k.rollbackProcess(proc)
		return model.ProcessInfo{}, err
	}
	proc.AttachThread(th.TID(), stack.Size)

	if err := k.core.Place(th, k.clock.Now()); err != nil {
		proc.DetachThread(th.TID(), stack.Size)
		th.SetState(model.ThreadStateTerminated)
		k.threads.Remove(th.TID())
		k.mem.FreeStack(stack)
		k.rollbackProcess(proc)
		return model.ProcessInfo{}, err
	}

	k.logger.Info("process created",
		"pid", proc.PID(), "name", req.Name, "main", th.TID(), "priority", req.Priority)
	return proc.Info(), nil
}

// rollbackProcess undoes a half-built process allocation.
func (k *Kernel) rollbackProcess(proc *table.Process) {
	if parent, err := k.procs.Get(proc.Parent()); err == nil {
		parent.RemoveChild(proc.PID())
	}
	proc.SetState(model.ProcessStateTerminated)
	if err := k.procs.Remove(proc.PID()); err != nil {
		k.logger.Error("rollback failed", "pid", proc.PID(), "error", err)
	}
}

// TerminateProcess tears a process down: every owned thread is
// terminated and reaped, children are reparented to the root process,
// the exit record is persisted, and the record is removed so further
// lookups fail. Callers may terminate themselves, their descendants,
// or anything when calling as the root process.
func (k *Kernel) TerminateProcess(caller, pid model.PID, exitStatus int) error {
	if pid == table.RootPID {
		return model.ErrDenied(caller, pid)
	}
	if caller != pid && caller != table.RootPID && !k.procs.IsAncestor(caller, pid) {
		return model.ErrDenied(caller, pid)
	}
	proc, err := k.procs.Get(pid)
	if err != nil {
		return err
	}
	if proc.State().IsTerminal() {
		return (&model.InvalidStateError{
			Entity: "Process",
			ID:     pid.String(),
			From:   proc.State().String(),
			To:     model.ProcessStateTerminated.String(),
		}).Kernel()
	}

	// Orphans go to the root process.
	root, err := k.procs.Get(table.RootPID)
	if err != nil {
		return err
	}
	for _, child := range proc.Children() {
		c, err := k.procs.Get(child)
		if err != nil {
			continue
		}
		proc.RemoveChild(child)
		c.SetParent(table.RootPID)
		root.AddChild(child)
	}

	proc.SetExitStatus(exitStatus)
	if err := proc.SetState(model.ProcessStateTerminated); err != nil {
		return err
	}
	for _, tid := range proc.Threads() {
		k.finishThread(tid)
	}

	k.logger.Info("process terminated", "pid", pid, "exit_status", exitStatus, "caller", caller)
	return nil
}

// SetProcessPriority changes the process priority class. Threads pick
// the new class up at their next enqueue.
func (k *Kernel) SetProcessPriority(pid model.PID, priority model.Priority) error {
	proc, err := k.procs.Get(pid)
	if err != nil {
		return err
	}
	if err := proc.SetPriority(priority); err != nil {
		return err
	}
	for _, tid := range proc.Threads() {
		if th, err := k.threads.Get(tid); err == nil {
			th.SetPriority(priority)
		}
	}
	k.logger.Info("priority changed", "pid", pid, "priority", priority)
	return nil
}

// ProcessStats returns a read-only snapshot of one process.
func (k *Kernel) ProcessStats(pid model.PID) (model.ProcessInfo, error) {
	proc, err := k.procs.Get(pid)
	if err != nil {
		return model.ProcessInfo{}, err
	}
	return proc.Info(), nil
}

// ListProcesses returns snapshots of every live process ordered by PID.
func (k *Kernel) ListProcesses() []model.ProcessInfo {
	return k.procs.List()
}

// finalizeProcess runs when the last thread of a terminated process is
// reaped: the exit record is written and the record removed from the
// table.
func (k *Kernel) finalizeProcess(proc *table.Process) {
	info := proc.Info()
	if k.store != nil {
		status := 0
		if info.ExitStatus != nil {
			status = *info.ExitStatus
		}
		rec := &model.ExitRecord{
			PID:          info.PID,
			Name:         info.Name,
			Priority:     info.Priority,
			ExitStatus:   status,
			CPUTime:      info.CPUTime,
			ThreadCount:  proc.TotalThreads(),
			CreatedAt:    info.CreatedAt,
			TerminatedAt: time.Now().UTC(),
		}
		if err := k.store.RecordExit(context.Background(), rec); err != nil {
			k.logger.Warn("exit record write failed", "pid", info.PID, "error", err)
		}
	}
	if parent, err := k.procs.Get(info.Parent); err == nil {
		parent.RemoveChild(info.PID)
	}
	if err := k.procs.Remove(info.PID); err != nil {
		k.logger.Error("process reap failed", "pid", info.PID, "error", err)
	}
}
