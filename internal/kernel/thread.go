package kernel

import (
	"github.com/me/gosched/pkg/model"
)

// CreateThread allocates a thread in an existing process, allocates
// its stack, and hands it to the scheduler for placement on the least
// loaded permitted CPU.
func (k *Kernel) CreateThread(req model.CreateThreadRequest) (model.ThreadInfo, error) {
	proc, err := k.procs.Get(req.PID)
	if err != nil {
		return model.ThreadInfo{}, err
	}
	if proc.State().IsTerminal() {
		return model.ThreadInfo{}, (&model.InvalidStateError{
			Entity: "Process",
			ID:     req.PID.String(),
			From:   proc.State().String(),
			To:     "spawning",
		}).Kernel()
	}

	priority := proc.Priority()
	if req.Priority != nil {
		priority = *req.Priority
		if !priority.Valid() {
			return model.ThreadInfo{}, model.ErrInvalidPriority(priority)
		}
	}
	stackSize, err := k.stackSize(req.StackSize)
	if err != nil {
		return model.ThreadInfo{}, err
	}
	affinity, err := k.affinityMask(req.Affinity)
	if err != nil {
		return model.ThreadInfo{}, err
	}

	stack, err := k.mem.AllocateStack(stackSize)
	if err != nil {
		k.logger.Warn("stack allocation failed", "pid", req.PID, "size", stackSize, "error", err)
		return model.ThreadInfo{}, model.ErrStackExhausted(stackSize)
	}
	entry := req.Entry
	if entry == "" {
		entry = "thread"
	}
	th, err := k.threads.Allocate(req.PID, entry, priority, affinity, req.Deadline, stack)
	if err != nil {
		k.mem.FreeStack(stack)
		return model.ThreadInfo{}, err
	}
	proc.AttachThread(th.TID(), stack.Size)

	if err := k.core.Place(th, k.clock.Now()); err != nil {
		proc.DetachThread(th.TID(), stack.Size)
		th.SetState(model.ThreadStateTerminated)
		k.threads.Remove(th.TID())
		k.mem.FreeStack(stack)
		return model.ThreadInfo{}, err
	}

	k.logger.Info("thread created", "tid", th.TID(), "pid", req.PID, "priority", priority)
	return th.Info(), nil
}

// TerminateThread ends one thread. A Running thread is flagged and
// evicted at the next dispatch on its CPU (asynchronous); any other
// live thread is reaped before this returns. If the thread was the
// last one in its process, the process terminates with status 0.
func (k *Kernel) TerminateThread(tid model.TID) error {
	th, err := k.threads.Get(tid)
	if err != nil {
		return err
	}
	switch th.State() {
	case model.ThreadStateTerminated:
		return (&model.InvalidStateError{
			Entity: "Thread",
			ID:     tid.String(),
			From:   th.State().String(),
			To:     model.ThreadStateTerminated.String(),
		}).Kernel()
	case model.ThreadStateRunning:
		if !th.MarkKilled() {
			return (&model.InvalidStateError{
				Entity: "Thread",
				ID:     tid.String(),
				From:   "killed",
				To:     "killed",
			}).Kernel()
		}
		k.logger.Info("thread kill flagged", "tid", tid)
		return nil
	default:
		k.finishThread(tid)
		return nil
	}
}

// BlockThread parks a Ready or Running thread until woken.
func (k *Kernel) BlockThread(tid model.TID) error {
	return k.core.Block(tid, k.clock.Now())
}

// WakeThread readmits a Blocked thread; it may preempt a less urgent
// thread on its target CPU at the next tick.
func (k *Kernel) WakeThread(tid model.TID) error {
	return k.core.Wake(tid, k.clock.Now())
}

// SleepThread blocks a thread for a fixed number of ticks; the timer
// wheel wakes it.
func (k *Kernel) SleepThread(tid model.TID, ticks uint64) error {
	return k.core.Sleep(tid, ticks, k.clock.Now())
}

// SetThreadAffinity replaces the CPU mask. If the thread now sits on a
// forbidden CPU it migrates on the balancer's next pass, not here.
func (k *Kernel) SetThreadAffinity(tid model.TID, mask model.Affinity) error {
	affinity, err := k.affinityMask(mask)
	if err != nil {
		return err
	}
	th, err := k.threads.Get(tid)
	if err != nil {
		return err
	}
	th.SetAffinity(affinity)
	k.logger.Info("affinity changed", "tid", tid, "mask", uint64(affinity))
	return nil
}

// ThreadStats returns a read-only snapshot of one thread.
func (k *Kernel) ThreadStats(tid model.TID) (model.ThreadInfo, error) {
	th, err := k.threads.Get(tid)
	if err != nil {
		return model.ThreadInfo{}, err
	}
	return th.Info(), nil
}

// ListThreads returns snapshots of every live thread ordered by TID.
func (k *Kernel) ListThreads() []model.ThreadInfo {
	return k.threads.List()
}

// reapKilled runs after the scheduler evicts a kill-flagged thread.
func (k *Kernel) reapKilled(tid model.TID) {
	k.finishThread(tid)
}

// finishThread reaps one thread: off the scheduler, stack freed, CPU
// time rolled into the process, record removed. Reaping the last
// thread of a process finalizes the process too. Idempotent under
// reapMu so the async kill path and direct termination cannot race.
func (k *Kernel) finishThread(tid model.TID) {
	k.reapMu.Lock()
	defer k.reapMu.Unlock()

	th, err := k.threads.Get(tid)
	if err != nil {
		return // already reaped
	}
	k.core.Evict(tid)
	if err := th.SetState(model.ThreadStateTerminated); err != nil {
		k.logger.Error("thread teardown state error", "tid", tid, "error", err)
		return
	}
	if err := k.mem.FreeStack(th.Stack()); err != nil {
		k.logger.Error("stack free failed", "tid", tid, "error", err)
	}
	if err := k.threads.Remove(tid); err != nil {
		k.logger.Error("thread reap failed", "tid", tid, "error", err)
		return
	}

	proc, err := k.procs.Get(th.PID())
	if err != nil {
		return
	}
	remaining := proc.DetachThread(tid, th.Stack().Size)
	k.logger.Debug("thread reaped", "tid", tid, "pid", th.PID(), "remaining", remaining)
	if remaining == 0 {
		if !proc.State().IsTerminal() {
			proc.SetExitStatus(0)
			if err := proc.SetState(model.ProcessStateTerminated); err != nil {
				k.logger.Error("process auto-terminate failed", "pid", th.PID(), "error", err)
				return
			}
		}
		k.finalizeProcess(proc)
	}
}
