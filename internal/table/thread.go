package table

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/me/gosched/internal/hal"
	"github.com/me/gosched/pkg/model"
)

// Thread is one thread record (TCB). The context handle is owned
// exclusively by this record and is never handed out.
type Thread struct {
	mu sync.Mutex

	tid   model.TID
	pid   model.PID
	entry string

	state    model.ThreadState
	priority model.Priority

	ctx   *hal.Context
	stack hal.StackRegion

	quantum     uint64 // slice granted at last dispatch
	quantumLeft uint64
	affinity    model.Affinity
	deadline    uint64 // absolute tick, 0 = none
	level       int    // MLFQ feedback level
	missed      bool   // scheduled past deadline

	cpu       model.CPUID
	cpuTime   uint64
	createdAt time.Time

	killed bool   // asynchronous terminate pending
	wakeAt uint64 // sleep expiry tick, 0 = not sleeping
}

// TID returns the thread identifier. Immutable after creation.
func (t *Thread) TID() model.TID { return t.tid }

// PID returns the owning process. Immutable after creation.
func (t *Thread) PID() model.PID { return t.pid }

// Info returns a read-only snapshot.
func (t *Thread) Info() model.ThreadInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.ThreadInfo{
		TID:       t.tid,
		PID:       t.pid,
		Name:      t.entry,
		State:     t.state,
		Priority:  t.priority,
		CPU:       t.cpu,
		StackSize: t.stack.Size,
		CPUTime:   t.cpuTime,
		CreatedAt: t.createdAt,
		Sched: model.SchedParams{
			Quantum:        t.quantum,
			QuantumLeft:    t.quantumLeft,
			Affinity:       t.affinity,
			Deadline:       t.deadline,
			FeedbackLevel:  t.level,
			DeadlineMissed: t.missed,
		},
	}
}

// State returns the lifecycle state.
func (t *Thread) State() model.ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState transitions the thread, validating against the lifecycle map.
func (t *Thread) SetState(next model.ThreadState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == next {
		return nil
	}
	if !t.state.CanTransitionTo(next) {
		return (&model.InvalidStateError{
			Entity: "Thread",
			ID:     t.tid.String(),
			From:   t.state.String(),
			To:     next.String(),
		}).Kernel()
	}
	t.state = next
	return nil
}

// Priority returns the thread priority.
func (t *Thread) Priority() model.Priority {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// SetPriority updates the thread priority. Takes effect at the next
// enqueue; a running thread finishes its current slice first.
func (t *Thread) SetPriority(p model.Priority) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.priority = p
}

// Affinity returns the CPU mask.
func (t *Thread) Affinity() model.Affinity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.affinity
}

// SetAffinity updates the CPU mask. Migration off a now-forbidden CPU
// is deferred to the load balancer's next pass.
func (t *Thread) SetAffinity(mask model.Affinity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.affinity = mask
}

// CPU returns the current placement.
func (t *Thread) CPU() model.CPUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cpu
}

// SetCPU records a new placement (initial or migration).
func (t *Thread) SetCPU(cpu model.CPUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cpu = cpu
}

// Deadline returns the absolute EDF deadline, 0 if none.
func (t *Thread) Deadline() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// Level returns the MLFQ feedback level.
func (t *Thread) Level() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// SetLevel stores the MLFQ feedback level (demotion or boost).
func (t *Thread) SetLevel(level int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.level = level
}

// GrantQuantum installs a fresh time slice at dispatch.
func (t *Thread) GrantQuantum(q uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quantum = q
	t.quantumLeft = q
}

// ConsumeTick burns one tick of the current slice and accumulates CPU
// time. Returns true when the slice is exhausted.
func (t *Thread) ConsumeTick() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cpuTime++
	if t.quantumLeft > 0 {
		t.quantumLeft--
	}
	return t.quantumLeft == 0
}

// QuantumLeft returns the ticks remaining in the current slice.
func (t *Thread) QuantumLeft() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quantumLeft
}

// MarkKilled flags the thread for asynchronous termination. The next
// dispatch on its CPU evicts it. Returns false if already flagged.
func (t *Thread) MarkKilled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.killed {
		return false
	}
	t.killed = true
	return true
}

// Killed reports whether asynchronous termination is pending.
func (t *Thread) Killed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killed
}

// MarkDeadlineMissed records that the thread was selected past its
// deadline.
func (t *Thread) MarkDeadlineMissed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.missed = true
}

// SetWakeAt records the sleep expiry tick (0 clears it).
func (t *Thread) SetWakeAt(tick uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wakeAt = tick
}

// WakeAt returns the sleep expiry tick, 0 if not sleeping.
func (t *Thread) WakeAt() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wakeAt
}

// Context exposes the opaque context handle to the dispatch path only.
// The scheduler passes it straight to the HAL; nothing else reads it.
func (t *Thread) Context() *hal.Context {
	return t.ctx
}

// Stack returns the stack region descriptor.
func (t *Thread) Stack() hal.StackRegion {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stack
}

// CPUTime returns the accumulated CPU time in ticks.
func (t *Thread) CPUTime() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cpuTime
}

// ThreadTable owns the set of thread records.
type ThreadTable struct {
	mu      sync.RWMutex
	threads map[model.TID]*Thread
	nextTID model.TID
	limit   int
	logger  *slog.Logger
}

// NewThreadTable creates a table with the given cap.
func NewThreadTable(limit int, logger *slog.Logger) *ThreadTable {
	return &ThreadTable{
		threads: make(map[model.TID]*Thread),
		nextTID: 1,
		limit:   limit,
		logger:  logger.With("component", "thread-table"),
	}
}

// Allocate creates a thread record in Ready state with a fresh context
// handle. Placement on a CPU is the scheduler's job and happens after.
func (t *ThreadTable) Allocate(pid model.PID, entry string, priority model.Priority, affinity model.Affinity, deadline uint64, stack hal.StackRegion) (*Thread, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.threads) >= t.limit {
		return nil, model.ErrThreadLimit(t.limit)
	}
	th := &Thread{
		tid:       t.nextTID,
		pid:       pid,
		entry:     entry,
		state:     model.ThreadStateReady,
		priority:  priority,
		ctx:       &hal.Context{},
		stack:     stack,
		affinity:  affinity,
		deadline:  deadline,
		cpu:       -1,
		createdAt: time.Now().UTC(),
	}
	t.nextTID++
	t.threads[th.tid] = th
	t.logger.Debug("thread allocated", "tid", th.tid, "pid", pid, "priority", priority)
	return th, nil
}

// Get looks up a thread record.
func (t *ThreadTable) Get(tid model.TID) (*Thread, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	th, ok := t.threads[tid]
	if !ok {
		return nil, model.ErrThreadNotFound(tid)
	}
	return th, nil
}

// Remove reaps a terminated thread record.
func (t *ThreadTable) Remove(tid model.TID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	th, ok := t.threads[tid]
	if !ok {
		return model.ErrThreadNotFound(tid)
	}
	if !th.State().IsTerminal() {
		return (&model.InvalidStateError{
			Entity: "Thread",
			ID:     tid.String(),
			From:   th.State().String(),
			To:     "reaped",
		}).Kernel()
	}
	delete(t.threads, tid)
	t.logger.Debug("thread reaped", "tid", tid)
	return nil
}

// List returns snapshots of every live thread ordered by TID.
func (t *ThreadTable) List() []model.ThreadInfo {
	t.mu.RLock()
	threads := make([]*Thread, 0, len(t.threads))
	for _, th := range t.threads {
		threads = append(threads, th)
	}
	t.mu.RUnlock()

	out := make([]model.ThreadInfo, 0, len(threads))
	for _, th := range threads {
		out = append(out, th.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TID < out[j].TID })
	return out
}

// Count returns the number of live threads.
func (t *ThreadTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.threads)
}
