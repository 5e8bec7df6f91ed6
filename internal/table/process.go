// Package table owns the process and thread records. Records are held
// in arena-style maps keyed by stable integer identifiers; nothing
// outside this package holds a record pointer across operations, so
// entries can be shared across CPUs without dangling references. All
// record mutation happens under that record's own short-hold lock.
package table

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/me/gosched/pkg/model"
)

// RootPID is the adopter of orphaned processes.
const RootPID model.PID = 0

// Process is one process record (PCB). Mutated only through its
// methods, each of which holds the record lock for the duration.
type Process struct {
	mu sync.Mutex

	pid      model.PID
	parent   model.PID
	name     string
	priority model.Priority
	state    model.ProcessState

	threads      []model.TID // creation order
	main         model.TID
	totalThreads int
	children     []model.PID

	createdAt  time.Time
	cpuTime    uint64
	mem        model.MemStats
	exitStatus *int
}

// PID returns the process identifier. Immutable after creation.
func (p *Process) PID() model.PID { return p.pid }

// Info returns a read-only snapshot. Never blocks beyond the record lock.
func (p *Process) Info() model.ProcessInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	threads := make([]model.TID, len(p.threads))
	copy(threads, p.threads)
	return model.ProcessInfo{
		PID:        p.pid,
		Parent:     p.parent,
		Name:       p.name,
		Priority:   p.priority,
		State:      p.state,
		Threads:    threads,
		MainThread: p.main,
		CreatedAt:  p.createdAt,
		CPUTime:    p.cpuTime,
		Memory:     p.mem,
		ExitStatus: p.exitStatus,
	}
}

// State returns the current lifecycle state.
func (p *Process) State() model.ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState transitions the process, validating against the lifecycle map.
func (p *Process) SetState(next model.ProcessState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == next {
		return nil
	}
	if !p.state.CanTransitionTo(next) {
		return (&model.InvalidStateError{
			Entity: "Process",
			ID:     p.pid.String(),
			From:   p.state.String(),
			To:     next.String(),
		}).Kernel()
	}
	p.state = next
	return nil
}

// Priority returns the process priority class.
func (p *Process) Priority() model.Priority {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.priority
}

// SetPriority updates the priority class.
func (p *Process) SetPriority(prio model.Priority) error {
	if !prio.Valid() {
		return model.ErrInvalidPriority(prio)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priority = prio
	return nil
}

// AttachThread appends a thread to the owned set; the first thread
// attached becomes the main thread.
func (p *Process) AttachThread(tid model.TID, stackSize int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads = append(p.threads, tid)
	p.totalThreads++
	if p.main == 0 {
		p.main = tid
	}
	p.mem.Stack += stackSize
	p.mem.Total = p.mem.Code + p.mem.Data + p.mem.Shared + p.mem.Stack
}

// DetachThread removes a reaped thread from the owned set and returns
// how many threads remain.
func (p *Process) DetachThread(tid model.TID, stackSize int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range p.threads {
		if t == tid {
			p.threads = append(p.threads[:i], p.threads[i+1:]...)
			break
		}
	}
	p.mem.Stack -= stackSize
	if p.mem.Stack < 0 {
		p.mem.Stack = 0
	}
	p.mem.Total = p.mem.Code + p.mem.Data + p.mem.Shared + p.mem.Stack
	return len(p.threads)
}

// Threads returns the owned thread identifiers in creation order.
func (p *Process) Threads() []model.TID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.TID, len(p.threads))
	copy(out, p.threads)
	return out
}

// ThreadCount returns the number of live owned threads.
func (p *Process) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

// TotalThreads returns how many threads the process has ever owned.
func (p *Process) TotalThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalThreads
}

// Parent returns the parent PID.
func (p *Process) Parent() model.PID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

// SetParent reparents the process (orphan adoption).
func (p *Process) SetParent(pid model.PID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parent = pid
}

// AddChild records a child process.
func (p *Process) AddChild(pid model.PID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children = append(p.children, pid)
}

// RemoveChild forgets a reaped or reparented child.
func (p *Process) RemoveChild(pid model.PID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.children {
		if c == pid {
			p.children = append(p.children[:i], p.children[i+1:]...)
			return
		}
	}
}

// Children returns the child PIDs.
func (p *Process) Children() []model.PID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.PID, len(p.children))
	copy(out, p.children)
	return out
}

// AddCPUTime accumulates one scheduling tick of CPU time.
func (p *Process) AddCPUTime(ticks uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cpuTime += ticks
}

// SetExitStatus records the exit status at termination.
func (p *Process) SetExitStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exitStatus = &status
}

// ProcessTable owns the set of process records.
type ProcessTable struct {
	mu      sync.RWMutex
	procs   map[model.PID]*Process
	nextPID model.PID
	limit   int
	logger  *slog.Logger
}

// NewProcessTable creates a table with the given cap and installs the
// root record at PID 0. The root adopts orphans and represents the
// kernel itself; it carries no threads and does not count against the
// cap, so the zero-threads-means-terminated rule does not apply to it.
func NewProcessTable(limit int, logger *slog.Logger) *ProcessTable {
	t := &ProcessTable{
		procs:   make(map[model.PID]*Process),
		nextPID: 1,
		limit:   limit,
		logger:  logger.With("component", "process-table"),
	}
	t.procs[RootPID] = &Process{
		pid:       RootPID,
		parent:    RootPID,
		name:      "kernel",
		priority:  model.PrioritySystem,
		state:     model.ProcessStateRunning,
		createdAt: time.Now().UTC(),
	}
	return t
}

// Allocate creates a new process record in Running state. The caller
// (the control surface) creates the main thread afterwards.
func (t *ProcessTable) Allocate(req model.CreateProcessRequest) (*Process, error) {
	if !req.Priority.Valid() {
		return nil, model.ErrInvalidPriority(req.Priority)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.procs)-1 >= t.limit { // root is not counted
		return nil, model.ErrProcessLimit(t.limit)
	}

	parent := req.Parent
	parentRec, ok := t.procs[parent]
	if !ok {
		return nil, model.ErrProcessNotFound(parent)
	}

	p := &Process{
		pid:       t.nextPID,
		parent:    parent,
		name:      req.Name,
		priority:  req.Priority,
		state:     model.ProcessStateRunning,
		createdAt: time.Now().UTC(),
		mem: model.MemStats{
			Code:   req.Image.Code,
			Data:   req.Image.Data,
			Shared: req.Image.Shared,
		},
	}
	p.mem.Total = p.mem.Code + p.mem.Data + p.mem.Shared
	t.nextPID++
	t.procs[p.pid] = p
	parentRec.AddChild(p.pid)

	t.logger.Debug("process allocated", "pid", p.pid, "name", p.name, "parent", parent)
	return p, nil
}

// Get looks up a process record.
func (t *ProcessTable) Get(pid model.PID) (*Process, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.procs[pid]
	if !ok {
		return nil, model.ErrProcessNotFound(pid)
	}
	return p, nil
}

// Remove reaps a terminated process record. Lookups fail afterwards.
func (t *ProcessTable) Remove(pid model.PID) error {
	if pid == RootPID {
		return model.ErrDenied(RootPID, RootPID)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.procs[pid]
	if !ok {
		return model.ErrProcessNotFound(pid)
	}
	if !p.State().IsTerminal() {
		return (&model.InvalidStateError{
			Entity: "Process",
			ID:     pid.String(),
			From:   p.State().String(),
			To:     "reaped",
		}).Kernel()
	}
	delete(t.procs, pid)
	t.logger.Debug("process reaped", "pid", pid)
	return nil
}

// List returns snapshots of every live process, root included, ordered
// by PID.
func (t *ProcessTable) List() []model.ProcessInfo {
	t.mu.RLock()
	procs := make([]*Process, 0, len(t.procs))
	for _, p := range t.procs {
		procs = append(procs, p)
	}
	t.mu.RUnlock()

	out := make([]model.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		out = append(out, p.Info())
	}
	// Insertion into the map is unordered; sort by PID for stable output.
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Count returns the number of live processes, excluding the root.
func (t *ProcessTable) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.procs) - 1
}

// IsAncestor reports whether ancestor appears on target's parent chain.
// Used by the access checks on cross-process operations.
func (t *ProcessTable) IsAncestor(ancestor, target model.PID) bool {
	if ancestor == RootPID {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	seen := 0
	for cur := target; cur != RootPID && seen < len(t.procs)+1; seen++ {
		p, ok := t.procs[cur]
		if !ok {
			return false
		}
		parent := p.Parent()
		if parent == ancestor {
			return true
		}
		cur = parent
	}
	return false
}
