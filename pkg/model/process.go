package model

import "time"

// MemStats holds the per-process memory-usage counters, in bytes.
// Total is kept equal to Code+Data+Shared+Stack.
type MemStats struct {
	Total  int64 `json:"total"`
	Shared int64 `json:"shared"`
	Code   int64 `json:"code"`
	Data   int64 `json:"data"`
	Stack  int64 `json:"stack"`
}

// MemImage sizes the static segments of a new process. Stack usage is
// accounted separately as threads come and go.
type MemImage struct {
	Code   int64 `json:"code,omitempty"`
	Data   int64 `json:"data,omitempty"`
	Shared int64 `json:"shared,omitempty"`
}

// ProcessInfo is a read-only snapshot of one process record.
type ProcessInfo struct {
	PID        PID          `json:"pid"`
	Parent     PID          `json:"parent"`
	Name       string       `json:"name"`
	Priority   Priority     `json:"priority"`
	State      ProcessState `json:"state"`
	Threads    []TID        `json:"threads"`
	MainThread TID          `json:"main_thread"`
	CreatedAt  time.Time    `json:"created_at"`
	CPUTime    uint64       `json:"cpu_time"`
	Memory     MemStats     `json:"memory"`
	ExitStatus *int         `json:"exit_status,omitempty"`
}

// CreateProcessRequest carries the parameters for create_process.
type CreateProcessRequest struct {
	Name      string   `json:"name"`
	Priority  Priority `json:"priority"`
	Parent    PID      `json:"parent,omitempty"`
	Entry     string   `json:"entry,omitempty"`      // symbolic entry point of the main thread
	StackSize int64    `json:"stack_size,omitempty"` // main thread stack, 0 = default
	Affinity  Affinity `json:"affinity,omitempty"`   // main thread affinity, 0 = all CPUs
	Image     MemImage `json:"image,omitempty"`
}
