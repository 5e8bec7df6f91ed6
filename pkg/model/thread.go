package model

import "time"

// SchedParams is the scheduling-parameter view of one thread.
type SchedParams struct {
	Quantum        uint64   `json:"quantum"`         // time slice granted at last dispatch
	QuantumLeft    uint64   `json:"quantum_left"`    // ticks remaining in the current slice
	Affinity       Affinity `json:"affinity"`        // permitted CPUs
	Deadline       uint64   `json:"deadline"`        // absolute tick, 0 = none (EDF)
	FeedbackLevel  int      `json:"feedback_level"`  // MLFQ queue level, 0 = top
	DeadlineMissed bool     `json:"deadline_missed"` // set when scheduled past Deadline
}

// ThreadInfo is a read-only snapshot of one thread record.
type ThreadInfo struct {
	TID       TID         `json:"tid"`
	PID       PID         `json:"pid"`
	Name      string      `json:"name"`
	State     ThreadState `json:"state"`
	Priority  Priority    `json:"priority"`
	CPU       CPUID       `json:"cpu"` // current placement
	StackSize int64       `json:"stack_size"`
	Sched     SchedParams `json:"sched"`
	CPUTime   uint64      `json:"cpu_time"`
	CreatedAt time.Time   `json:"created_at"`
}

// CreateThreadRequest carries the parameters for create_thread.
type CreateThreadRequest struct {
	PID       PID       `json:"pid"`
	Entry     string    `json:"entry,omitempty"` // symbolic entry point
	StackSize int64     `json:"stack_size,omitempty"`
	Priority  *Priority `json:"priority,omitempty"` // nil = inherit process class
	Affinity  Affinity  `json:"affinity,omitempty"` // 0 = all CPUs
	Deadline  uint64    `json:"deadline,omitempty"` // absolute tick for EDF
}
