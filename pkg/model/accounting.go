package model

import "time"

// ExitRecord is the accounting row written when a process is reaped.
type ExitRecord struct {
	PID          PID       `json:"pid"`
	Name         string    `json:"name"`
	Priority     Priority  `json:"priority"`
	ExitStatus   int       `json:"exit_status"`
	CPUTime      uint64    `json:"cpu_time"`
	ThreadCount  int       `json:"thread_count"`
	CreatedAt    time.Time `json:"created_at"`
	TerminatedAt time.Time `json:"terminated_at"`
}

// StatSample is a periodic snapshot of scheduler-wide counters,
// persisted so load history survives restarts.
type StatSample struct {
	Tick             uint64    `json:"tick"`
	ContextSwitches  uint64    `json:"context_switches"`
	ThreadsScheduled uint64    `json:"threads_scheduled"`
	LoadBalances     uint64    `json:"load_balances"`
	DeadlinesMissed  uint64    `json:"deadlines_missed"`
	RecordedAt       time.Time `json:"recorded_at"`
}
