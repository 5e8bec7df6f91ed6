package model

// CPUStat is the introspection view of one per-CPU scheduler instance.
type CPUStat struct {
	CPU           CPUID    `json:"cpu"`
	State         CPUState `json:"state"`
	Current       TID      `json:"current"` // 0 when idle
	ReadyCount    int      `json:"ready_count"`
	Load          int      `json:"load"`
	LastBalanced  uint64   `json:"last_balanced"` // tick of last rebalance touching this CPU
	ContextSwitch uint64   `json:"context_switches"`
}

// SchedStats is the scheduler-wide statistics snapshot.
type SchedStats struct {
	Algorithm        Algorithm `json:"algorithm"`
	Tick             uint64    `json:"tick"`
	ContextSwitches  uint64    `json:"context_switches"`
	ThreadsScheduled uint64    `json:"threads_scheduled"`
	LoadBalances     uint64    `json:"load_balances"`
	Migrations       uint64    `json:"migrations"`
	DeadlinesMissed  uint64    `json:"deadlines_missed"`
	Preemptions      uint64    `json:"preemptions"`
	CPUs             []CPUStat `json:"cpus"`
}
