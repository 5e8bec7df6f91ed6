package model

import "fmt"

// Priority is a scheduling priority class. Lower values are more
// urgent: System preempts everything, Idle runs only when nothing
// else is runnable. Thread priority defaults to the owning process's
// class but is tracked independently.
type Priority int

const (
	PrioritySystem Priority = 0
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
	PriorityIdle   Priority = 4
)

// PriorityLevels is the number of distinct priority classes. The
// priority and MLFQ policies keep one ready queue per level.
const PriorityLevels = 5

var priorityNames = map[Priority]string{
	PrioritySystem: "system",
	PriorityHigh:   "high",
	PriorityNormal: "normal",
	PriorityLow:    "low",
	PriorityIdle:   "idle",
}

// String returns the lowercase name of the priority class.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is within the defined range.
func (p Priority) Valid() bool {
	return p >= PrioritySystem && p <= PriorityIdle
}

// ParsePriority converts a priority name to a Priority.
func ParsePriority(s string) (Priority, error) {
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// quantaByPriority sizes the round-robin time slice per class, in
// scheduling ticks.
var quantaByPriority = map[Priority]uint64{
	PrioritySystem: 40,
	PriorityHigh:   30,
	PriorityNormal: 20,
	PriorityLow:    10,
	PriorityIdle:   5,
}

// QuantumFor returns the round-robin time slice for a priority class.
// Unknown priorities get the Normal slice.
func QuantumFor(p Priority) uint64 {
	if q, ok := quantaByPriority[p]; ok {
		return q
	}
	return quantaByPriority[PriorityNormal]
}
