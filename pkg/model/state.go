package model

// ProcessState represents the lifecycle state of a Process.
type ProcessState string

const (
	ProcessStateRunning    ProcessState = "RUNNING"
	ProcessStateWaiting    ProcessState = "WAITING"
	ProcessStateStopped    ProcessState = "STOPPED"
	ProcessStateTerminated ProcessState = "TERMINATED"
)

// String returns the string representation of the process state.
func (s ProcessState) String() string {
	return string(s)
}

// IsTerminal returns true if the process is in a final state.
func (s ProcessState) IsTerminal() bool {
	return s == ProcessStateTerminated
}

// ValidProcessTransitions defines the allowed state transitions for Processes.
var ValidProcessTransitions = map[ProcessState][]ProcessState{
	ProcessStateRunning: {ProcessStateWaiting, ProcessStateStopped, ProcessStateTerminated},
	ProcessStateWaiting: {ProcessStateRunning, ProcessStateStopped, ProcessStateTerminated},
	ProcessStateStopped: {ProcessStateRunning, ProcessStateTerminated},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ProcessState) CanTransitionTo(next ProcessState) bool {
	for _, allowed := range ValidProcessTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ThreadState represents the lifecycle state of a Thread.
type ThreadState string

const (
	ThreadStateReady      ThreadState = "READY"
	ThreadStateRunning    ThreadState = "RUNNING"
	ThreadStateBlocked    ThreadState = "BLOCKED"
	ThreadStateTerminated ThreadState = "TERMINATED"
)

// String returns the string representation of the thread state.
func (s ThreadState) String() string {
	return string(s)
}

// IsTerminal returns true if the thread is in a final state.
func (s ThreadState) IsTerminal() bool {
	return s == ThreadStateTerminated
}

// ValidThreadTransitions defines the allowed state transitions for Threads.
// Terminating a Running thread goes through the asynchronous kill path:
// it stays Running until its CPU's next dispatch evicts it.
var ValidThreadTransitions = map[ThreadState][]ThreadState{
	ThreadStateReady:   {ThreadStateRunning, ThreadStateBlocked, ThreadStateTerminated},
	ThreadStateRunning: {ThreadStateReady, ThreadStateBlocked, ThreadStateTerminated},
	ThreadStateBlocked: {ThreadStateReady, ThreadStateTerminated},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s ThreadState) CanTransitionTo(next ThreadState) bool {
	for _, allowed := range ValidThreadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CPUState represents the availability of a logical CPU.
type CPUState string

const (
	// CPUStateOnline means the CPU participates in dispatch and balancing.
	CPUStateOnline CPUState = "ONLINE"
	// CPUStateOffline means the CPU was drained and is skipped entirely.
	CPUStateOffline CPUState = "OFFLINE"
	// CPUStateHalted means the scheduler detected internal inconsistency
	// on this CPU and stopped it rather than risk corrupting shared state.
	CPUStateHalted CPUState = "HALTED"
)

// String returns the string representation of the CPU state.
func (s CPUState) String() string {
	return string(s)
}

// Algorithm selects the scheduling policy for the whole deployment.
type Algorithm string

const (
	AlgorithmRoundRobin Algorithm = "round-robin"
	AlgorithmPriority   Algorithm = "priority"
	AlgorithmMLFQ       Algorithm = "mlfq"
	AlgorithmEDF        Algorithm = "edf"
)

// String returns the string representation of the algorithm.
func (a Algorithm) String() string {
	return string(a)
}

// ValidAlgorithms lists every selectable scheduling policy.
var ValidAlgorithms = []Algorithm{
	AlgorithmRoundRobin,
	AlgorithmPriority,
	AlgorithmMLFQ,
	AlgorithmEDF,
}

// IsValid reports whether a is a known algorithm.
func (a Algorithm) IsValid() bool {
	for _, v := range ValidAlgorithms {
		if a == v {
			return true
		}
	}
	return false
}
