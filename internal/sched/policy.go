// Package sched implements the per-CPU scheduler cores: ready queues,
// the dispatch path, the four scheduling policies, the load balancer,
// and the sleep timer wheel.
package sched

import (
	"fmt"

	"github.com/me/gosched/pkg/model"
)

// entry is one ready thread as a policy queue sees it. Entries are
// rebuilt from the thread record on every enqueue; queues never hold
// record pointers.
type entry struct {
	tid      model.TID
	prio     model.Priority
	level    int    // MLFQ feedback level / effective priority level
	deadline uint64 // absolute tick, 0 = none
	seq      uint64 // global arrival sequence, preserves FIFO among equals
	arrived  uint64 // tick of enqueue, drives aging
	promoted uint64 // tick of last aging promotion, 0 = never
}

// readyQueue is the policy capability set. One instance exists per CPU
// and is guarded by that CPU's scheduler lock; implementations hold no
// locks of their own and do bounded work per call.
type readyQueue interface {
	// Enqueue adds a thread at its policy-appropriate position.
	Enqueue(e *entry)

	// SelectNext removes and returns the most eligible thread, or nil
	// when the queue is empty. missed is true when the selected
	// thread's deadline already passed (EDF only).
	SelectNext(now uint64) (e *entry, missed bool)

	// OnQuantumExpired re-admits a thread whose slice ran out,
	// applying any policy penalty (MLFQ demotion).
	OnQuantumExpired(e *entry)

	// Quantum sizes the time slice granted to e at dispatch.
	Quantum(e *entry) uint64

	// Remove deletes the thread wherever it sits. Returns false if absent.
	Remove(tid model.TID) bool

	// Len is the ready count, which doubles as the CPU load metric.
	Len() int

	// PickMigratable removes and returns the thread this policy would
	// rather give away (least urgent first) for which allowed returns
	// true, or nil when none is eligible.
	PickMigratable(allowed func(*entry) bool) *entry

	// DrainAll empties the queue in selection order (CPU offlining).
	DrainAll() []*entry
}

// booster is implemented by policies with a periodic starvation reset.
type booster interface {
	Boost()
}

// queueParams carries the config knobs the policies need.
type queueParams struct {
	defaultQuantum uint64
	agingThreshold uint64
}

// newReadyQueue builds the per-CPU queue for the selected algorithm.
func newReadyQueue(alg model.Algorithm, params queueParams) (readyQueue, error) {
	switch alg {
	case model.AlgorithmRoundRobin:
		return newRRQueue(), nil
	case model.AlgorithmPriority:
		return newPrioQueue(params.agingThreshold), nil
	case model.AlgorithmMLFQ:
		return newMLFQQueue(params.defaultQuantum), nil
	case model.AlgorithmEDF:
		return newEDFQueue(params.defaultQuantum), nil
	default:
		return nil, fmt.Errorf("unknown scheduling algorithm %q", alg)
	}
}

// levelFor clamps a priority to a queue level index.
func levelFor(p model.Priority) int {
	if p < model.PrioritySystem {
		return int(model.PrioritySystem)
	}
	if p > model.PriorityIdle {
		return int(model.PriorityIdle)
	}
	return int(p)
}
