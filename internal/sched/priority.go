package sched

import "github.com/me/gosched/pkg/model"

// prioQueue is the strict-priority policy: one FIFO per class, scanned
// most-urgent first. Aging promotes a waiting thread's effective level
// by one after agingThreshold ticks, bounding starvation; the original
// priority is restored whenever the thread is re-admitted.
type prioQueue struct {
	levels         [model.PriorityLevels][]*entry
	agingThreshold uint64
}

// prioQuanta sizes slices under the priority policy. Flatter than the
// round-robin table so high classes cannot monopolize a CPU as long.
var prioQuanta = map[model.Priority]uint64{
	model.PrioritySystem: 30,
	model.PriorityHigh:   25,
	model.PriorityNormal: 20,
	model.PriorityLow:    15,
	model.PriorityIdle:   10,
}

func newPrioQueue(agingThreshold uint64) *prioQueue {
	return &prioQueue{agingThreshold: agingThreshold}
}

func (q *prioQueue) Enqueue(e *entry) {
	e.level = levelFor(e.prio)
	e.promoted = 0
	q.levels[e.level] = append(q.levels[e.level], e)
}

// age moves entries that waited past the threshold up one level. Each
// full threshold waited earns one more promotion, so nothing starves
// below an active higher class forever.
func (q *prioQueue) age(now uint64) {
	if q.agingThreshold == 0 {
		return
	}
	for lvl := 1; lvl < model.PriorityLevels; lvl++ {
		kept := q.levels[lvl][:0]
		for _, e := range q.levels[lvl] {
			basis := e.arrived
			if e.promoted != 0 {
				basis = e.promoted
			}
			if now-basis > q.agingThreshold {
				e.level = lvl - 1
				e.promoted = now
				q.levels[lvl-1] = append(q.levels[lvl-1], e)
			} else {
				kept = append(kept, e)
			}
		}
		q.levels[lvl] = kept
	}
}

func (q *prioQueue) SelectNext(now uint64) (*entry, bool) {
	q.age(now)
	for lvl := 0; lvl < model.PriorityLevels; lvl++ {
		if len(q.levels[lvl]) > 0 {
			e := q.levels[lvl][0]
			q.levels[lvl] = q.levels[lvl][1:]
			return e, false
		}
	}
	return nil, false
}

func (q *prioQueue) OnQuantumExpired(e *entry) {
	q.Enqueue(e)
}

func (q *prioQueue) Quantum(e *entry) uint64 {
	if quantum, ok := prioQuanta[e.prio]; ok {
		return quantum
	}
	return prioQuanta[model.PriorityNormal]
}

func (q *prioQueue) Remove(tid model.TID) bool {
	for lvl := range q.levels {
		for i, e := range q.levels[lvl] {
			if e.tid == tid {
				q.levels[lvl] = append(q.levels[lvl][:i], q.levels[lvl][i+1:]...)
				return true
			}
		}
	}
	return false
}

func (q *prioQueue) Len() int {
	n := 0
	for lvl := range q.levels {
		n += len(q.levels[lvl])
	}
	return n
}

// PickMigratable gives away the least urgent thread first, newest
// arrival within a level.
func (q *prioQueue) PickMigratable(allowed func(*entry) bool) *entry {
	for lvl := model.PriorityLevels - 1; lvl >= 0; lvl-- {
		for i := len(q.levels[lvl]) - 1; i >= 0; i-- {
			if allowed(q.levels[lvl][i]) {
				e := q.levels[lvl][i]
				q.levels[lvl] = append(q.levels[lvl][:i], q.levels[lvl][i+1:]...)
				return e
			}
		}
	}
	return nil
}

func (q *prioQueue) DrainAll() []*entry {
	var out []*entry
	for lvl := 0; lvl < model.PriorityLevels; lvl++ {
		out = append(out, q.levels[lvl]...)
		q.levels[lvl] = nil
	}
	return out
}
