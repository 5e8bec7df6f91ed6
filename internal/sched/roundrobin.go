package sched

import "github.com/me/gosched/pkg/model"

// rrQueue is the round-robin policy: a single FIFO, quantum sized by
// priority class, expired threads re-admitted at the tail.
type rrQueue struct {
	fifo []*entry
}

func newRRQueue() *rrQueue {
	return &rrQueue{}
}

func (q *rrQueue) Enqueue(e *entry) {
	q.fifo = append(q.fifo, e)
}

func (q *rrQueue) SelectNext(now uint64) (*entry, bool) {
	if len(q.fifo) == 0 {
		return nil, false
	}
	e := q.fifo[0]
	q.fifo = q.fifo[1:]
	return e, false
}

func (q *rrQueue) OnQuantumExpired(e *entry) {
	q.Enqueue(e)
}

func (q *rrQueue) Quantum(e *entry) uint64 {
	return model.QuantumFor(e.prio)
}

func (q *rrQueue) Remove(tid model.TID) bool {
	for i, e := range q.fifo {
		if e.tid == tid {
			q.fifo = append(q.fifo[:i], q.fifo[i+1:]...)
			return true
		}
	}
	return false
}

func (q *rrQueue) Len() int {
	return len(q.fifo)
}

// PickMigratable takes from the tail: the most recently arrived thread
// loses the least queue position by moving.
func (q *rrQueue) PickMigratable(allowed func(*entry) bool) *entry {
	for i := len(q.fifo) - 1; i >= 0; i-- {
		if allowed(q.fifo[i]) {
			e := q.fifo[i]
			q.fifo = append(q.fifo[:i], q.fifo[i+1:]...)
			return e
		}
	}
	return nil
}

func (q *rrQueue) DrainAll() []*entry {
	out := q.fifo
	q.fifo = nil
	return out
}
