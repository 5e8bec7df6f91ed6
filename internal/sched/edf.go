package sched

import (
	"container/heap"

	"github.com/me/gosched/pkg/model"
)

// edfQueue is the earliest-deadline-first policy: a deadline-ordered
// heap, ties broken by thread identifier for determinism. Threads
// without a deadline sort after every deadline-bearing thread in FIFO
// order. A thread selected past its deadline is reported as missed,
// not silently run.
type edfQueue struct {
	heap           edfHeap
	defaultQuantum uint64
}

func newEDFQueue(defaultQuantum uint64) *edfQueue {
	return &edfQueue{defaultQuantum: defaultQuantum}
}

func (q *edfQueue) Enqueue(e *entry) {
	heap.Push(&q.heap, e)
}

func (q *edfQueue) SelectNext(now uint64) (*entry, bool) {
	if q.heap.Len() == 0 {
		return nil, false
	}
	e := heap.Pop(&q.heap).(*entry)
	missed := e.deadline != 0 && e.deadline < now
	return e, missed
}

func (q *edfQueue) OnQuantumExpired(e *entry) {
	q.Enqueue(e)
}

func (q *edfQueue) Quantum(e *entry) uint64 {
	return q.defaultQuantum
}

func (q *edfQueue) Remove(tid model.TID) bool {
	for i, e := range q.heap {
		if e.tid == tid {
			heap.Remove(&q.heap, i)
			return true
		}
	}
	return false
}

func (q *edfQueue) Len() int {
	return q.heap.Len()
}

// PickMigratable gives away the thread with the most slack: the latest
// deadline, preferring no-deadline threads.
func (q *edfQueue) PickMigratable(allowed func(*entry) bool) *entry {
	best := -1
	for i, e := range q.heap {
		if !allowed(e) {
			continue
		}
		if best == -1 || edfLess(q.heap[best], e) {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	return heap.Remove(&q.heap, best).(*entry)
}

func (q *edfQueue) DrainAll() []*entry {
	out := make([]*entry, 0, q.heap.Len())
	for q.heap.Len() > 0 {
		out = append(out, heap.Pop(&q.heap).(*entry))
	}
	return out
}

// edfLess orders a before b: earlier deadline first, no-deadline last
// (FIFO by sequence), deadline ties by TID.
func edfLess(a, b *entry) bool {
	switch {
	case a.deadline == 0 && b.deadline == 0:
		return a.seq < b.seq
	case a.deadline == 0:
		return false
	case b.deadline == 0:
		return true
	case a.deadline != b.deadline:
		return a.deadline < b.deadline
	default:
		return a.tid < b.tid
	}
}

type edfHeap []*entry

func (h edfHeap) Len() int           { return len(h) }
func (h edfHeap) Less(i, j int) bool { return edfLess(h[i], h[j]) }
func (h edfHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *edfHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *edfHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
