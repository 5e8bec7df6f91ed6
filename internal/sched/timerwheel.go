package sched

import (
	"container/heap"
	"sync"

	"github.com/me/gosched/pkg/model"
)

// sleepWheel tracks sleeping threads in a min-heap keyed by wake tick.
// One wheel serves all CPUs; a sleeping thread has no CPU binding
// until it wakes and is placed again.
type sleepWheel struct {
	mu   sync.Mutex
	heap sleepHeap
}

type sleeper struct {
	tid    model.TID
	wakeAt uint64
	seq    uint64 // insertion order, keeps equal wake ticks FIFO
}

func (w *sleepWheel) push(tid model.TID, wakeAt uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.heap.nextSeq++
	heap.Push(&w.heap, sleeper{tid: tid, wakeAt: wakeAt, seq: w.heap.nextSeq})
}

// popDue removes and returns every thread whose wake tick is <= now.
func (w *sleepWheel) popDue(now uint64) []model.TID {
	w.mu.Lock()
	defer w.mu.Unlock()
	var due []model.TID
	for w.heap.Len() > 0 && w.heap.items[0].wakeAt <= now {
		due = append(due, heap.Pop(&w.heap).(sleeper).tid)
	}
	return due
}

// remove cancels a pending wake, if any. Terminating a sleeping thread
// must not leave a dangling timer.
func (w *sleepWheel) remove(tid model.TID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, s := range w.heap.items {
		if s.tid == tid {
			heap.Remove(&w.heap, i)
			return
		}
	}
}

func (w *sleepWheel) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.heap.Len()
}

type sleepHeap struct {
	items   []sleeper
	nextSeq uint64
}

func (h sleepHeap) Len() int { return len(h.items) }

func (h sleepHeap) Less(i, j int) bool {
	if h.items[i].wakeAt != h.items[j].wakeAt {
		return h.items[i].wakeAt < h.items[j].wakeAt
	}
	return h.items[i].seq < h.items[j].seq
}

func (h sleepHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *sleepHeap) Push(x any) {
	h.items = append(h.items, x.(sleeper))
}

func (h *sleepHeap) Pop() any {
	old := h.items
	n := len(old)
	s := old[n-1]
	h.items = old[:n-1]
	return s
}
