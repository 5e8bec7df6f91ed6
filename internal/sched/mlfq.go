package sched

import "github.com/me/gosched/pkg/model"

// mlfqLevels is the number of feedback levels.
const mlfqLevels = 5

// mlfqQueue is the multi-level feedback queue policy: five levels with
// quantum doubling at each lower level. Exhausting a slice demotes one
// level; blocking before exhaustion keeps the level; a periodic boost
// resets everything to the top so long-running CPU hogs cannot starve
// late arrivals for good.
type mlfqQueue struct {
	levels      [mlfqLevels][]*entry
	baseQuantum uint64
}

func newMLFQQueue(baseQuantum uint64) *mlfqQueue {
	return &mlfqQueue{baseQuantum: baseQuantum}
}

func (q *mlfqQueue) Enqueue(e *entry) {
	if e.level < 0 {
		e.level = 0
	}
	if e.level >= mlfqLevels {
		e.level = mlfqLevels - 1
	}
	q.levels[e.level] = append(q.levels[e.level], e)
}

func (q *mlfqQueue) SelectNext(now uint64) (*entry, bool) {
	for lvl := 0; lvl < mlfqLevels; lvl++ {
		if len(q.levels[lvl]) > 0 {
			e := q.levels[lvl][0]
			q.levels[lvl] = q.levels[lvl][1:]
			return e, false
		}
	}
	return nil, false
}

// OnQuantumExpired demotes the thread one level before re-admitting it.
func (q *mlfqQueue) OnQuantumExpired(e *entry) {
	if e.level < mlfqLevels-1 {
		e.level++
	}
	q.Enqueue(e)
}

// Quantum doubles at each lower level: base, 2x, 4x, 8x, 16x.
func (q *mlfqQueue) Quantum(e *entry) uint64 {
	lvl := e.level
	if lvl < 0 {
		lvl = 0
	}
	if lvl >= mlfqLevels {
		lvl = mlfqLevels - 1
	}
	return q.baseQuantum << uint(lvl)
}

func (q *mlfqQueue) Remove(tid model.TID) bool {
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

func (q *mlfqQueue) Len() int {
	n := 0
	for lvl := range q.levels {
		n += len(q.levels[lvl])
	}
	return n
}

// Boost resets every waiting thread to the top level. Order is
// preserved: former level 0 first, then level 1, and so on, FIFO
// within each.
func (q *mlfqQueue) Boost() {
	var all []*entry
	for lvl := 0; lvl < mlfqLevels; lvl++ {
		all = append(all, q.levels[lvl]...)
		q.levels[lvl] = nil
	}
	for _, e := range all {
		e.level = 0
	}
	q.levels[0] = all
}

// PickMigratable gives away from the bottom level first; those threads
// wait longest anyway.
func (q *mlfqQueue) PickMigratable(allowed func(*entry) bool) *entry {
	for lvl := mlfqLevels - 1; lvl >= 0; lvl-- {
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

func (q *mlfqQueue) DrainAll() []*entry {
	var out []*entry
	for lvl := 0; lvl < mlfqLevels; lvl++ {
		out = append(out, q.levels[lvl]...)
		q.levels[lvl] = nil
	}
	return out
}
