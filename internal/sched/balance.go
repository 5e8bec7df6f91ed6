package sched

import "github.com/me/gosched/pkg/model"

// Rebalance runs one load-balancing pass: repeatedly pair the most and
// least loaded online CPUs and migrate one ready thread from busy to
// idle until the load difference is within the configured threshold or
// no queued thread on the busy CPU may run on the idle one (affinity).
// Running threads never migrate. The pass runs outside the dispatch
// hot path, on the balancer interval.
func (c *Core) Rebalance(now uint64) {
	c.loadBalances.Add(1)
	for c.rebalanceOnce(now) {
	}
}

// rebalanceOnce migrates at most one thread and reports whether it did.
func (c *Core) rebalanceOnce(now uint64) bool {
	var busy, idle *cpuCore
	busyLoad, idleLoad := -1, -1
	for _, cc := range c.cpus {
		cc.mu.Lock()
		if cc.state != model.CPUStateOnline {
			cc.mu.Unlock()
			continue
		}
		load := cc.queue.Len()
		if cc.current != nil {
			load++
		}
		cc.mu.Unlock()
		if busy == nil || load > busyLoad {
			busy, busyLoad = cc, load
		}
		if idle == nil || load < idleLoad {
			idle, idleLoad = cc, load
		}
	}
	if busy == nil || idle == nil || busy == idle {
		return false
	}
	if busyLoad-idleLoad <= c.loadThreshold {
		return false
	}

	// Lock both CPUs, lowest id first, so concurrent passes and tick
	// paths cannot deadlock against each other.
	first, second := busy, idle
	if second.id < first.id {
		first, second = second, first
	}
	first.mu.Lock()
	second.mu.Lock()
	defer first.mu.Unlock()
	defer second.mu.Unlock()

	// Loads may have shifted while unlocked; re-check before moving.
	if busy.state != model.CPUStateOnline || idle.state != model.CPUStateOnline {
		return false
	}
	busyLoad = busy.queue.Len()
	if busy.current != nil {
		busyLoad++
	}
	idleLoad = idle.queue.Len()
	if idle.current != nil {
		idleLoad++
	}
	if busyLoad-idleLoad <= c.loadThreshold {
		return false
	}

	e := busy.queue.PickMigratable(func(e *entry) bool {
		th, err := c.threads.Get(e.tid)
		if err != nil {
			return false
		}
		return c.allowedOn(th.Affinity(), idle.id)
	})
	if e == nil {
		return false
	}
	th, err := c.threads.Get(e.tid)
	if err != nil {
		// Picked entry vanished between the affinity check and here;
		// drop it rather than enqueue a dangling TID.
		return false
	}
	th.SetCPU(idle.id)
	idle.queue.Enqueue(e)
	busy.balanced = now
	idle.balanced = now
	c.migrations.Add(1)
	c.logger.Debug("thread migrated",
		"tid", e.tid, "from", int(busy.id), "to", int(idle.id),
		"busy_load", busyLoad, "idle_load", idleLoad)
	return true
}
