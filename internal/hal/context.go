// Package hal holds the collaborators the scheduling core treats as
// external: the architecture context-switch operation, stack memory,
// and the tick source. The implementations here simulate a machine;
// the core never looks inside them.
package hal

import "sync/atomic"

// Context is the opaque per-thread register file. It is owned
// exclusively by one thread and is never aliased; ownership moves only
// at the point of context switch.
type Context struct {
	regs  [16]uint64
	pc    uint64
	sp    uint64
	flags uint64

	saves    uint64 // save count, visible to tests via Generation
	restores uint64
}

// Generation returns how many times this context has been saved. Tests
// use it to check that switches actually touch the register file.
func (c *Context) Generation() uint64 {
	return atomic.LoadUint64(&c.saves)
}

// Restores returns how many times this context has been restored.
func (c *Context) Restores() uint64 {
	return atomic.LoadUint64(&c.restores)
}

// CPU is the architecture-specific switch surface. Save and Restore
// must be atomic with respect to the simulated tick.
type CPU interface {
	SaveContext(ctx *Context)
	RestoreContext(ctx *Context)
}

// SimCPU simulates register save/restore by bumping generation
// counters on the context. One instance serves all logical CPUs; the
// per-thread Context carries all the state.
type SimCPU struct {
	switches atomic.Uint64
}

// NewSimCPU returns a simulated switch surface.
func NewSimCPU() *SimCPU {
	return &SimCPU{}
}

// SaveContext records the running thread's register file.
func (s *SimCPU) SaveContext(ctx *Context) {
	if ctx == nil {
		return
	}
	atomic.AddUint64(&ctx.saves, 1)
	s.switches.Add(1)
}

// RestoreContext loads the successor thread's register file.
func (s *SimCPU) RestoreContext(ctx *Context) {
	if ctx == nil {
		return
	}
	atomic.AddUint64(&ctx.restores, 1)
}

// Switches returns the total number of SaveContext calls.
func (s *SimCPU) Switches() uint64 {
	return s.switches.Load()
}
