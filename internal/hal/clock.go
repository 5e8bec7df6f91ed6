package hal

import (
	"sync"
	"sync/atomic"
)

// TickHandler is invoked once per scheduling tick with the new tick
// value. Handlers run on the clock's caller and must be bounded and
// non-blocking, the same rule as interrupt context.
type TickHandler func(tick uint64)

// Clock is the periodic timer the core registers its dispatch handler
// with. Ticks are logical: tests and the scenario runner advance the
// clock explicitly, the daemon advances it from a wall-clock ticker.
type Clock struct {
	tick     atomic.Uint64
	mu       sync.RWMutex
	handlers []TickHandler
}

// NewClock returns a clock at tick zero.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current tick.
func (c *Clock) Now() uint64 {
	return c.tick.Load()
}

// RegisterTickHandler adds fn to the handlers run on every tick.
func (c *Clock) RegisterTickHandler(fn TickHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Advance steps the clock n ticks, running every handler once per tick.
func (c *Clock) Advance(n uint64) {
	for i := uint64(0); i < n; i++ {
		t := c.tick.Add(1)
		c.mu.RLock()
		handlers := c.handlers
		c.mu.RUnlock()
		for _, fn := range handlers {
			fn(t)
		}
	}
}
