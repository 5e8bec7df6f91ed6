package hal

import (
	"fmt"
	"sync"
)

// StackRegion describes one allocated thread stack.
type StackRegion struct {
	Base uint64 `json:"base"`
	Size int64  `json:"size"`
}

// Memory allocates and frees thread stacks. Paging below this API is
// outside the core's ownership.
type Memory interface {
	AllocateStack(size int64) (StackRegion, error)
	FreeStack(region StackRegion) error
}

// SimMemory is a bookkeeping stack allocator with a fixed byte budget,
// so allocation failure is reachable deterministically.
type SimMemory struct {
	mu     sync.Mutex
	budget int64
	used   int64
	next   uint64
	live   map[uint64]int64
}

// NewSimMemory returns an allocator that hands out at most budget bytes.
func NewSimMemory(budget int64) *SimMemory {
	return &SimMemory{
		budget: budget,
		next:   0x7f00_0000_0000, // arbitrary high base, grows downward-looking addresses upward
		live:   map[uint64]int64{},
	}
}

// AllocateStack reserves size bytes and returns the region.
func (m *SimMemory) AllocateStack(size int64) (StackRegion, error) {
	if size <= 0 {
		return StackRegion{}, fmt.Errorf("stack size %d must be positive", size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used+size > m.budget {
		return StackRegion{}, fmt.Errorf("stack budget exhausted: %d of %d bytes in use", m.used, m.budget)
	}
	base := m.next
	m.next += uint64(size)
	m.used += size
	m.live[base] = size
	return StackRegion{Base: base, Size: size}, nil
}

// FreeStack releases a previously allocated region. Freeing an unknown
// region is an error: it would mean a stack was double-freed or forged.
func (m *SimMemory) FreeStack(region StackRegion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	size, ok := m.live[region.Base]
	if !ok || size != region.Size {
		return fmt.Errorf("free of unknown stack region base=%#x size=%d", region.Base, region.Size)
	}
	delete(m.live, region.Base)
	m.used -= size
	return nil
}

// Used returns the bytes currently allocated.
func (m *SimMemory) Used() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
