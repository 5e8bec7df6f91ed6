package model

import "fmt"

// PID identifies a process. PID 0 is the root process that adopts
// orphans; allocated PIDs start at 1 and are never reused.
type PID uint32

// TID identifies a thread. Allocated TIDs start at 1 and are never
// reused; TID 0 means "no thread".
type TID uint32

// CPUID identifies a logical CPU, 0-based.
type CPUID int

func (p PID) String() string { return fmt.Sprintf("pid_%d", uint32(p)) }
func (t TID) String() string { return fmt.Sprintf("tid_%d", uint32(t)) }

// Affinity is a bitmask of CPUs a thread may run on. Bit i set means
// CPU i is permitted.
type Affinity uint64

// AffinityAll permits every CPU.
const AffinityAll Affinity = ^Affinity(0)

// Allows reports whether the mask permits the given CPU.
func (a Affinity) Allows(cpu CPUID) bool {
	if cpu < 0 || cpu >= 64 {
		return false
	}
	return a&(1<<uint(cpu)) != 0
}

// Valid reports whether the mask permits at least one of cpuCount CPUs.
func (a Affinity) Valid(cpuCount int) bool {
	if cpuCount > 64 {
		cpuCount = 64
	}
	for i := 0; i < cpuCount; i++ {
		if a.Allows(CPUID(i)) {
			return true
		}
	}
	return false
}
