// Package epoch implements a global-counter safe-reclamation scheme.
//
// A reader brackets every lock-free traversal of shared memory with
// Enter/Exit. A writer that has unlinked an object calls Synchronize before
// reusing that object's memory; Synchronize returns once every section that
// was open when it was called has been closed. Sections opened afterwards do
// not delay it.
//
// Counter layout:
//
//	global: even values, advanced by 2 per Synchronize
//	slot:   0 when free, global|active while a section is open
//
// Each open section owns one padded slot, so there is no per-goroutine
// registration and sections may be opened from any goroutine.
package epoch

import (
	"math/rand/v2"
	"runtime"
	"sync/atomic"
)

const (
	active    = uint64(1)
	increment = uint64(2)

	// spinsBeforeYield bounds busy-waiting before Synchronize and Enter
	// start yielding the processor.
	spinsBeforeYield = 64

	minSlots = 64
)

// slot is one critical-section marker, padded to a cache line.
type slot struct {
	v atomic.Uint64
	_ [56]byte
}

// Counter is the epoch counter. The zero value is not usable; call New.
type Counter struct {
	global atomic.Uint64
	_      [56]byte
	slots  []slot
	mask   uint32
}

// New creates a counter with at least n section slots, rounded up to a
// power of two. At most that many sections can be open at once; further
// Enter calls spin until a slot frees up.
func New(n int) *Counter {
	if n < minSlots {
		n = minSlots
	}
	size := 1
	for size < n {
		size <<= 1
	}
	c := &Counter{
		slots: make([]slot, size),
		mask:  uint32(size - 1),
	}
	c.global.Store(increment)
	return c
}

// Default sizes a counter for the current GOMAXPROCS.
func Default() *Counter {
	return New(8 * runtime.GOMAXPROCS(0))
}

// Section is an open critical section. It must be closed exactly once.
type Section struct {
	c   *Counter
	idx uint32
}

// Enter opens a critical section.
func (c *Counter) Enter() Section {
	start := rand.Uint32() & c.mask
	for spins := 0; ; spins++ {
		v := c.global.Load() | active
		for i := uint32(0); i <= c.mask; i++ {
			idx := (start + i) & c.mask
			s := &c.slots[idx].v
			if s.Load() == 0 && s.CompareAndSwap(0, v) {
				return Section{c: c, idx: idx}
			}
		}
		if spins >= spinsBeforeYield {
			runtime.Gosched()
		}
	}
}

// Exit closes the section.
func (s Section) Exit() {
	s.c.slots[s.idx].v.Store(0)
}

// Synchronize blocks until every section that was open when it was called
// has exited.
func (c *Counter) Synchronize() {
	gbl := c.global.Add(increment)
	for i := range c.slots {
		s := &c.slots[i].v
		for spins := 0; ; spins++ {
			v := s.Load()
			// Wrap-safe "v < gbl": the section entered before the increment.
			if v&active == 0 || v-gbl <= ^uint64(0)/2 {
				break
			}
			if spins >= spinsBeforeYield {
				runtime.Gosched()
			}
		}
	}
}

// Global returns the current global counter value.
func (c *Counter) Global() uint64 {
	return c.global.Load()
}

// Active returns the number of open sections. Diagnostic only.
func (c *Counter) Active() int {
	n := 0
	for i := range c.slots {
		if c.slots[i].v.Load()&active != 0 {
			n++
		}
	}
	return n
}

// Slots returns the number of section slots.
func (c *Counter) Slots() int {
	return len(c.slots)
}
