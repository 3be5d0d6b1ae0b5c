package memory

import (
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/cardkit/cardset/arena"
	"github.com/joshuapare/cardkit/internal/freelist"
	"github.com/joshuapare/cardkit/internal/lfstack"
)

// Manager is the per card set memory manager: one arena and one free list
// per kind. Freed slots become reusable after the free list's next batched
// transfer, which waits for every open epoch section on the shared counter.
type Manager struct {
	pools  *Pools
	arenas [NumKinds]*arena.Arena
	free   [NumKinds]*freelist.Allocator
}

var _ freelist.Config = (*slotSource)(nil)
var _ lfstack.Linker = slotLinker{}

// slotSource feeds a free list from an arena.
type slotSource struct {
	arena     *arena.Arena
	threshold uint64
}

func (s *slotSource) Allocate() uint64 { return uint64(s.arena.Allocate()) }

// Deallocate is a no-op: slots go back to the pool with their segment.
func (s *slotSource) Deallocate(uint64) {}

func (s *slotSource) TransferThreshold() uint64 { return s.threshold }

// slotLinker threads free lists through the kind's link word of each slot.
// Word 0 stays untouched so a freed object keeps its retired header.
type slotLinker struct {
	pool *arena.Pool
	word int
}

func (l slotLinker) Next(ref uint64) uint64 {
	return l.pool.Words(arena.Ref(ref))[l.word].Load()
}

func (l slotLinker) SetNext(ref, next uint64) {
	l.pool.Words(arena.Ref(ref))[l.word].Store(next)
}

// NewManager creates an empty manager allocating from pools.
func NewManager(pools *Pools) *Manager {
	m := &Manager{pools: pools}
	opts := pools.cfg.Options()
	for _, k := range Kinds() {
		pool := pools.pools[k]
		a := arena.New(pool, opts.Arena)
		m.arenas[k] = a
		m.free[k] = freelist.New(k.String(), &slotSource{arena: a, threshold: opts.TransferThreshold},
			slotLinker{pool, k.LinkWord()}, pools.counter)
	}
	return m
}

// Pools returns the shared pools.
func (m *Manager) Pools() *Pools { return m.pools }

// Allocate returns a slot of kind k. Its contents are unspecified.
func (m *Manager) Allocate(k Kind) arena.Ref {
	return arena.Ref(m.free[k].Allocate())
}

// Free returns ref to kind k's free list. Readers that may still hold ref
// must do so inside an epoch section of the shared counter.
func (m *Manager) Free(k Kind, ref arena.Ref) {
	m.free[k].Release(uint64(ref))
}

// Words returns the storage of slot ref of kind k.
func (m *Manager) Words(k Kind, ref arena.Ref) []atomic.Uint64 {
	return m.pools.pools[k].Words(ref)
}

// Flush drops every allocation at once: free lists are reset without
// touching their nodes and every segment goes back to its pool. Requires
// exclusive access, and no manager sharing these Pools may be allocating.
func (m *Manager) Flush() {
	for _, k := range Kinds() {
		m.free[k].Reset()
		m.arenas[k].DropAll()
	}
}

// MemSize is the manager's footprint including owned segments.
func (m *Manager) MemSize() uint64 {
	total := uint64(unsafe.Sizeof(*m))
	for _, a := range m.arenas {
		total += a.MemSize()
	}
	return total
}

// UnusedMemSize is the memory of owned slots not holding a live object:
// never handed out, or sitting on a free list.
func (m *Manager) UnusedMemSize() uint64 {
	var total uint64
	for _, k := range Kinds() {
		total += m.unusedSlots(k) * uint64(m.arenas[k].SlotWords()) * 8
	}
	return total
}

func (m *Manager) unusedSlots(k Kind) uint64 {
	a, f := m.arenas[k], m.free[k]
	unused := f.FreeCount() + f.PendingCount()
	if alloc, total := a.NumAllocatedSlots(), a.NumTotalSlots(); total > alloc {
		unused += total - alloc
	}
	return unused
}

// NumSegments is the number of segments owned across all kinds.
func (m *Manager) NumSegments() uint64 {
	var total uint64
	for _, a := range m.arenas {
		total += a.NumSegments()
	}
	return total
}

// TransferPending forces a pending-to-free transfer on every kind.
func (m *Manager) TransferPending() {
	for _, f := range m.free {
		f.TryTransferPending()
	}
}
