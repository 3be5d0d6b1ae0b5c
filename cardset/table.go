package cardset

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/joshuapare/cardkit/cardset/arena"
	"github.com/joshuapare/cardkit/cardset/container"
	"github.com/joshuapare/cardkit/cardset/memory"
)

// Hash node word layout.
const (
	nodeRegion   = 0
	nodeOccupied = 1
	nodeHandle   = 2
)

// entry is a region's table value. Its fields live in a HashNode slot of the
// memory manager so they are accounted and recycled with the card set.
type entry struct {
	ref arena.Ref
	w   []atomic.Uint64
}

func (e *entry) region() uint32             { return uint32(e.w[nodeRegion].Load()) }
func (e *entry) occupied() *atomic.Uint64   { return &e.w[nodeOccupied] }
func (e *entry) handleAddr() *atomic.Uint64 { return &e.w[nodeHandle] }

// table maps card regions to entries. Entries are never removed
// individually; clear drops them all.
type table struct {
	m  *xsync.MapOf[uint32, *entry]
	mm *memory.Manager
}

func newTable(mm *memory.Manager, sizeHint int) *table {
	var opts []func(*xsync.MapConfig)
	if sizeHint > 0 {
		opts = append(opts, xsync.WithPresize(sizeHint))
	}
	return &table{
		m:  xsync.NewMapOf[uint32, *entry](opts...),
		mm: mm,
	}
}

// getOrAdd returns region's entry, creating an empty one on first use.
func (t *table) getOrAdd(region uint32) *entry {
	if e, ok := t.m.Load(region); ok {
		return e
	}
	e, _ := t.m.LoadOrCompute(region, func() *entry {
		ref := t.mm.Allocate(memory.HashNode)
		w := t.mm.Words(memory.HashNode, ref)
		w[nodeRegion].Store(uint64(region))
		w[nodeOccupied].Store(0)
		w[nodeHandle].Store(uint64(container.Free))
		return &entry{ref: ref, w: w}
	})
	return e
}

func (t *table) get(region uint32) (*entry, bool) {
	return t.m.Load(region)
}

// forEach visits entries in unspecified order until fn returns false.
func (t *table) forEach(fn func(e *entry) bool) {
	t.m.Range(func(_ uint32, e *entry) bool {
		return fn(e)
	})
}

func (t *table) size() int { return t.m.Size() }

// clear drops every entry. Their nodes go back with the manager's segments.
func (t *table) clear() { t.m.Clear() }
