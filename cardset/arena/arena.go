package arena

import (
	"sync/atomic"

	"github.com/joshuapare/cardkit/internal/invariant"
	"github.com/joshuapare/cardkit/internal/logger"
)

// Arena is a concurrent bump allocator of fixed-size slots. It never frees
// individual slots; DropAll hands every segment back to the pool at once.
//
// Segments form a list from the current (newest) segment back to the first
// one created. A goroutine that finds the current segment full obtains a new
// one (recycled from the pool or freshly reserved) and installs it with a
// compare-and-swap; goroutines that lose the race discard theirs and
// continue with the winner's segment.
type Arena struct {
	pool *Pool
	opts AllocOptions

	first atomic.Pointer[Segment] // current allocation segment
	last  atomic.Pointer[Segment] // oldest segment, end of the list

	// Relaxed, diagnostic counters.
	numSegments       atomic.Uint64
	memSize           atomic.Uint64
	numTotalSlots     atomic.Uint64
	numAllocatedSlots atomic.Uint64
}

// New creates an empty arena allocating from pool.
func New(pool *Pool, opts AllocOptions) *Arena {
	return &Arena{pool: pool, opts: opts}
}

// Pool returns the arena's segment pool.
func (a *Arena) Pool() *Pool { return a.pool }

// SlotWords returns the slot size in words.
func (a *Arena) SlotWords() uint32 { return a.pool.slotWords }

// Allocate returns a fresh slot. The slot's contents are unspecified;
// callers initialize every word they use.
func (a *Arena) Allocate() Ref {
	cur := a.first.Load()
	if cur == nil {
		cur = a.newSegment(nil)
	}
	for {
		if idx, ok := cur.allocateSlot(); ok {
			a.numAllocatedSlots.Add(1)
			return MakeRef(cur.id, idx)
		}
		cur = a.newSegment(cur)
	}
}

// newSegment installs a segment after prev and returns the arena's current
// segment, which is either the one installed here or a racing winner's.
func (a *Arena) newSegment(prev *Segment) *Segment {
	next := a.pool.Get()
	if next == nil {
		var prevSlots uint32
		if prev != nil {
			prevSlots = prev.numSlots
		}
		next = a.pool.CreateSegment(a.opts.NextNumSlots(prevSlots))
	} else {
		invariant.Check(next.slotWords == a.pool.slotWords, "slot size mismatch %d != %d", next.slotWords, a.pool.slotWords)
		logger.Debug("arena: segment recycled", "pool", a.pool.name, "id", next.id, "slots", next.numSlots)
	}
	next.reset(prev)

	if !a.first.CompareAndSwap(prev, next) {
		// Somebody else installed a segment; use theirs. Ours was never
		// visible, but pushing it back on the free list could race with
		// pops, so it goes back to the backing.
		a.pool.discard(next)
		return a.first.Load()
	}

	if prev == nil {
		a.last.Store(next)
	}
	a.numSegments.Add(1)
	a.memSize.Add(next.MemSize())
	a.numTotalSlots.Add(uint64(next.numSlots))
	return next
}

// DropAll moves every segment to the pool and resets the arena. Requires
// exclusive access.
func (a *Arena) DropAll() {
	first := a.first.Load()
	if first != nil {
		last := a.last.Load()
		invariant.Check(last != nil, "arena %s: segments without a last one", a.pool.name)
		if invariant.Enabled {
			a.checkList(first, last)
		}
		a.pool.BulkAdd(first, last, a.numSegments.Load(), a.memSize.Load())
		logger.Debug("arena: dropped", "pool", a.pool.name, "segments", a.numSegments.Load(), "bytes", a.memSize.Load())
	}
	a.first.Store(nil)
	a.last.Store(nil)
	a.numSegments.Store(0)
	a.memSize.Store(0)
	a.numTotalSlots.Store(0)
	a.numAllocatedSlots.Store(0)
}

// checkList walks the segment list and verifies the counters.
func (a *Arena) checkList(first, last *Segment) {
	var num, mem uint64
	var tail *Segment
	for cur := first; cur != nil; {
		num++
		mem += cur.MemSize()
		tail = cur
		id := cur.next.Load()
		if id == 0 {
			break
		}
		cur = a.pool.dir.lookup(id)
	}
	invariant.Check(num == a.numSegments.Load(), "arena %s: %d segments listed, %d counted", a.pool.name, num, a.numSegments.Load())
	invariant.Check(mem == a.memSize.Load(), "arena %s: %d bytes listed, %d counted", a.pool.name, mem, a.memSize.Load())
	invariant.Check(tail == last, "arena %s: list tail mismatch", a.pool.name)
}

// Words returns the storage of slot ref.
func (a *Arena) Words(ref Ref) []atomic.Uint64 {
	return a.pool.Words(ref)
}

// NumSegments is the number of segments owned by the arena.
func (a *Arena) NumSegments() uint64 { return a.numSegments.Load() }

// MemSize is the memory owned by the arena's segments.
func (a *Arena) MemSize() uint64 { return a.memSize.Load() }

// NumTotalSlots is the slot capacity of all owned segments.
func (a *Arena) NumTotalSlots() uint64 { return a.numTotalSlots.Load() }

// NumAllocatedSlots is the number of slots handed out since the last DropAll.
func (a *Arena) NumAllocatedSlots() uint64 { return a.numAllocatedSlots.Load() }

// CurrentSegment returns the segment allocation currently bumps in.
func (a *Arena) CurrentSegment() *Segment { return a.first.Load() }
