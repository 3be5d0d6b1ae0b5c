package arena

import (
	"fmt"
	"sync/atomic"

	"github.com/joshuapare/cardkit/internal/epoch"
	"github.com/joshuapare/cardkit/internal/invariant"
	"github.com/joshuapare/cardkit/internal/lfstack"
	"github.com/joshuapare/cardkit/internal/logger"
)

// Pool is the shared free-segment list for one slot size, together with the
// directory that resolves slot references of every segment it ever created.
//
// Arenas take segments from the pool when they grow and hand all of theirs
// back in one splice on DropAll. Popping is protected by the epoch counter;
// pushing back a segment that other goroutines may still be popping past
// requires the same exclusive context DropAll runs in.
type Pool struct {
	name      string
	slotWords uint32
	backing   Backing
	counter   *epoch.Counter

	dir  directory
	free lfstack.Stack

	// Best-effort counters of the free list.
	numFree atomic.Uint64
	freeMem atomic.Uint64

	// Lifetime counters.
	created  atomic.Uint64
	released atomic.Uint64
}

// poolLinker threads the free list through Segment.next.
type poolLinker struct{ p *Pool }

func (l poolLinker) Next(ref uint64) uint64 {
	return uint64(l.p.dir.lookup(uint32(ref)).next.Load())
}

func (l poolLinker) SetNext(ref, next uint64) {
	l.p.dir.lookup(uint32(ref)).next.Store(uint32(next))
}

// NewPool creates an empty pool for slots of slotWords words.
func NewPool(name string, slotWords uint32, backing Backing, counter *epoch.Counter) *Pool {
	if backing == nil {
		backing = HeapBacking{}
	}
	p := &Pool{
		name:      name,
		slotWords: slotWords,
		backing:   backing,
		counter:   counter,
	}
	p.free.Init(poolLinker{p})
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// SlotWords returns the slot size served by this pool.
func (p *Pool) SlotWords() uint32 { return p.slotWords }

// Backing returns the memory backing.
func (p *Pool) Backing() Backing { return p.backing }

// Counter returns the epoch counter protecting the pool.
func (p *Pool) Counter() *epoch.Counter { return p.counter }

// CreateSegment reserves memory for a new segment with numSlots slots and
// registers it. Exhaustion is fatal.
func (p *Pool) CreateSegment(numSlots uint32) *Segment {
	words, release, err := p.backing.Reserve(int(numSlots) * int(p.slotWords))
	if err != nil {
		panic(fmt.Errorf("%s: reserve segment of %d slots: %w", p.name, numSlots, err))
	}
	seg := &Segment{
		slotWords: p.slotWords,
		numSlots:  numSlots,
		words:     words,
		release:   release,
	}
	if err := p.dir.register(seg); err != nil {
		_ = release()
		panic(fmt.Errorf("%s: %w", p.name, err))
	}
	p.created.Add(1)
	logger.Debug("arena: segment created", "pool", p.name, "id", seg.id, "slots", numSlots, "bytes", seg.MemSize())
	return seg
}

// Get pops a free segment, or returns nil when none is available.
func (p *Pool) Get() *Segment {
	if p.numFree.Load() == 0 {
		return nil
	}
	s := p.counter.Enter()
	id := p.free.Pop()
	s.Exit()
	if id == 0 {
		return nil
	}
	seg := p.dir.lookup(uint32(id))
	p.numFree.Add(^uint64(0))
	p.freeMem.Add(-seg.MemSize())
	return seg
}

// GetAll detaches the whole free list. It returns the first segment (nil if
// the list was empty) and the counts that were recorded for it.
func (p *Pool) GetAll() (first *Segment, num, mem uint64) {
	s := p.counter.Enter()
	id := p.free.PopAll()
	s.Exit()
	num = p.numFree.Swap(0)
	mem = p.freeMem.Swap(0)
	if id == 0 {
		return nil, num, mem
	}
	return p.dir.lookup(uint32(id)), num, mem
}

// BulkAdd splices the list first..last of num segments totalling mem bytes
// onto the free list.
func (p *Pool) BulkAdd(first, last *Segment, num, mem uint64) {
	invariant.Check(first != nil && last != nil, "%s: bulk add of empty list", p.name)
	invariant.Check(first.slotWords == p.slotWords, "%s: slot size mismatch %d != %d", p.name, first.slotWords, p.slotWords)
	p.free.Prepend(uint64(first.id), uint64(last.id))
	p.numFree.Add(num)
	p.freeMem.Add(mem)
}

// Segment resolves a segment id.
func (p *Pool) Segment(id uint32) *Segment {
	return p.dir.lookup(id)
}

// Words returns the storage of the slot named by ref.
func (p *Pool) Words(ref Ref) []atomic.Uint64 {
	seg := p.dir.lookup(ref.Segment())
	invariant.Check(seg != nil && ref.Slot() < seg.numSlots, "%s: %v: %v", p.name, ErrBadRef, ref)
	return seg.Slot(ref.Slot())
}

// Lookup is the checked form of Words.
func (p *Pool) Lookup(ref Ref) ([]atomic.Uint64, error) {
	seg := p.dir.lookup(ref.Segment())
	if seg == nil || ref.Slot() >= seg.numSlots {
		return nil, fmt.Errorf("%s: %w: %v", p.name, ErrBadRef, ref)
	}
	return seg.Slot(ref.Slot()), nil
}

// discard releases a segment that was never published to any list.
func (p *Pool) discard(seg *Segment) {
	p.dir.remove(seg.id)
	p.released.Add(1)
	if err := seg.release(); err != nil {
		logger.Warn("arena: segment release failed", "pool", p.name, "id", seg.id, "err", err)
	}
}

// Trim returns free segments to the backing until at most keepBytes of
// free segment memory remain. It returns the number of bytes released.
// Requires that no arena is concurrently allocating from this pool.
func (p *Pool) Trim(keepBytes uint64) uint64 {
	first, _, _ := p.GetAll()
	var kept, released uint64
	var keepFirst, keepLast *Segment
	var keptNum uint64

	for seg := first; seg != nil; {
		var next *Segment
		if id := seg.next.Load(); id != 0 {
			next = p.dir.lookup(id)
		}
		if kept+seg.MemSize() <= keepBytes {
			kept += seg.MemSize()
			keptNum++
			seg.next.Store(0)
			if keepLast == nil {
				keepFirst = seg
			} else {
				keepLast.next.Store(seg.id)
			}
			keepLast = seg
		} else {
			released += seg.MemSize()
			p.discard(seg)
		}
		seg = next
	}
	if keepFirst != nil {
		p.BulkAdd(keepFirst, keepLast, keptNum, kept)
	}
	if released > 0 {
		logger.Debug("arena: pool trimmed", "pool", p.name, "released", released, "kept", kept)
	}
	return released
}

// FreeAll returns every free segment to the backing.
func (p *Pool) FreeAll() uint64 {
	return p.Trim(0)
}

// NumFreeSegments is the number of segments on the free list.
func (p *Pool) NumFreeSegments() uint64 { return p.numFree.Load() }

// FreeMemSize is the memory held by free segments.
func (p *Pool) FreeMemSize() uint64 { return p.freeMem.Load() }

// NumLiveSegments is the number of segments currently registered, free or
// owned by an arena.
func (p *Pool) NumLiveSegments() int64 { return p.dir.live.Load() }

// NumCreated is the number of segments ever created by this pool.
func (p *Pool) NumCreated() uint64 { return p.created.Load() }

// FreeListLength walks the free list. Not concurrency safe.
func (p *Pool) FreeListLength() int { return p.free.Length() }
