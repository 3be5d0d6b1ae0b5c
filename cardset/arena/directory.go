package arena

import (
	"fmt"
	"sync/atomic"
)

const (
	dirBlockBits = 10
	dirBlockSize = 1 << dirBlockBits
	dirSpineSize = 1 << 12

	// maxSegments is the number of ids a directory can hand out.
	maxSegments = dirBlockSize*dirSpineSize - 1
)

type dirBlock [dirBlockSize]atomic.Pointer[Segment]

// directory maps segment ids to segments. It is a fixed spine of lazily
// allocated blocks; lookups are two atomic loads and never take a lock.
// Ids are never reused, so a stale id resolves to nil rather than to a
// different segment.
type directory struct {
	nextID atomic.Uint32
	live   atomic.Int64
	spine  [dirSpineSize]atomic.Pointer[dirBlock]
}

// register assigns seg an id and publishes it.
func (d *directory) register(seg *Segment) error {
	id := d.nextID.Add(1)
	if id > maxSegments {
		return fmt.Errorf("%w: segment directory exhausted", ErrOutOfMemory)
	}
	seg.id = id
	d.block(id, true)[id&(dirBlockSize-1)].Store(seg)
	d.live.Add(1)
	return nil
}

// lookup returns the segment with id, or nil.
func (d *directory) lookup(id uint32) *Segment {
	blk := d.block(id, false)
	if blk == nil {
		return nil
	}
	return blk[id&(dirBlockSize-1)].Load()
}

// remove unpublishes id.
func (d *directory) remove(id uint32) {
	if blk := d.block(id, false); blk != nil {
		if blk[id&(dirBlockSize-1)].Swap(nil) != nil {
			d.live.Add(-1)
		}
	}
}

func (d *directory) block(id uint32, create bool) *dirBlock {
	idx := id >> dirBlockBits
	if idx >= dirSpineSize {
		return nil
	}
	slot := &d.spine[idx]
	blk := slot.Load()
	if blk != nil || !create {
		return blk
	}
	fresh := new(dirBlock)
	if slot.CompareAndSwap(nil, fresh) {
		return fresh
	}
	return slot.Load()
}
