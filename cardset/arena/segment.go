package arena

import (
	"sync/atomic"
	"unsafe"
)

// segmentHeaderSize is the accounting overhead of one segment.
const segmentHeaderSize = uint64(unsafe.Sizeof(Segment{}))

// Segment is a fixed-capacity block of same-sized slots, bump allocated.
//
// A segment belongs to exactly one owner at a time: an arena (linked from
// the arena's current segment through next) or a pool's free list (linked
// through the same field).
type Segment struct {
	id        uint32
	slotWords uint32
	numSlots  uint32

	// nextAllocate may run past numSlots when racing allocations find the
	// segment full.
	nextAllocate atomic.Uint32

	// next is the id of the following segment, 0 at the end of a list.
	next atomic.Uint32

	words   []atomic.Uint64
	release func() error
}

// ID returns the segment's directory id.
func (s *Segment) ID() uint32 { return s.id }

// NumSlots returns the segment's slot capacity.
func (s *Segment) NumSlots() uint32 { return s.numSlots }

// SlotWords returns the size of one slot in words.
func (s *Segment) SlotWords() uint32 { return s.slotWords }

// NumAllocated returns how many slots have been handed out.
func (s *Segment) NumAllocated() uint32 {
	return min(s.nextAllocate.Load(), s.numSlots)
}

// MemSize is the segment's footprint: header plus slot storage.
func (s *Segment) MemSize() uint64 {
	return segmentHeaderSize + uint64(len(s.words))*8
}

// Next returns the id of the following segment.
func (s *Segment) Next() uint32 { return s.next.Load() }

// allocateSlot claims the next slot index, or reports the segment full.
func (s *Segment) allocateSlot() (uint32, bool) {
	if s.nextAllocate.Load() >= s.numSlots {
		return 0, false
	}
	idx := s.nextAllocate.Add(1) - 1
	if idx >= s.numSlots {
		return 0, false
	}
	return idx, true
}

// Slot returns the words of slot idx.
func (s *Segment) Slot(idx uint32) []atomic.Uint64 {
	start := uint64(idx) * uint64(s.slotWords)
	return s.words[start : start+uint64(s.slotWords) : start+uint64(s.slotWords)]
}

// reset prepares a recycled segment to become the head of an arena whose
// previous head is prev.
func (s *Segment) reset(prev *Segment) {
	s.nextAllocate.Store(0)
	if prev != nil {
		s.next.Store(prev.id)
	} else {
		s.next.Store(0)
	}
}
