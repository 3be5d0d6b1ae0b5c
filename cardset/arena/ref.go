package arena

import "fmt"

// Ref names one slot: the owning segment's id in the high 32 bits and the
// slot index in the low 32 bits. Segment ids start at 1, so a valid Ref is
// never zero.
type Ref uint64

// MakeRef builds a reference from a segment id and slot index.
func MakeRef(segment, slot uint32) Ref {
	return Ref(uint64(segment)<<32 | uint64(slot))
}

// Segment returns the segment id.
func (r Ref) Segment() uint32 { return uint32(r >> 32) }

// Slot returns the slot index within the segment.
func (r Ref) Slot() uint32 { return uint32(r) }

func (r Ref) String() string {
	return fmt.Sprintf("%d:%d", r.Segment(), r.Slot())
}
