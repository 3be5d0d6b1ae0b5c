// Package arena provides segmented bump allocation of fixed-size slots for the
// card set's container objects and hash-table nodes.
//
// # Overview
//
// Memory is handed out in segments: blocks of uniform slots allocated with a
// bump counter. An Arena owns a growing list of segments; when the current
// one is full a larger one is installed (geometric growth per AllocOptions).
// Individual slots are never freed here. Slot-level reuse is layered on top
// by internal/freelist, and whole segments are recycled through a Pool.
//
// # Components
//
//   - Pool: the shared free-segment list for one slot size, plus the
//     directory that resolves slot references. One pool per object kind is
//     shared by every card set (see cardset/memory).
//   - Arena: per card set and kind; Allocate and DropAll.
//   - Backing: where segment memory comes from (Go heap or anonymous
//     mappings).
//
// # Slot References
//
// Slots are named by Ref values rather than pointers:
//
//	Ref = segment id << 32 | slot index
//
// Segment ids are assigned by the pool's directory and never reused, so a
// reference always resolves to the same storage while its segment lives.
// Slot storage is a []atomic.Uint64 view; all container fields are words.
//
// # Segment Growth
//
//	seg 1:   8 slots      (InitialNumSlots)
//	seg 2:  16 slots      (x GrowthFactor)
//	seg 3:  32 slots
//	...                   (capped at MaxNumSlots)
//
// Recycled segments keep their original size, whatever the growth policy
// would have chosen.
//
// # Thread Safety
//
// Allocate may be called concurrently. DropAll, Pool.Trim and Pool.FreeAll
// require exclusive access (the card set calls them only from Clear).
package arena
