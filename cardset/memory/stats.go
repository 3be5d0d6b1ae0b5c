package memory

import (
	"fmt"
	"io"
)

// KindStats holds the allocation and waste figures of one kind.
type KindStats struct {
	Kind      Kind
	SlotBytes uint64 // size of one slot

	Segments  uint64 // segments owned by the arena
	Capacity  uint64 // slots across owned segments
	Allocated uint64 // slots handed out by the arena
	Free      uint64 // slots on the free list
	Pending   uint64 // released slots awaiting transfer
	Transfers uint64 // completed pending-to-free transfers

	MemBytes    uint64 // memory of owned segments
	WastedBytes uint64 // memory of slots not holding a live object
}

// Live is the number of slots holding live objects.
func (s KindStats) Live() uint64 {
	if s.Allocated < s.Free+s.Pending {
		return 0
	}
	return s.Allocated - s.Free - s.Pending
}

// Efficiency is the percentage of slot capacity holding live objects.
func (s KindStats) Efficiency() float64 {
	if s.Capacity == 0 {
		return 100
	}
	return float64(s.Live()) / float64(s.Capacity) * 100
}

// Stats returns a snapshot per kind. Counters are read independently and
// may be mutually inconsistent under concurrent use.
func (m *Manager) Stats() []KindStats {
	out := make([]KindStats, 0, NumKinds)
	for _, k := range Kinds() {
		a, f := m.arenas[k], m.free[k]
		out = append(out, KindStats{
			Kind:        k,
			SlotBytes:   uint64(a.SlotWords()) * 8,
			Segments:    a.NumSegments(),
			Capacity:    a.NumTotalSlots(),
			Allocated:   a.NumAllocatedSlots(),
			Free:        f.FreeCount(),
			Pending:     f.PendingCount(),
			Transfers:   f.Transfers(),
			MemBytes:    a.MemSize(),
			WastedBytes: m.unusedSlots(k) * uint64(a.SlotWords()) * 8,
		})
	}
	return out
}

// PrintStats writes a per-kind table of Stats to w.
func (m *Manager) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "%-9s %6s %8s %9s %9s %7s %7s %10s %10s %6s\n",
		"kind", "slot", "segments", "capacity", "allocated", "free", "pending", "mem", "wasted", "eff%")
	for _, s := range m.Stats() {
		fmt.Fprintf(w, "%-9s %6d %8d %9d %9d %7d %7d %10d %10d %6.1f\n",
			s.Kind, s.SlotBytes, s.Segments, s.Capacity, s.Allocated, s.Free, s.Pending,
			s.MemBytes, s.WastedBytes, s.Efficiency())
	}
}
