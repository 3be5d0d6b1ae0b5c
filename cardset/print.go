package cardset

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/cardkit/cardset/container"
)

// Info summarizes a card set's containers.
type Info struct {
	Regions    int
	Occupied   uint64
	Containers [container.NumTypes]int // top-level containers per type
	Buckets    [container.NumTypes]int // howl buckets per type, Inline excludes Free
	FreeBucket int                     // empty howl buckets
	MemSize    uint64
	Unused     uint64
	Coarsen    CoarsenSnapshot
}

// Info collects the summary. Concurrent adds may skew it.
func (cs *CardSet) Info() Info {
	info := Info{
		Regions:  cs.NumRegions(),
		Occupied: cs.Occupied(),
		MemSize:  cs.MemSize(),
		Unused:   cs.UnusedMemSize(),
		Coarsen:  cs.CoarsenStats(),
	}
	cs.IterateContainers(ContainerVisitorFunc(func(_ uint32, _ uint64, h container.Handle) {
		info.Containers[h.Type()]++
		if h.Type() != container.TypeHowl {
			return
		}
		cs.ForEachBucket(h, func(_ uint32, b container.Handle) {
			if b == container.Free {
				info.FreeBucket++
				return
			}
			info.Buckets[b.Type()]++
		})
	}))
	return info
}

// PrintInfo writes the summary with grouped numbers.
func (cs *CardSet) PrintInfo(w io.Writer) {
	info := cs.Info()
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "regions:   %d\n", info.Regions)
	p.Fprintf(w, "occupied:  %d cards\n", info.Occupied)
	p.Fprintf(w, "memory:    %d bytes (%d unused)\n", info.MemSize, info.Unused)
	p.Fprintf(w, "containers:")
	for t := range container.NumTypes {
		p.Fprintf(w, " %s=%d", t, info.Containers[t])
	}
	p.Fprintf(w, "\nbuckets:   Free=%d", info.FreeBucket)
	for t := range container.NumTypes {
		if t == container.TypeHowl {
			continue
		}
		p.Fprintf(w, " %s=%d", t, info.Buckets[t])
	}
	p.Fprintf(w, "\n")
	info.Coarsen.Print(w)
}

// Print writes every region with its container and occupancy, sorted by
// region.
func (cs *CardSet) Print(w io.Writer) {
	type row struct {
		region   uint32
		occupied uint64
		h        string
	}
	var rows []row
	cs.IterateContainers(ContainerVisitorFunc(func(region uint32, occupied uint64, h container.Handle) {
		rows = append(rows, row{region, occupied, h.String()})
	}))
	slices.SortFunc(rows, func(a, b row) int { return cmp.Compare(a.region, b.region) })

	fmt.Fprintf(w, "card set: %d regions, %d cards\n", len(rows), cs.Occupied())
	for _, r := range rows {
		fmt.Fprintf(w, "  region %6d: %-16s %d\n", r.region, r.h, r.occupied)
	}
}
