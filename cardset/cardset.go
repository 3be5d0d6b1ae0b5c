package cardset

import (
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/cardkit/cardset/config"
	"github.com/joshuapare/cardkit/cardset/container"
	"github.com/joshuapare/cardkit/cardset/memory"
	"github.com/joshuapare/cardkit/internal/epoch"
	"github.com/joshuapare/cardkit/internal/invariant"
	"github.com/joshuapare/cardkit/internal/logger"
)

// CardSet records, per card region, which cards hold references into the
// owning region. Adds and lookups may run concurrently; Clear needs
// exclusive access.
type CardSet struct {
	cfg     *config.Config
	mm      *memory.Manager
	counter *epoch.Counter
	table   *table

	// Sum of all entries' occupancy. May overcount, never undercounts.
	occupied atomic.Uint64

	stats CoarsenStats
}

// New creates an empty card set allocating from mm. The configuration is
// the one mm's pools were created with.
func New(mm *memory.Manager) *CardSet {
	return &CardSet{
		cfg:     mm.Pools().Config(),
		mm:      mm,
		counter: mm.Pools().Counter(),
		table:   newTable(mm, 0),
	}
}

// Config returns the card set's configuration.
func (cs *CardSet) Config() *config.Config { return cs.cfg }

// Manager returns the card set's memory manager.
func (cs *CardSet) Manager() *memory.Manager { return cs.mm }

// CoarsenStats returns a snapshot of the coarsening counters.
func (cs *CardSet) CoarsenStats() CoarsenSnapshot { return cs.stats.Snapshot() }

// AddCard records card of region. It returns container.Found if the card
// was already present and container.Added otherwise.
func (cs *CardSet) AddCard(region, card uint32) container.AddResult {
	invariant.Check(card < cs.cfg.MaxCardsInRegion(), "card %d out of range %d", card, cs.cfg.MaxCardsInRegion())
	return cs.addCard(region, card, true)
}

// addCard adds card, coarsening the region's container as needed. Cards
// moved from a coarsened container are added with incrementTotal false:
// they are already counted.
func (cs *CardSet) addCard(region, card uint32, incrementTotal bool) container.AddResult {
	e := cs.table.getOrAdd(region)
	addr := e.handleAddr()

	var (
		res        container.AddResult
		h          container.Handle
		toTransfer bool
	)
	for {
		h = cs.acquire(addr)
		res = cs.addToContainer(e, addr, h, card, incrementTotal)
		if res != container.Overflow {
			break
		}
		coarsened := cs.coarsen(addr, h, card, false)
		cs.stats.Record(transitionFrom(h.Type(), false, cs.cfg.UsesHowl()), !coarsened)
		if coarsened {
			// The new container was created holding card.
			toTransfer = true
			res = container.Added
			break
		}
		cs.release(h)
	}

	if incrementTotal && res == container.Added {
		e.occupied().Add(1)
		cs.occupied.Add(1)
	}
	if toTransfer {
		cs.transferCards(e, h, region)
	}
	cs.release(h)
	return res
}

// addToContainer dispatches an add to h, the acquired content of addr.
func (cs *CardSet) addToContainer(e *entry, addr *atomic.Uint64, h container.Handle, card uint32, incrementTotal bool) container.AddResult {
	switch h.Type() {
	case container.TypeFull:
		return container.Found
	case container.TypeInline:
		return container.AddInline(addr, h, card, cs.cfg.InlineBitsPerCard(), cs.cfg.MaxCardsInInlinePtr())
	case container.TypeArray:
		return container.AsArray(cs.words(h)).Add(card, cs.cfg.MaxCardsInArray())
	case container.TypeBitmap:
		return container.AsBitmap(cs.words(h)).Add(cs.cfg.HowlBitmapOffset(card), cs.cfg.CardsInHowlBitmapThreshold())
	default:
		return cs.addToHowl(e, h, card, incrementTotal)
	}
}

// addToHowl adds card to its bucket of the acquired howl h. Overflow means
// the howl itself must coarsen.
func (cs *CardSet) addToHowl(e *entry, h container.Handle, card uint32, incrementTotal bool) container.AddResult {
	howl := container.AsHowl(cs.words(h))
	addr := howl.BucketAddr(cs.cfg.HowlBucketIndex(card))

	var (
		res        container.AddResult
		b          container.Handle
		toTransfer bool
	)
	for {
		if howl.NumEntries() >= cs.cfg.CardsInHowlThreshold() {
			return container.Overflow
		}
		b = cs.acquire(addr)
		res = cs.addToContainer(e, addr, b, card, incrementTotal)
		if res != container.Overflow {
			break
		}
		coarsened := cs.coarsen(addr, b, card, true)
		cs.stats.Record(transitionFrom(b.Type(), true, cs.cfg.UsesHowl()), !coarsened)
		if coarsened {
			toTransfer = true
			res = container.Added
			break
		}
		cs.release(b)
	}

	if incrementTotal && res == container.Added {
		howl.AddEntries(1)
	}
	if toTransfer {
		cs.transferCardsInHowl(e, howl, b)
	}
	cs.release(b)
	return res
}

// ContainsCard reports whether card of region has been added, or is
// covered by a Full container.
func (cs *CardSet) ContainsCard(region, card uint32) bool {
	invariant.Check(card < cs.cfg.MaxCardsInRegion(), "card %d out of range %d", card, cs.cfg.MaxCardsInRegion())
	s := cs.counter.Enter()
	defer s.Exit()

	e, ok := cs.table.get(region)
	if !ok {
		return false
	}
	h := container.Handle(e.handleAddr().Load())
	switch h.Type() {
	case container.TypeFull:
		return true
	case container.TypeInline:
		return container.InlineContains(h, card, cs.cfg.InlineBitsPerCard())
	case container.TypeArray:
		return container.AsArray(cs.words(h)).Contains(card)
	case container.TypeBitmap:
		return container.AsBitmap(cs.words(h)).Contains(cs.cfg.HowlBitmapOffset(card))
	default:
		return container.AsHowl(cs.words(h)).Contains(card, cs.cfg, resolver{cs})
	}
}

// Occupied is the number of cards recorded. Full containers count every
// card of their region.
func (cs *CardSet) Occupied() uint64 { return cs.occupied.Load() }

// IsEmpty reports whether no card has been recorded since the last Clear.
func (cs *CardSet) IsEmpty() bool { return cs.occupied.Load() == 0 }

// OccupancyLessOrEqualTo reports whether Occupied() <= limit.
func (cs *CardSet) OccupancyLessOrEqualTo(limit uint64) bool {
	return cs.occupied.Load() <= limit
}

// NumRegions is the number of regions with an entry.
func (cs *CardSet) NumRegions() int { return cs.table.size() }

// RegionOccupancy returns the card count of region.
func (cs *CardSet) RegionOccupancy(region uint32) uint64 {
	e, ok := cs.table.get(region)
	if !ok {
		return 0
	}
	return e.occupied().Load()
}

// Clear removes every card and returns all memory to the shared pools.
// Requires exclusive access, and no card set sharing these Pools may be
// allocating: segments go back to the pools' free stacks unsynchronized.
func (cs *CardSet) Clear() {
	regions, occupied := cs.table.size(), cs.occupied.Load()
	cs.table.clear()
	cs.occupied.Store(0)
	cs.mm.Flush()
	logger.Debug("cardset: cleared", "regions", regions, "occupied", occupied)
}

// MemSize is the card set's footprint, including its containers and table
// nodes.
func (cs *CardSet) MemSize() uint64 {
	return uint64(unsafe.Sizeof(*cs)) + uint64(cs.table.size())*uint64(unsafe.Sizeof(entry{})) + cs.mm.MemSize()
}

// UnusedMemSize is memory owned by the card set that holds no live object.
func (cs *CardSet) UnusedMemSize() uint64 { return cs.mm.UnusedMemSize() }
