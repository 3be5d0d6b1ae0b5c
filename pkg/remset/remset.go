// Package remset provides the remembered set of one heap region: the cards
// of other regions that hold references into it.
//
// A RemSet translates heap addresses and heap-region cards into the card
// set's card regions. Heap regions with more cards than a card region can
// index are split into several card regions; callers never see the split.
//
// Quick start:
//
//	cfg := config.MustNew(config.DefaultOptions)
//	pools := memory.NewPools(cfg, memory.PoolOptions{})
//	rs := remset.New(5, memory.NewManager(pools), remset.Geometry{HeapBase: base, CardShift: 9})
//	rs.SetState(remset.Complete)
//	rs.AddReference(fieldAddr)
package remset

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/cardkit/cardset"
	"github.com/joshuapare/cardkit/cardset/config"
	"github.com/joshuapare/cardkit/cardset/memory"
	"github.com/joshuapare/cardkit/internal/invariant"
	"github.com/joshuapare/cardkit/internal/logger"
)

// State is the tracking state of a remembered set.
type State uint32

const (
	// Untracked ignores every added reference.
	Untracked State = iota
	// Updating records references; the set may still be incomplete.
	Updating
	// Complete records references; the set covers every reference.
	Complete
)

func (s State) String() string {
	switch s {
	case Untracked:
		return "Untracked"
	case Updating:
		return "Updating"
	case Complete:
		return "Complete"
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// Geometry maps heap addresses to cards.
type Geometry struct {
	// HeapBase is the address of the first card of the heap.
	HeapBase uintptr
	// CardShift is log2 of the card size in bytes.
	CardShift uint
}

// noCard marks an empty last-card cache.
const noCard = ^uint64(0)

// RemSet is the remembered set of one heap region.
type RemSet struct {
	region uint32
	geom   Geometry
	cfg    *config.Config
	cs     *cardset.CardSet
	state  atomic.Uint32

	// Last heap card recorded; repeated adds of one card skip the card set.
	lastCard atomic.Uint64
}

// New creates an Untracked remembered set for heap region region.
func New(region uint32, mm *memory.Manager, geom Geometry) *RemSet {
	rs := &RemSet{
		region: region,
		geom:   geom,
		cfg:    mm.Pools().Config(),
		cs:     cardset.New(mm),
	}
	rs.lastCard.Store(noCard)
	return rs
}

// Region returns the owning heap region index.
func (rs *RemSet) Region() uint32 { return rs.region }

// CardSet returns the underlying card set.
func (rs *RemSet) CardSet() *cardset.CardSet { return rs.cs }

// State returns the tracking state.
func (rs *RemSet) State() State { return State(rs.state.Load()) }

// IsTracked reports whether references are recorded.
func (rs *RemSet) IsTracked() bool { return rs.State() != Untracked }

// SetState changes the tracking state. Moving to Untracked clears the set
// and requires exclusive access.
func (rs *RemSet) SetState(s State) {
	old := State(rs.state.Swap(uint32(s)))
	if s == Untracked && old != Untracked {
		rs.clearCards()
	}
	if old != s {
		logger.Debug("remset: state changed", "region", rs.region, "from", old, "to", s)
	}
}

// AddReference records the card holding the heap address from.
func (rs *RemSet) AddReference(from uintptr) {
	invariant.Check(from >= rs.geom.HeapBase, "address %#x below heap base %#x", from, rs.geom.HeapBase)
	heapCard := uint64(from-rs.geom.HeapBase) >> rs.geom.CardShift
	rs.addHeapCard(heapCard)
}

// AddCard records card cardInHeapRegion of heap region fromRegion.
func (rs *RemSet) AddCard(fromRegion, cardInHeapRegion uint32) {
	rs.addHeapCard(uint64(fromRegion)<<rs.logCardsPerRegion() | uint64(cardInHeapRegion))
}

func (rs *RemSet) addHeapCard(heapCard uint64) {
	if !rs.IsTracked() {
		return
	}
	if rs.lastCard.Load() == heapCard {
		return
	}
	fromRegion, card := rs.split(heapCard)
	cardRegion, cardInRegion := rs.cfg.CardRegion(fromRegion, card)
	rs.cs.AddCard(cardRegion, cardInRegion)
	// Published only once the card is in the set.
	rs.lastCard.Store(heapCard)
}

// Contains reports whether card cardInHeapRegion of heap region fromRegion
// has been recorded.
func (rs *RemSet) Contains(fromRegion, cardInHeapRegion uint32) bool {
	cardRegion, cardInRegion := rs.cfg.CardRegion(fromRegion, cardInHeapRegion)
	return rs.cs.ContainsCard(cardRegion, cardInRegion)
}

// ContainsReference reports whether the card of address from is recorded.
func (rs *RemSet) ContainsReference(from uintptr) bool {
	fromRegion, card := rs.split(uint64(from-rs.geom.HeapBase) >> rs.geom.CardShift)
	return rs.Contains(fromRegion, card)
}

// Occupied is the number of recorded cards.
func (rs *RemSet) Occupied() uint64 { return rs.cs.Occupied() }

// IsEmpty reports whether no card is recorded.
func (rs *RemSet) IsEmpty() bool { return rs.cs.IsEmpty() }

// Clear drops every card. Unless onlyCardSet is set the remembered set also
// becomes Untracked. Requires exclusive access.
func (rs *RemSet) Clear(onlyCardSet bool) {
	rs.clearCards()
	if !onlyCardSet {
		rs.state.Store(uint32(Untracked))
	}
}

func (rs *RemSet) clearCards() {
	rs.cs.Clear()
	rs.lastCard.Store(noCard)
}

// IterateCards calls fn with every recorded card as a heap region and card
// index within it. Full containers are expanded card by card.
func (rs *RemSet) IterateCards(fn func(fromRegion, cardInHeapRegion uint32)) {
	rs.cs.IterateCards(cardset.CardFuncs{
		Card: func(cardRegion, card uint32) {
			fn(rs.cfg.HeapCard(cardRegion, card))
		},
	})
}

// MemSize is the footprint of the remembered set and its card set.
func (rs *RemSet) MemSize() uint64 {
	return uint64(unsafe.Sizeof(*rs)) + rs.cs.MemSize()
}

func (rs *RemSet) logCardsPerRegion() uint32 {
	return rs.cfg.Options().LogCardsPerRegion
}

func (rs *RemSet) split(heapCard uint64) (region, card uint32) {
	log := rs.logCardsPerRegion()
	return uint32(heapCard >> log), uint32(heapCard & (1<<log - 1))
}
