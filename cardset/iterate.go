package cardset

import (
	"sync/atomic"

	"github.com/joshuapare/cardkit/cardset/container"
)

// CardVisitor receives the cards of a card set. A Full container, or a Full
// howl bucket, is reported as one range.
type CardVisitor interface {
	VisitCard(region, card uint32)
	VisitRange(region, start, length uint32)
}

// ContainerVisitor receives each region's container. h stays valid for the
// duration of the call.
type ContainerVisitor interface {
	VisitContainer(region uint32, occupied uint64, h container.Handle)
}

// ContainerVisitorFunc adapts a function to ContainerVisitor.
type ContainerVisitorFunc func(region uint32, occupied uint64, h container.Handle)

// VisitContainer calls f.
func (f ContainerVisitorFunc) VisitContainer(region uint32, occupied uint64, h container.Handle) {
	f(region, occupied, h)
}

// CardFuncs adapts a pair of functions to CardVisitor. A nil Range expands
// ranges card by card through Card.
type CardFuncs struct {
	Card  func(region, card uint32)
	Range func(region, start, length uint32)
}

// VisitCard calls Card.
func (f CardFuncs) VisitCard(region, card uint32) { f.Card(region, card) }

// VisitRange calls Range, or Card for each card of the range.
func (f CardFuncs) VisitRange(region, start, length uint32) {
	if f.Range != nil {
		f.Range(region, start, length)
		return
	}
	for c := start; c < start+length; c++ {
		f.Card(region, c)
	}
}

// IterateCards visits every recorded card. Cards added concurrently may or
// may not be visited.
func (cs *CardSet) IterateCards(v CardVisitor) {
	cs.table.forEach(func(e *entry) bool {
		cs.iterateContainerCards(e.handleAddr(), e.region(), 0, cs.cfg.MaxCardsInRegion(), v)
		return true
	})
}

// iterateContainerCards visits the cards of the container at addr, which
// covers length cards from start.
func (cs *CardSet) iterateContainerCards(addr *atomic.Uint64, region, start, length uint32, v CardVisitor) {
	h := cs.acquire(addr)
	defer cs.release(h)

	visit := func(card uint32) { v.VisitCard(region, card) }
	switch h.Type() {
	case container.TypeFull:
		v.VisitRange(region, start, length)
	case container.TypeInline:
		container.IterateInline(h, cs.cfg.InlineBitsPerCard(), visit)
	case container.TypeArray:
		container.AsArray(cs.words(h)).Iterate(visit)
	case container.TypeBitmap:
		container.AsBitmap(cs.words(h)).Iterate(start, length, visit)
	case container.TypeHowl:
		howl := container.AsHowl(cs.words(h))
		size := cs.cfg.MaxCardsInHowlBitmap()
		for i := range howl.NumBuckets() {
			cs.iterateContainerCards(howl.BucketAddr(i), region, cs.cfg.HowlBucketStart(i), size, v)
		}
	}
}

// IterateContainers visits every region's top-level container.
func (cs *CardSet) IterateContainers(v ContainerVisitor) {
	cs.table.forEach(func(e *entry) bool {
		h := cs.acquire(e.handleAddr())
		v.VisitContainer(e.region(), e.occupied().Load(), h)
		cs.release(h)
		return true
	})
}

// ForEachBucket calls fn with every bucket handle of the howl h, which must
// be held (as inside VisitContainer).
func (cs *CardSet) ForEachBucket(h container.Handle, fn func(bucket uint32, b container.Handle)) {
	howl := container.AsHowl(cs.words(h))
	for i := range howl.NumBuckets() {
		fn(i, howl.Bucket(i))
	}
}
