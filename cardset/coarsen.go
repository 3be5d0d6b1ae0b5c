package cardset

import (
	"sync/atomic"

	"github.com/joshuapare/cardkit/cardset/container"
	"github.com/joshuapare/cardkit/cardset/memory"
	"github.com/joshuapare/cardkit/internal/invariant"
)

// resolver maps container handles to slot words of the card set's manager.
type resolver struct{ cs *CardSet }

func (r resolver) Words(h container.Handle) []atomic.Uint64 { return r.cs.words(h) }

func kindOf(t container.Type) memory.Kind {
	switch t {
	case container.TypeArray:
		return memory.Array
	case container.TypeBitmap:
		return memory.Bitmap
	case container.TypeHowl:
		return memory.Howl
	}
	panic("cardset: no memory kind for " + t.String())
}

func (cs *CardSet) words(h container.Handle) []atomic.Uint64 {
	return cs.mm.Words(kindOf(h.Type()), h.Ref())
}

// acquire loads the handle at addr and pins its object, if any. The load
// and the reference increment happen inside an epoch section, so the
// object cannot be recycled in between; a retired object means addr has
// moved on and is reloaded.
func (cs *CardSet) acquire(addr *atomic.Uint64) container.Handle {
	s := cs.counter.Enter()
	defer s.Exit()
	for {
		h := container.Handle(addr.Load())
		if !h.IsObject() {
			return h
		}
		if container.TryAcquire(&cs.words(h)[0]) {
			return h
		}
	}
}

// release drops a reference taken by acquire (or the owner's), freeing the
// object when it was the last.
func (cs *CardSet) release(h container.Handle) {
	if !h.IsObject() {
		return
	}
	if container.Release(&cs.words(h)[0]) {
		cs.mm.Free(kindOf(h.Type()), h.Ref())
	}
}

// releaseAndMustFree drops the only reference to an unpublished object.
func (cs *CardSet) releaseAndMustFree(h container.Handle) {
	last := container.Release(&cs.words(h)[0])
	invariant.Check(last, "%v still referenced", h)
	cs.mm.Free(kindOf(h.Type()), h.Ref())
}

// coarsen replaces cur at addr with the next coarser container, created
// already holding card. It reports whether this goroutine installed it;
// the caller then transfers cur's cards. The caller holds its own
// reference to cur throughout.
func (cs *CardSet) coarsen(addr *atomic.Uint64, cur container.Handle, card uint32, withinHowl bool) bool {
	var next container.Handle
	switch cur.Type() {
	case container.TypeInline:
		next = cs.newArray(card)
	case container.TypeArray:
		if withinHowl || !cs.cfg.UsesHowl() {
			next = cs.newBitmap(cs.cfg.HowlBitmapOffset(card))
		} else {
			next = cs.newHowl(card)
		}
	case container.TypeBitmap, container.TypeHowl:
		next = container.Full
	default:
		invariant.Check(false, "coarsening %v", cur)
	}

	if !addr.CompareAndSwap(uint64(cur), uint64(next)) {
		if next != container.Full {
			cs.releaseAndMustFree(next)
		}
		return false
	}

	if cur.IsObject() {
		// Drop the owner's reference; the caller's keeps cur alive.
		last := container.Release(&cs.words(cur)[0])
		invariant.Check(!last, "%v lost its caller reference", cur)
	}
	if cur.Type() == container.TypeHowl {
		cs.releaseBuckets(container.AsHowl(cs.words(cur)))
	}
	return true
}

// releaseBuckets swaps every bucket of a replaced howl to Full and drops
// the howl's reference to the bucket's container. Goroutines still working
// on a bucket lose their CAS and retry against Full.
func (cs *CardSet) releaseBuckets(howl container.Howl) {
	for i := range howl.NumBuckets() {
		addr := howl.BucketAddr(i)
		for {
			b := container.Handle(addr.Load())
			if b == container.Full {
				break
			}
			if addr.CompareAndSwap(uint64(b), uint64(container.Full)) {
				cs.release(b)
				break
			}
		}
	}
}

func (cs *CardSet) newArray(card uint32) container.Handle {
	ref := cs.mm.Allocate(memory.Array)
	container.InitArray(cs.mm.Words(memory.Array, ref), card)
	return container.MakeHandle(container.TypeArray, ref)
}

func (cs *CardSet) newBitmap(offset uint32) container.Handle {
	ref := cs.mm.Allocate(memory.Bitmap)
	container.InitBitmap(cs.mm.Words(memory.Bitmap, ref), offset, cs.cfg.MaxCardsInHowlBitmap())
	return container.MakeHandle(container.TypeBitmap, ref)
}

func (cs *CardSet) newHowl(card uint32) container.Handle {
	ref := cs.mm.Allocate(memory.Howl)
	container.InitHowl(cs.mm.Words(memory.Howl, ref), card, cs.cfg)
	return container.MakeHandle(container.TypeHowl, ref)
}

// transferCards moves the cards of a replaced top-level container into its
// successor. Bitmap and Howl are replaced by Full, which needs no cards;
// the entry's count is raised to a full region instead.
func (cs *CardSet) transferCards(e *entry, src container.Handle, region uint32) {
	switch src.Type() {
	case container.TypeInline, container.TypeArray:
		cs.forEachCard(src, func(card uint32) {
			cs.addCard(region, card, false)
		})
	default:
		if diff := int64(cs.cfg.MaxCardsInRegion()) - int64(e.occupied().Load()); diff > 0 {
			e.occupied().Add(uint64(diff))
			cs.occupied.Add(uint64(diff))
		}
	}
}

// transferCardsInHowl is transferCards for a howl bucket. A bitmap bucket
// becomes Full: the howl, the entry and the total are raised by the cards
// the bitmap did not hold, less the card whose add caused the coarsening
// and is counted by the callers.
func (cs *CardSet) transferCardsInHowl(e *entry, howl container.Howl, src container.Handle) {
	if src.Type() != container.TypeBitmap {
		region := e.region()
		cs.forEachCard(src, func(card uint32) {
			cs.addCard(region, card, false)
		})
		return
	}
	bitsSet := container.AsBitmap(cs.words(src)).NumBitsSet()
	diff := int64(cs.cfg.MaxCardsInHowlBitmap()) - int64(bitsSet) - 1
	if diff <= 0 {
		return
	}
	howl.AddEntries(uint32(diff))
	e.occupied().Add(uint64(diff))
	cs.occupied.Add(uint64(diff))
}

// forEachCard visits the cards of an inline handle or an acquired array.
func (cs *CardSet) forEachCard(h container.Handle, fn func(card uint32)) {
	switch h.Type() {
	case container.TypeInline:
		container.IterateInline(h, cs.cfg.InlineBitsPerCard(), fn)
	case container.TypeArray:
		container.AsArray(cs.words(h)).Iterate(fn)
	default:
		invariant.Check(false, "cannot transfer cards of %v", h)
	}
}
