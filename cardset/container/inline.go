package container

import (
	"sync/atomic"

	"github.com/joshuapare/cardkit/cardset/config"
	"github.com/joshuapare/cardkit/internal/invariant"
)

const inlineSizeMask = 1<<config.InlineSizeBits - 1

// NumInline returns the card count of an inline handle.
func (h Handle) NumInline() uint32 {
	return uint32(h>>tagBits) & inlineSizeMask
}

func inlineCard(h Handle, i, bits uint32) uint32 {
	return uint32(h>>(config.InlineHeaderBits+i*bits)) & (1<<bits - 1)
}

// inlineFind returns the index of card in h starting at from, or num.
func inlineFind(h Handle, card, bits, from, num uint32) uint32 {
	for i := from; i < num; i++ {
		if inlineCard(h, i, bits) == card {
			return i
		}
	}
	return num
}

func inlineMerge(h Handle, card, num, bits uint32) Handle {
	shift := config.InlineHeaderBits + num*bits
	h &^= inlineSizeMask << tagBits
	return h | Handle(num+1)<<tagBits | Handle(card)<<shift
}

// AddInline adds card to the inline handle stored at addr, whose last
// observed value is value. Overflow is returned when the handle is full or
// addr no longer holds an inline handle.
func AddInline(addr *atomic.Uint64, value Handle, card, bits, maxCards uint32) AddResult {
	invariant.Check(card < 1<<bits, "card %d wider than %d bits", card, bits)
	var from uint32
	for {
		if value.Type() != TypeInline {
			return Overflow
		}
		num := value.NumInline()
		if from = inlineFind(value, card, bits, from, num); from < num {
			return Found
		}
		if num >= maxCards {
			return Overflow
		}
		next := inlineMerge(value, card, num, bits)
		if addr.CompareAndSwap(uint64(value), uint64(next)) {
			return Added
		}
		// Cards only get appended, so the ones already checked stay checked.
		value = Handle(addr.Load())
	}
}

// InlineContains reports whether the inline handle h holds card.
func InlineContains(h Handle, card, bits uint32) bool {
	num := h.NumInline()
	return inlineFind(h, card, bits, 0, num) < num
}

// IterateInline calls fn for every card of the inline handle h.
func IterateInline(h Handle, bits uint32, fn func(card uint32)) {
	for i := range h.NumInline() {
		fn(inlineCard(h, i, bits))
	}
}

// MakeInline packs cards into an inline handle.
func MakeInline(bits uint32, cards ...uint32) Handle {
	invariant.Check(len(cards) <= inlineSizeMask, "%d cards do not fit an inline handle", len(cards))
	h := Free
	for i, c := range cards {
		h = inlineMerge(h, c, uint32(i), bits)
	}
	return h
}
