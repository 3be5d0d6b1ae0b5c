package container

import (
	"runtime"
	"sync/atomic"

	"github.com/joshuapare/cardkit/cardset/config"
	"github.com/joshuapare/cardkit/internal/invariant"
)

// Array word layout.
const (
	arrayCount = 1
	arrayLock  = config.ArrayLockWord
	arrayCards = config.ArrayHeaderWords
)

// Array is a flat list of up to a configured number of cards, packed two
// per word. Adds are serialized by a per-instance spin lock; lookups are
// lock free. A card below the published count is never rewritten.
type Array struct {
	w []atomic.Uint64
}

// AsArray views slot words as an array container.
func AsArray(words []atomic.Uint64) Array { return Array{words} }

// InitArray prepares words as a live array holding card.
func InitArray(words []atomic.Uint64, card uint32) Array {
	a := Array{words}
	InitHeader(&words[0])
	words[arrayLock].Store(0)
	a.setCard(0, card)
	words[arrayCount].Store(1)
	return a
}

// Header returns the object header.
func (a Array) Header() *atomic.Uint64 { return &a.w[0] }

// Capacity is the number of cards the slot can hold.
func (a Array) Capacity() uint32 { return uint32(len(a.w)-arrayCards) * 2 }

// NumEntries is the number of cards stored.
func (a Array) NumEntries() uint32 { return uint32(a.w[arrayCount].Load()) }

func (a Array) card(i uint32) uint32 {
	return uint32(a.w[arrayCards+i/2].Load() >> (32 * (i % 2)))
}

// setCard writes slot i. Only the lock holder (or the initializer) writes.
func (a Array) setCard(i, card uint32) {
	word := &a.w[arrayCards+i/2]
	shift := 32 * (i % 2)
	old := word.Load()
	word.Store(old&^(0xffffffff<<shift) | uint64(card)<<shift)
}

func (a Array) find(card, from, num uint32) bool {
	for i := from; i < num; i++ {
		if a.card(i) == card {
			return true
		}
	}
	return false
}

// Add inserts card unless present. Overflow means the array holds
// maxCards cards and card is not among them.
func (a Array) Add(card, maxCards uint32) AddResult {
	invariant.Check(maxCards <= a.Capacity(), "array of %d slots asked for %d cards", a.Capacity(), maxCards)
	num := a.NumEntries()
	if a.find(card, 0, num) {
		return Found
	}
	if num >= maxCards {
		return Overflow
	}

	a.lock()
	defer a.unlock()
	cur := a.NumEntries()
	if a.find(card, num, cur) {
		return Found
	}
	if cur >= maxCards {
		return Overflow
	}
	a.setCard(cur, card)
	a.w[arrayCount].Store(uint64(cur + 1))
	return Added
}

func (a Array) lock() {
	l := &a.w[arrayLock]
	for spins := 0; !l.CompareAndSwap(0, 1); spins++ {
		if spins%64 == 63 {
			runtime.Gosched()
		}
	}
}

func (a Array) unlock() {
	a.w[arrayLock].Store(0)
}

// Contains reports whether card is stored.
func (a Array) Contains(card uint32) bool {
	return a.find(card, 0, a.NumEntries())
}

// Iterate calls fn for every stored card.
func (a Array) Iterate(fn func(card uint32)) {
	num := a.NumEntries()
	for i := range num {
		fn(a.card(i))
	}
}
