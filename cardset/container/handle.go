package container

import (
	"fmt"

	"github.com/joshuapare/cardkit/cardset/arena"
)

// Handle references the cards of one region.
type Handle uint64

// Type is the encoding a handle refers to.
type Type uint8

const (
	TypeInline Type = iota
	TypeArray
	TypeBitmap
	TypeHowl
	TypeFull
	NumTypes
)

const (
	tagBits = 2
	tagMask = 1<<tagBits - 1
)

const (
	// Free is the empty inline handle.
	Free Handle = 0
	// Full contains every card of its range.
	Full Handle = ^Handle(0)
)

var typeNames = [NumTypes]string{"Inline", "Array", "Bitmap", "Howl", "Full"}

func (t Type) String() string {
	if t < NumTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// MakeHandle tags an arena reference. t must be Array, Bitmap or Howl.
func MakeHandle(t Type, ref arena.Ref) Handle {
	return Handle(ref)<<tagBits | Handle(t)
}

// Type returns the encoding of h. Full is reported before the tag is read.
func (h Handle) Type() Type {
	if h == Full {
		return TypeFull
	}
	return Type(h & tagMask)
}

// Ref returns the arena reference of an object handle.
func (h Handle) Ref() arena.Ref {
	return arena.Ref(h >> tagBits)
}

// IsObject reports whether h refers to an arena object.
func (h Handle) IsObject() bool {
	switch h.Type() {
	case TypeArray, TypeBitmap, TypeHowl:
		return true
	}
	return false
}

func (h Handle) String() string {
	switch t := h.Type(); t {
	case TypeFull:
		return "Full"
	case TypeInline:
		if h == Free {
			return "Free"
		}
		return fmt.Sprintf("Inline(%d)", h.NumInline())
	default:
		return fmt.Sprintf("%s(%v)", t, h.Ref())
	}
}

// AddResult is the outcome of adding a card to a container.
type AddResult uint8

const (
	Overflow AddResult = iota // at capacity, coarsen and retry
	Found                     // already present
	Added                     // newly inserted
)

func (r AddResult) String() string {
	switch r {
	case Overflow:
		return "Overflow"
	case Found:
		return "Found"
	case Added:
		return "Added"
	}
	return fmt.Sprintf("AddResult(%d)", uint8(r))
}
