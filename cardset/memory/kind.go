package memory

import (
	"fmt"

	"github.com/joshuapare/cardkit/cardset/config"
)

// Kind identifies one of the object types the memory manager serves. Each
// kind has its own slot size, segment pool, arena and free list.
type Kind uint8

const (
	HashNode Kind = iota // region table entry
	Array                // array container
	Bitmap               // bitmap container
	Howl                 // howl container
	NumKinds
)

var kindNames = [NumKinds]string{"HashNode", "Array", "Bitmap", "Howl"}

func (k Kind) String() string {
	if k < NumKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// LinkWord returns the slot word that carries the free-list link while a
// slot of kind k is free. A freed container may still be read inside an
// epoch section by a lookup that loaded its handle earlier, so the link
// goes into a word such lookups never read: the array lock word, or word 1
// for the other kinds (a counter read only by reference holders).
func (k Kind) LinkWord() int {
	if k == Array {
		return config.ArrayLockWord
	}
	return 1
}

// Kinds returns every kind in index order.
func Kinds() []Kind {
	return []Kind{HashNode, Array, Bitmap, Howl}
}
