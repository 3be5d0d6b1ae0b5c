package arena

import "errors"

var (
	// ErrOutOfMemory indicates the backing could not supply segment memory.
	// The card set cannot make progress without it, so allocation paths
	// panic with an error wrapping this one.
	ErrOutOfMemory = errors.New("arena: out of memory")

	// ErrBadRef indicates a slot reference that names no live segment or an
	// out-of-range slot.
	ErrBadRef = errors.New("arena: bad slot reference")

	// ErrSlotCount indicates invalid segment sizing options.
	ErrSlotCount = errors.New("arena: invalid slot count")
)
