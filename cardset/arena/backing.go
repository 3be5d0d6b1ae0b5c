package arena

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/joshuapare/cardkit/internal/mmfile"
)

// Backing is the bulk memory primitive segments are carved from.
//
// Reserve returns zeroed storage for exactly words words plus a release
// function that gives it back. Memory is requested once per segment and
// released only when a pool trims or frees its segments.
type Backing interface {
	Reserve(words int) ([]atomic.Uint64, func() error, error)
	Name() string
}

// HeapBacking reserves segment storage on the Go heap.
type HeapBacking struct{}

// Reserve allocates a zeroed word slice.
func (HeapBacking) Reserve(words int) ([]atomic.Uint64, func() error, error) {
	return make([]atomic.Uint64, words), func() error { return nil }, nil
}

// Name implements Backing.
func (HeapBacking) Name() string { return "heap" }

// MmapBacking reserves segment storage from anonymous mappings, outside the
// Go heap. Each segment is mapped separately and rounded up to whole pages,
// so it suits large segment sizes.
type MmapBacking struct{}

// Reserve maps zeroed memory and views it as words.
func (MmapBacking) Reserve(words int) ([]atomic.Uint64, func() error, error) {
	data, cleanup, err := mmfile.MapAnon(words * 8)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	if words == 0 {
		return nil, cleanup, nil
	}
	// The mapping is page aligned and holds no Go pointers.
	w := unsafe.Slice((*atomic.Uint64)(unsafe.Pointer(unsafe.SliceData(data))), words)
	return w, cleanup, nil
}

// Name implements Backing.
func (MmapBacking) Name() string { return "mmap" }

// BackingByName returns the backing registered under name.
func BackingByName(name string) (Backing, error) {
	switch name {
	case "", "heap":
		return HeapBacking{}, nil
	case "mmap":
		return MmapBacking{}, nil
	}
	return nil, fmt.Errorf("arena: unknown backing %q", name)
}
