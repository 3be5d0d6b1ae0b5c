package container

import (
	"sync/atomic"

	"github.com/joshuapare/cardkit/internal/invariant"
)

const (
	retiredBit = 1
	refUnit    = 2
)

// InitHeader marks a fresh object live with one reference, its owner's.
func InitHeader(w *atomic.Uint64) {
	w.Store(refUnit)
}

// TryAcquire takes a reference on a live object. It fails once the object
// has been retired; the caller must then reload the handle it came from.
func TryAcquire(w *atomic.Uint64) bool {
	for {
		old := w.Load()
		if old&retiredBit != 0 || old < refUnit {
			return false
		}
		if w.CompareAndSwap(old, old+refUnit) {
			return true
		}
	}
}

// Release drops a reference and reports whether it was the last one. The
// object is then retired and the caller must free it.
func Release(w *atomic.Uint64) bool {
	n := w.Add(^uint64(refUnit - 1))
	invariant.Check(n&retiredBit == 0 && int64(n) >= 0, "release of retired or unowned object, header %#x", n)
	if n != 0 {
		return false
	}
	w.Store(retiredBit)
	return true
}

// RefCount returns the number of references held.
func RefCount(w *atomic.Uint64) uint64 {
	return w.Load() / refUnit
}

// IsLive reports whether the object has not been retired.
func IsLive(w *atomic.Uint64) bool {
	return w.Load()&retiredBit == 0
}
