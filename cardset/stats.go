package cardset

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/joshuapare/cardkit/cardset/container"
)

// Transition is a coarsening step, either of a region's top-level container
// or of one howl bucket.
type Transition uint8

const (
	InlineToArray Transition = iota
	ArrayToHowl
	ArrayToBitmap
	BitmapToFull
	HowlToFull
	BucketInlineToArray
	BucketArrayToBitmap
	BucketBitmapToFull
	NumTransitions
)

var transitionNames = [NumTransitions]string{
	"Inline->Array",
	"Array->Howl",
	"Array->Bitmap",
	"Bitmap->Full",
	"Howl->Full",
	"Bucket Inline->Array",
	"Bucket Array->Bitmap",
	"Bucket Bitmap->Full",
}

func (t Transition) String() string {
	if t < NumTransitions {
		return transitionNames[t]
	}
	return fmt.Sprintf("Transition(%d)", uint8(t))
}

// transitionFrom names the step that coarsens a container of type from.
func transitionFrom(from container.Type, withinHowl, usesHowl bool) Transition {
	switch from {
	case container.TypeInline:
		if withinHowl {
			return BucketInlineToArray
		}
		return InlineToArray
	case container.TypeArray:
		switch {
		case withinHowl:
			return BucketArrayToBitmap
		case usesHowl:
			return ArrayToHowl
		}
		return ArrayToBitmap
	case container.TypeBitmap:
		if withinHowl {
			return BucketBitmapToFull
		}
		return BitmapToFull
	}
	return HowlToFull
}

// CoarsenStats counts coarsenings per transition: successful ones and CAS
// races lost to another goroutine. Counters are diagnostic only.
type CoarsenStats struct {
	coarsened  [NumTransitions]atomic.Uint64
	collisions [NumTransitions]atomic.Uint64
}

// Record counts one coarsening attempt.
func (s *CoarsenStats) Record(t Transition, collision bool) {
	if collision {
		s.collisions[t].Add(1)
	} else {
		s.coarsened[t].Add(1)
	}
}

// Snapshot copies the counters.
func (s *CoarsenStats) Snapshot() CoarsenSnapshot {
	var out CoarsenSnapshot
	for i := range NumTransitions {
		out.Coarsened[i] = s.coarsened[i].Load()
		out.Collisions[i] = s.collisions[i].Load()
	}
	return out
}

// CoarsenSnapshot is a point-in-time copy of CoarsenStats.
type CoarsenSnapshot struct {
	Coarsened  [NumTransitions]uint64
	Collisions [NumTransitions]uint64
}

// Sub returns the counts accumulated since prev.
func (c CoarsenSnapshot) Sub(prev CoarsenSnapshot) CoarsenSnapshot {
	for i := range NumTransitions {
		c.Coarsened[i] -= prev.Coarsened[i]
		c.Collisions[i] -= prev.Collisions[i]
	}
	return c
}

// Total is the number of successful coarsenings.
func (c CoarsenSnapshot) Total() uint64 {
	var n uint64
	for _, v := range c.Coarsened {
		n += v
	}
	return n
}

// Print writes one line per transition with a non-zero count.
func (c CoarsenSnapshot) Print(w io.Writer) {
	fmt.Fprintln(w, "coarsening (count/collisions):")
	for i := range NumTransitions {
		if c.Coarsened[i] == 0 && c.Collisions[i] == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-22s %d/%d\n", i, c.Coarsened[i], c.Collisions[i])
	}
}
