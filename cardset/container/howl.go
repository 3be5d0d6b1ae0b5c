package container

import (
	"sync/atomic"

	"github.com/joshuapare/cardkit/cardset/config"
	"github.com/joshuapare/cardkit/internal/invariant"
)

// Howl word layout.
const (
	howlNumEntries = 1
	howlBuckets    = config.HowlHeaderWords
)

// Resolver maps an object handle to its slot words.
type Resolver interface {
	Words(h Handle) []atomic.Uint64
}

// Howl splits a region into equal buckets, each holding its own handle:
// Inline, Array, Bitmap or Full. Buckets coarsen independently; the howl
// as a whole coarsens once numEntries reaches the configured threshold.
type Howl struct {
	w []atomic.Uint64
}

// AsHowl views slot words as a howl container.
func AsHowl(words []atomic.Uint64) Howl { return Howl{words} }

// InitHowl prepares words as a live howl holding card. The entry count
// starts one above array capacity: the array being replaced was full and
// its cards are transferred without counting them again.
func InitHowl(words []atomic.Uint64, card uint32, cfg *config.Config) Howl {
	h := Howl{words}
	InitHeader(&words[0])
	words[howlNumEntries].Store(uint64(cfg.MaxCardsInArray()) + 1)
	bucket := cfg.HowlBucketIndex(card)
	for i := range cfg.NumBucketsInHowl() {
		words[howlBuckets+i].Store(uint64(Free))
	}
	words[howlBuckets+bucket].Store(uint64(MakeInline(cfg.InlineBitsPerCard(), card)))
	return h
}

// Header returns the object header.
func (h Howl) Header() *atomic.Uint64 { return &h.w[0] }

// NumEntries is the howl's card count. It may overcount.
func (h Howl) NumEntries() uint32 { return uint32(h.w[howlNumEntries].Load()) }

// AddEntries adjusts the card count.
func (h Howl) AddEntries(n uint32) { h.w[howlNumEntries].Add(uint64(n)) }

// NumBuckets is the bucket count.
func (h Howl) NumBuckets() uint32 { return uint32(len(h.w) - howlBuckets) }

// BucketAddr returns the handle word of bucket i.
func (h Howl) BucketAddr(i uint32) *atomic.Uint64 { return &h.w[howlBuckets+i] }

// Bucket returns the current handle of bucket i.
func (h Howl) Bucket(i uint32) Handle { return Handle(h.w[howlBuckets+i].Load()) }

// Contains reports whether card is held by its bucket. The caller must be
// inside an epoch section so bucket objects are not recycled under it.
func (h Howl) Contains(card uint32, cfg *config.Config, r Resolver) bool {
	b := h.Bucket(cfg.HowlBucketIndex(card))
	switch b.Type() {
	case TypeFull:
		return true
	case TypeInline:
		return InlineContains(b, card, cfg.InlineBitsPerCard())
	case TypeArray:
		return AsArray(r.Words(b)).Contains(card)
	case TypeBitmap:
		return AsBitmap(r.Words(b)).Contains(cfg.HowlBitmapOffset(card))
	}
	invariant.Check(false, "howl bucket holds %v", b)
	return false
}
