// Package config derives the card set's numeric tuning from heap geometry and
// tuning options.
//
// All coarsening thresholds are injected here; the container algorithms never
// hard-code them. The presets are starting points for tests and tooling, not
// recommendations for any particular heap.
package config

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/joshuapare/cardkit/cardset/arena"
	"github.com/joshuapare/cardkit/internal/freelist"
)

// ErrInvalid indicates inconsistent options.
var ErrInvalid = errors.New("config: invalid options")

const (
	// HandleBits is the width of a container handle.
	HandleBits = 64
	// InlineHeaderBits is the tag plus size field of an inline handle.
	InlineHeaderBits = 2 + InlineSizeBits
	// InlineSizeBits is the width of the inline handle's card count.
	InlineSizeBits = 3
	// MaxInlineCards is the largest count the size field can hold.
	MaxInlineCards = 1<<InlineSizeBits - 1

	// Fixed header words of the arena-backed objects.
	HashNodeWords     = 3
	ArrayHeaderWords  = 3
	BitmapHeaderWords = 2
	HowlHeaderWords   = 2

	// ArrayLockWord is the array header word holding the add lock.
	ArrayLockWord = 2
)

// Options are the tuning inputs.
type Options struct {
	// Name for this configuration (for logging and benchmarks)
	Name string

	// LogCardsPerRegion is log2 of the number of cards in one heap region.
	LogCardsPerRegion uint32
	// MaxLogCardsPerCardRegion caps the card index width. Heap regions with
	// more cards are split into several card regions.
	MaxLogCardsPerCardRegion uint32

	MaxCardsInArray     uint32 // Array container capacity
	NumBucketsInHowl    uint32 // Howl bucket count, power of two
	HowlToFullPercent   uint32 // Howl occupancy (% of region) that coarsens to Full
	BitmapToFullPercent uint32 // Bitmap occupancy (% of its range) that coarsens to Full

	Arena             arena.AllocOptions // Segment growth for every object kind
	TransferThreshold uint64             // Free-list pending batch size
}

// Predefined option sets.
var (
	// SmallRegions: 512 KB regions of 512 byte cards. Coarsens early.
	SmallRegions = Options{
		Name:                     "SmallRegions",
		LogCardsPerRegion:        10,
		MaxLogCardsPerCardRegion: 16,
		MaxCardsInArray:          8,
		NumBucketsInHowl:         4,
		HowlToFullPercent:        90,
		BitmapToFullPercent:      90,
		Arena:                    arena.OptionsGentle,
		TransferThreshold:        freelist.DefaultTransferThreshold,
	}

	// Balanced: 2 MB regions of 512 byte cards.
	Balanced = Options{
		Name:                     "Balanced",
		LogCardsPerRegion:        12,
		MaxLogCardsPerCardRegion: 16,
		MaxCardsInArray:          16,
		NumBucketsInHowl:         8,
		HowlToFullPercent:        90,
		BitmapToFullPercent:      90,
		Arena:                    arena.OptionsDoubling,
		TransferThreshold:        freelist.DefaultTransferThreshold,
	}

	// LargeRegions: 128 MB regions; each heap region is split into four
	// card regions to keep card indices at 16 bits.
	LargeRegions = Options{
		Name:                     "LargeRegions",
		LogCardsPerRegion:        18,
		MaxLogCardsPerCardRegion: 16,
		MaxCardsInArray:          64,
		NumBucketsInHowl:         64,
		HowlToFullPercent:        90,
		BitmapToFullPercent:      90,
		Arena:                    arena.OptionsDoubling,
		TransferThreshold:        freelist.DefaultTransferThreshold,
	}

	// DefaultOptions is used when none are specified.
	DefaultOptions = Balanced
)

// FromRegionSize returns opts with LogCardsPerRegion derived from a heap
// region size and card size, both powers of two in bytes.
func FromRegionSize(opts Options, regionBytes, cardBytes uint64) (Options, error) {
	if !isPow2(regionBytes) || !isPow2(cardBytes) || cardBytes >= regionBytes {
		return opts, fmt.Errorf("%w: region %d / card %d bytes must be powers of two, region > card",
			ErrInvalid, regionBytes, cardBytes)
	}
	opts.LogCardsPerRegion = uint32(bits.TrailingZeros64(regionBytes) - bits.TrailingZeros64(cardBytes))
	return opts, nil
}

// Config is the validated, derived configuration. It is immutable.
type Config struct {
	opts Options

	log2CardsPerCardRegion       uint32
	log2CardRegionsPerHeapRegion uint32
	maxCardsInRegion             uint32

	inlineBitsPerCard   uint32
	maxCardsInInlinePtr uint32

	log2NumBucketsInHowl       uint32
	log2MaxCardsInHowlBitmap   uint32
	maxCardsInHowlBitmap       uint32
	cardsInHowlBitmapThreshold uint32
	cardsInHowlThreshold       uint32
}

// New validates opts and derives the configuration.
func New(opts Options) (*Config, error) {
	if opts.LogCardsPerRegion < 2 || opts.LogCardsPerRegion > 31 {
		return nil, fmt.Errorf("%w: log cards per region %d outside [2, 31]", ErrInvalid, opts.LogCardsPerRegion)
	}
	if opts.MaxLogCardsPerCardRegion < 2 || opts.MaxLogCardsPerCardRegion > 31 {
		return nil, fmt.Errorf("%w: max log cards per card region %d outside [2, 31]", ErrInvalid, opts.MaxLogCardsPerCardRegion)
	}
	if opts.HowlToFullPercent == 0 || opts.HowlToFullPercent > 100 ||
		opts.BitmapToFullPercent == 0 || opts.BitmapToFullPercent > 100 {
		return nil, fmt.Errorf("%w: coarsening percentages must be in (0, 100]", ErrInvalid)
	}
	if err := opts.Arena.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if opts.TransferThreshold == 0 {
		opts.TransferThreshold = freelist.DefaultTransferThreshold
	}

	c := &Config{opts: opts}
	c.log2CardsPerCardRegion = min(opts.LogCardsPerRegion, opts.MaxLogCardsPerCardRegion)
	c.log2CardRegionsPerHeapRegion = opts.LogCardsPerRegion - c.log2CardsPerCardRegion
	c.maxCardsInRegion = 1 << c.log2CardsPerCardRegion

	c.inlineBitsPerCard = c.log2CardsPerCardRegion
	c.maxCardsInInlinePtr = min((HandleBits-InlineHeaderBits)/c.inlineBitsPerCard, MaxInlineCards)

	if opts.MaxCardsInArray <= c.maxCardsInInlinePtr {
		return nil, fmt.Errorf("%w: array capacity %d must exceed inline capacity %d",
			ErrInvalid, opts.MaxCardsInArray, c.maxCardsInInlinePtr)
	}

	if !isPow2(uint64(opts.NumBucketsInHowl)) || opts.NumBucketsInHowl > c.maxCardsInRegion/2 && opts.NumBucketsInHowl != 1 {
		return nil, fmt.Errorf("%w: howl bucket count %d must be a power of two and at most %d",
			ErrInvalid, opts.NumBucketsInHowl, c.maxCardsInRegion/2)
	}
	c.log2NumBucketsInHowl = uint32(bits.TrailingZeros32(opts.NumBucketsInHowl))
	c.log2MaxCardsInHowlBitmap = c.log2CardsPerCardRegion - c.log2NumBucketsInHowl
	c.maxCardsInHowlBitmap = 1 << c.log2MaxCardsInHowlBitmap
	c.cardsInHowlBitmapThreshold = max(1, uint32(uint64(c.maxCardsInHowlBitmap)*uint64(opts.BitmapToFullPercent)/100))
	c.cardsInHowlThreshold = max(1, uint32(uint64(c.maxCardsInRegion)*uint64(opts.HowlToFullPercent)/100))

	if opts.MaxCardsInArray >= c.cardsInHowlThreshold {
		return nil, fmt.Errorf("%w: array capacity %d must be below the howl threshold %d",
			ErrInvalid, opts.MaxCardsInArray, c.cardsInHowlThreshold)
	}
	return c, nil
}

// MustNew is New for static option sets; it panics on invalid options.
func MustNew(opts Options) *Config {
	c, err := New(opts)
	if err != nil {
		panic(err)
	}
	return c
}

// Options returns the options the configuration was derived from.
func (c *Config) Options() Options { return c.opts }

// MaxCardsInRegion is the number of cards in one card region.
func (c *Config) MaxCardsInRegion() uint32 { return c.maxCardsInRegion }

// Log2CardsPerCardRegion is log2 of MaxCardsInRegion.
func (c *Config) Log2CardsPerCardRegion() uint32 { return c.log2CardsPerCardRegion }

// Log2CardRegionsPerHeapRegion is log2 of the card regions per heap region.
func (c *Config) Log2CardRegionsPerHeapRegion() uint32 { return c.log2CardRegionsPerHeapRegion }

// InlineBitsPerCard is the width of one card in an inline handle.
func (c *Config) InlineBitsPerCard() uint32 { return c.inlineBitsPerCard }

// MaxCardsInInlinePtr is the inline handle capacity.
func (c *Config) MaxCardsInInlinePtr() uint32 { return c.maxCardsInInlinePtr }

// MaxCardsInArray is the array container capacity.
func (c *Config) MaxCardsInArray() uint32 { return c.opts.MaxCardsInArray }

// NumBucketsInHowl is the howl bucket count.
func (c *Config) NumBucketsInHowl() uint32 { return c.opts.NumBucketsInHowl }

// MaxCardsInHowlBitmap is the card range covered by one howl bucket, and the
// bit count of a bitmap container.
func (c *Config) MaxCardsInHowlBitmap() uint32 { return c.maxCardsInHowlBitmap }

// CardsInHowlBitmapThreshold is the bitmap occupancy at which a bitmap
// coarsens to Full.
func (c *Config) CardsInHowlBitmapThreshold() uint32 { return c.cardsInHowlBitmapThreshold }

// CardsInHowlThreshold is the howl occupancy at which a howl coarsens to Full.
func (c *Config) CardsInHowlThreshold() uint32 { return c.cardsInHowlThreshold }

// UsesHowl reports whether arrays coarsen into a howl. With a single bucket
// an array coarsens directly into a region-wide bitmap.
func (c *Config) UsesHowl() bool { return c.opts.NumBucketsInHowl > 1 }

// HowlBucketIndex returns the bucket covering card.
func (c *Config) HowlBucketIndex(card uint32) uint32 {
	return card >> c.log2MaxCardsInHowlBitmap
}

// HowlBitmapOffset returns card's bit index inside its bucket's bitmap.
func (c *Config) HowlBitmapOffset(card uint32) uint32 {
	return card & (c.maxCardsInHowlBitmap - 1)
}

// HowlBucketStart returns the first card covered by bucket.
func (c *Config) HowlBucketStart(bucket uint32) uint32 {
	return bucket << c.log2MaxCardsInHowlBitmap
}

// CardRegion maps a card of a heap region to its card region and the card
// index inside it.
func (c *Config) CardRegion(heapRegion, cardInHeapRegion uint32) (cardRegion, cardInRegion uint32) {
	offset := cardInHeapRegion >> c.log2CardsPerCardRegion
	return heapRegion<<c.log2CardRegionsPerHeapRegion | offset, cardInHeapRegion & (c.maxCardsInRegion - 1)
}

// HeapCard is the inverse of CardRegion.
func (c *Config) HeapCard(cardRegion, cardInRegion uint32) (heapRegion, cardInHeapRegion uint32) {
	heapRegion = cardRegion >> c.log2CardRegionsPerHeapRegion
	offset := cardRegion & (1<<c.log2CardRegionsPerHeapRegion - 1)
	return heapRegion, offset<<c.log2CardsPerCardRegion | cardInRegion
}

// Slot sizes in words of each arena-backed object.

// HashNodeSlotWords is the hash entry size.
func (c *Config) HashNodeSlotWords() uint32 { return HashNodeWords }

// ArraySlotWords is the array container size.
func (c *Config) ArraySlotWords() uint32 {
	return ArrayHeaderWords + (c.opts.MaxCardsInArray+1)/2
}

// BitmapSlotWords is the bitmap container size.
func (c *Config) BitmapSlotWords() uint32 {
	return BitmapHeaderWords + (c.maxCardsInHowlBitmap+63)/64
}

// HowlSlotWords is the howl container size.
func (c *Config) HowlSlotWords() uint32 {
	return HowlHeaderWords + c.opts.NumBucketsInHowl
}

func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "card set configuration %q\n", c.opts.Name)
	fmt.Fprintf(&b, "  cards per card region:      %d (card regions per heap region: %d)\n",
		c.maxCardsInRegion, 1<<c.log2CardRegionsPerHeapRegion)
	fmt.Fprintf(&b, "  inline:                     %d cards x %d bits\n", c.maxCardsInInlinePtr, c.inlineBitsPerCard)
	fmt.Fprintf(&b, "  array:                      %d cards\n", c.opts.MaxCardsInArray)
	fmt.Fprintf(&b, "  howl:                       %d buckets, full at %d cards\n", c.opts.NumBucketsInHowl, c.cardsInHowlThreshold)
	fmt.Fprintf(&b, "  bitmap:                     %d bits, full at %d cards\n", c.maxCardsInHowlBitmap, c.cardsInHowlBitmapThreshold)
	fmt.Fprintf(&b, "  slot words (node/arr/bm/howl): %d/%d/%d/%d\n",
		c.HashNodeSlotWords(), c.ArraySlotWords(), c.BitmapSlotWords(), c.HowlSlotWords())
	fmt.Fprintf(&b, "  segments:                   %v, transfer threshold %d\n", c.opts.Arena, c.opts.TransferThreshold)
	return b.String()
}

func isPow2(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}
