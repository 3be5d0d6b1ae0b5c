package container

import (
	"math/bits"
	"sync/atomic"

	"github.com/joshuapare/cardkit/cardset/config"
)

// Bitmap word layout.
const (
	bitmapBitsSet = 1
	bitmapBits    = config.BitmapHeaderWords
)

// Bitmap has one bit per card of its range. Bits are set with atomic OR;
// the set-bit counter follows each newly set bit.
type Bitmap struct {
	w []atomic.Uint64
}

// AsBitmap views slot words as a bitmap container.
func AsBitmap(words []atomic.Uint64) Bitmap { return Bitmap{words} }

// InitBitmap prepares words as a live bitmap of sizeInBits bits with only
// offset set.
func InitBitmap(words []atomic.Uint64, offset, sizeInBits uint32) Bitmap {
	b := Bitmap{words}
	InitHeader(&words[0])
	for i := range (sizeInBits + 63) / 64 {
		words[bitmapBits+i].Store(0)
	}
	words[bitmapBits+offset/64].Store(1 << (offset % 64))
	words[bitmapBitsSet].Store(1)
	return b
}

// Header returns the object header.
func (b Bitmap) Header() *atomic.Uint64 { return &b.w[0] }

// NumBitsSet is the number of cards stored.
func (b Bitmap) NumBitsSet() uint32 { return uint32(b.w[bitmapBitsSet].Load()) }

// Add sets offset. Once threshold bits are set the bitmap accepts no new
// bits and reports Overflow for absent ones.
func (b Bitmap) Add(offset, threshold uint32) AddResult {
	if b.NumBitsSet() >= threshold {
		if b.Contains(offset) {
			return Found
		}
		return Overflow
	}
	mask := uint64(1) << (offset % 64)
	if old := b.w[bitmapBits+offset/64].Or(mask); old&mask != 0 {
		return Found
	}
	b.w[bitmapBitsSet].Add(1)
	return Added
}

// Contains reports whether offset is set.
func (b Bitmap) Contains(offset uint32) bool {
	return b.w[bitmapBits+offset/64].Load()&(1<<(offset%64)) != 0
}

// Iterate calls fn with base+offset for every set bit below sizeInBits.
func (b Bitmap) Iterate(base, sizeInBits uint32, fn func(card uint32)) {
	for i := range (sizeInBits + 63) / 64 {
		word := b.w[bitmapBits+i].Load()
		for word != 0 {
			bit := uint32(bits.TrailingZeros64(word))
			fn(base + i*64 + bit)
			word &= word - 1
		}
	}
}
