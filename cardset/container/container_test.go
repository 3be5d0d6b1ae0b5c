package container

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/cardkit/cardset/arena"
	"github.com/joshuapare/cardkit/cardset/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	opts := config.SmallRegions // 1024 cards, 10 bit inline cards
	opts.MaxCardsInArray = 8
	opts.NumBucketsInHowl = 4
	opts.BitmapToFullPercent = 50
	c, err := config.New(opts)
	require.NoError(t, err)
	return c
}

func TestHandle_Types(t *testing.T) {
	tests := []struct {
		h    Handle
		want Type
		str  string
	}{
		{Free, TypeInline, "Free"},
		{Full, TypeFull, "Full"},
		{MakeInline(10, 1, 2), TypeInline, "Inline(2)"},
		{MakeHandle(TypeArray, arena.MakeRef(3, 4)), TypeArray, "Array(3:4)"},
		{MakeHandle(TypeBitmap, arena.MakeRef(1, 0)), TypeBitmap, "Bitmap(1:0)"},
		{MakeHandle(TypeHowl, arena.MakeRef(9, 9)), TypeHowl, "Howl(9:9)"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.h.Type())
			assert.Equal(t, tt.str, tt.h.String())
			assert.Equal(t, tt.want != TypeInline && tt.want != TypeFull, tt.h.IsObject())
		})
	}
	assert.Equal(t, arena.MakeRef(3, 4), MakeHandle(TypeArray, arena.MakeRef(3, 4)).Ref())
}

func TestHeader_RefCounting(t *testing.T) {
	var w atomic.Uint64
	InitHeader(&w)
	assert.True(t, IsLive(&w))
	assert.Equal(t, uint64(1), RefCount(&w))

	require.True(t, TryAcquire(&w))
	assert.Equal(t, uint64(2), RefCount(&w))
	assert.False(t, Release(&w))
	assert.True(t, Release(&w), "last reference")

	assert.False(t, IsLive(&w))
	assert.False(t, TryAcquire(&w), "retired objects cannot be acquired")
}

func TestInline_Add(t *testing.T) {
	const bits, maxCards = 10, 5
	var addr atomic.Uint64

	for i, card := range []uint32{7, 1023, 0, 512, 3} {
		h := Handle(addr.Load())
		require.Equal(t, Added, AddInline(&addr, h, card, bits, maxCards), "card %d", card)
		assert.Equal(t, uint32(i+1), Handle(addr.Load()).NumInline())
	}
	h := Handle(addr.Load())
	assert.Equal(t, Found, AddInline(&addr, h, 1023, bits, maxCards))
	assert.Equal(t, Overflow, AddInline(&addr, h, 4, bits, maxCards))

	var got []uint32
	IterateInline(h, bits, func(c uint32) { got = append(got, c) })
	assert.Equal(t, []uint32{7, 1023, 0, 512, 3}, got)
	assert.True(t, InlineContains(h, 0, bits))
	assert.False(t, InlineContains(h, 4, bits))
}

func TestInline_AddAfterConcurrentChange(t *testing.T) {
	var addr atomic.Uint64
	stale := Handle(addr.Load())
	addr.Store(uint64(MakeInline(10, 5)))

	// The CAS against the stale value fails and the add re-reads.
	assert.Equal(t, Added, AddInline(&addr, stale, 6, 10, 5))
	assert.Equal(t, MakeInline(10, 5, 6), Handle(addr.Load()))

	addr.Store(uint64(MakeHandle(TypeArray, arena.MakeRef(1, 1))))
	assert.Equal(t, Overflow, AddInline(&addr, MakeInline(10, 5, 6), 7, 10, 5))
}

func TestInline_ConcurrentAdds(t *testing.T) {
	var addr atomic.Uint64
	var added atomic.Int32
	var wg sync.WaitGroup
	for g := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, c := range []uint32{uint32(g), 100, 200} {
				if AddInline(&addr, Handle(addr.Load()), c, 10, 7) == Added {
					added.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	h := Handle(addr.Load())
	// 6 distinct + 100 + 200 = 8 cards, capacity 7: one add overflowed.
	assert.Equal(t, uint32(7), h.NumInline())
	assert.Equal(t, int32(7), added.Load())
}

func TestArray_AddContainsOverflow(t *testing.T) {
	words := make([]atomic.Uint64, config.ArrayHeaderWords+4)
	a := InitArray(words, 42)
	assert.Equal(t, uint32(8), a.Capacity())
	assert.Equal(t, uint64(1), RefCount(a.Header()))

	assert.Equal(t, Found, a.Add(42, 8))
	for c := range uint32(7) {
		require.Equal(t, Added, a.Add(c, 8))
	}
	assert.Equal(t, uint32(8), a.NumEntries())
	assert.Equal(t, Overflow, a.Add(99, 8))
	assert.Equal(t, Found, a.Add(6, 8))

	var got []uint32
	a.Iterate(func(c uint32) { got = append(got, c) })
	assert.Equal(t, []uint32{42, 0, 1, 2, 3, 4, 5, 6}, got)
	assert.True(t, a.Contains(3))
	assert.False(t, a.Contains(99))
}

func TestArray_ConcurrentAddsNeverDuplicate(t *testing.T) {
	const maxCards = 64
	words := make([]atomic.Uint64, config.ArrayHeaderWords+maxCards/2)
	a := InitArray(words, 1000)

	var wg sync.WaitGroup
	var added atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range uint32(40) {
				if a.Add(c, maxCards) == Added {
					added.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(40), added.Load())
	assert.Equal(t, uint32(41), a.NumEntries())

	seen := map[uint32]bool{}
	a.Iterate(func(c uint32) {
		assert.False(t, seen[c], "duplicate %d", c)
		seen[c] = true
	})
}

func TestBitmap_AddThreshold(t *testing.T) {
	const size, threshold = 128, 4
	words := make([]atomic.Uint64, config.BitmapHeaderWords+2)
	for i := range words {
		words[i].Store(^uint64(0)) // stale slot contents
	}
	b := InitBitmap(words, 70, size)
	assert.Equal(t, uint32(1), b.NumBitsSet())
	assert.True(t, b.Contains(70))
	assert.False(t, b.Contains(0))

	assert.Equal(t, Found, b.Add(70, threshold))
	assert.Equal(t, Added, b.Add(0, threshold))
	assert.Equal(t, Added, b.Add(127, threshold))
	assert.Equal(t, Added, b.Add(64, threshold))
	assert.Equal(t, uint32(4), b.NumBitsSet())

	assert.Equal(t, Overflow, b.Add(5, threshold))
	assert.Equal(t, Found, b.Add(127, threshold))

	var got []uint32
	b.Iterate(1000, size, func(c uint32) { got = append(got, c) })
	assert.Equal(t, []uint32{1000, 1064, 1070, 1127}, got)
}

type sliceResolver map[Handle][]atomic.Uint64

func (r sliceResolver) Words(h Handle) []atomic.Uint64 { return r[h] }

func TestHowl_InitAndContains(t *testing.T) {
	cfg := testConfig(t)
	words := make([]atomic.Uint64, cfg.HowlSlotWords())
	h := InitHowl(words, 300, cfg)

	assert.Equal(t, cfg.NumBucketsInHowl(), h.NumBuckets())
	assert.Equal(t, cfg.MaxCardsInArray()+1, h.NumEntries())
	assert.Equal(t, MakeInline(cfg.InlineBitsPerCard(), 300), h.Bucket(cfg.HowlBucketIndex(300)))
	for i := range h.NumBuckets() {
		if i != cfg.HowlBucketIndex(300) {
			assert.Equal(t, Free, h.Bucket(i))
		}
	}

	r := sliceResolver{}
	assert.True(t, h.Contains(300, cfg, r))
	assert.False(t, h.Contains(301, cfg, r))

	// Bucket 0 becomes a bitmap, bucket 3 becomes full.
	bmWords := make([]atomic.Uint64, cfg.BitmapSlotWords())
	InitBitmap(bmWords, cfg.HowlBitmapOffset(17), cfg.MaxCardsInHowlBitmap())
	bm := MakeHandle(TypeBitmap, arena.MakeRef(1, 0))
	r[bm] = bmWords
	h.BucketAddr(0).Store(uint64(bm))
	h.BucketAddr(3).Store(uint64(Full))

	assert.True(t, h.Contains(17, cfg, r))
	assert.False(t, h.Contains(18, cfg, r))
	assert.True(t, h.Contains(1000, cfg, r))

	h.AddEntries(5)
	assert.Equal(t, cfg.MaxCardsInArray()+6, h.NumEntries())
}

func TestAddResultString(t *testing.T) {
	assert.Equal(t, "Overflow", Overflow.String())
	assert.Equal(t, "Found", Found.String())
	assert.Equal(t, "Added", Added.String())
	assert.Equal(t, "Full", TypeFull.String())
}
