package arena

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/cardkit/internal/epoch"
)

func newTestPool(t *testing.T, slotWords uint32) *Pool {
	t.Helper()
	return NewPool(t.Name(), slotWords, HeapBacking{}, epoch.New(0))
}

func TestAllocOptions_NextNumSlots(t *testing.T) {
	tests := []struct {
		name string
		opts AllocOptions
		prev uint32
		want uint32
	}{
		{"first segment", OptionsDoubling, 0, 8},
		{"doubles", OptionsDoubling, 8, 16},
		{"caps at max", OptionsDoubling, 1 << 16, 1 << 16},
		{"gentle rounds up", OptionsGentle, 9, 14},
		{"fixed", OptionsFixed, 8, 8},
		{"recycled small segment", AllocOptions{InitialNumSlots: 16, MaxNumSlots: 64, GrowthFactor: 2}, 4, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opts.NextNumSlots(tt.prev))
		})
	}
}

func TestAllocOptions_Validate(t *testing.T) {
	require.NoError(t, DefaultOptions.Validate())
	require.NoError(t, OptionsGentle.Validate())

	bad := []AllocOptions{
		{InitialNumSlots: 0, MaxNumSlots: 8, GrowthFactor: 2},
		{InitialNumSlots: 16, MaxNumSlots: 8, GrowthFactor: 2},
		{InitialNumSlots: 8, MaxNumSlots: MaxSlotsPerSegment + 1, GrowthFactor: 2},
		{InitialNumSlots: 8, MaxNumSlots: 16, GrowthFactor: 0.5},
	}
	for _, o := range bad {
		assert.ErrorIs(t, o.Validate(), ErrSlotCount, "%+v", o)
	}
}

func TestRef_RoundTrip(t *testing.T) {
	r := MakeRef(7, 42)
	assert.Equal(t, uint32(7), r.Segment())
	assert.Equal(t, uint32(42), r.Slot())
	assert.Equal(t, "7:42", r.String())
}

func TestArena_BumpAllocatesDistinctSlots(t *testing.T) {
	a := New(newTestPool(t, 4), OptionsFixed)

	seen := map[Ref]bool{}
	for range 8 {
		r := a.Allocate()
		require.NotZero(t, r)
		require.False(t, seen[r], "slot %v handed out twice", r)
		seen[r] = true
	}
	assert.Equal(t, uint64(1), a.NumSegments())
	assert.Equal(t, uint64(8), a.NumAllocatedSlots())
	assert.Equal(t, uint64(8), a.NumTotalSlots())

	// Ninth allocation needs a second segment.
	a.Allocate()
	assert.Equal(t, uint64(2), a.NumSegments())
	assert.Equal(t, uint64(16), a.NumTotalSlots())
}

func TestArena_GeometricGrowth(t *testing.T) {
	a := New(newTestPool(t, 2), OptionsDoubling)

	for range 8 + 16 + 1 {
		a.Allocate()
	}
	assert.Equal(t, uint64(3), a.NumSegments())
	assert.Equal(t, uint32(32), a.CurrentSegment().NumSlots())
	assert.Equal(t, uint64(8+16+32), a.NumTotalSlots())
}

func TestArena_SlotsDoNotOverlap(t *testing.T) {
	a := New(newTestPool(t, 3), OptionsFixed)

	refs := make([]Ref, 20)
	for i := range refs {
		refs[i] = a.Allocate()
		w := a.Words(refs[i])
		require.Len(t, w, 3)
		for j := range w {
			w[j].Store(uint64(i))
		}
	}
	for i, r := range refs {
		w := a.Words(r)
		for j := range w {
			assert.Equal(t, uint64(i), w[j].Load())
		}
	}
}

func TestArena_DropAllReturnsSegmentsToPool(t *testing.T) {
	pool := newTestPool(t, 4)
	a := New(pool, OptionsDoubling)
	for range 30 {
		a.Allocate()
	}
	segs := a.NumSegments()
	mem := a.MemSize()
	require.Equal(t, uint64(3), segs)

	a.DropAll()

	assert.Zero(t, a.NumSegments())
	assert.Zero(t, a.MemSize())
	assert.Zero(t, a.NumAllocatedSlots())
	assert.Nil(t, a.CurrentSegment())
	assert.Equal(t, segs, pool.NumFreeSegments())
	assert.Equal(t, mem, pool.FreeMemSize())
	assert.Equal(t, int(segs), pool.FreeListLength())
}

func TestArena_RecyclesPoolSegments(t *testing.T) {
	pool := newTestPool(t, 4)
	a1 := New(pool, OptionsFixed)
	for range 16 {
		a1.Allocate()
	}
	a1.DropAll()
	created := pool.NumCreated()

	a2 := New(pool, OptionsFixed)
	for range 16 {
		a2.Allocate()
	}
	assert.Equal(t, created, pool.NumCreated(), "second arena should reuse dropped segments")
	assert.Zero(t, pool.NumFreeSegments())
	assert.Zero(t, pool.FreeMemSize())
}

func TestArena_ConcurrentAllocate(t *testing.T) {
	pool := newTestPool(t, 2)
	a := New(pool, OptionsGentle)

	const workers = 8
	const perWorker = 2000
	var wg sync.WaitGroup
	refs := make([][]Ref, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				r := a.Allocate()
				a.Words(r)[0].Store(uint64(w*perWorker + i))
				refs[w] = append(refs[w], r)
			}
		}()
	}
	wg.Wait()

	seen := map[Ref]bool{}
	for w := range workers {
		for i, r := range refs[w] {
			require.False(t, seen[r], "duplicate slot %v", r)
			seen[r] = true
			assert.Equal(t, uint64(w*perWorker+i), a.Words(r)[0].Load())
		}
	}
	assert.Equal(t, uint64(workers*perWorker), a.NumAllocatedSlots())
	assert.GreaterOrEqual(t, a.NumTotalSlots(), uint64(workers*perWorker))
	// Lost installation races return their segment to the backing.
	assert.Equal(t, int64(a.NumSegments()), pool.NumLiveSegments())
}

func TestPool_TrimKeepsBudget(t *testing.T) {
	pool := newTestPool(t, 8)
	a := New(pool, OptionsFixed)
	for range 8 * 4 {
		a.Allocate()
	}
	segMem := a.CurrentSegment().MemSize()
	a.DropAll()
	require.Equal(t, uint64(4), pool.NumFreeSegments())

	released := pool.Trim(segMem * 2)
	assert.Equal(t, segMem*2, released)
	assert.Equal(t, uint64(2), pool.NumFreeSegments())
	assert.Equal(t, segMem*2, pool.FreeMemSize())
	assert.Equal(t, int64(2), pool.NumLiveSegments())

	pool.FreeAll()
	assert.Zero(t, pool.NumFreeSegments())
	assert.Zero(t, pool.NumLiveSegments())
}

func TestPool_LookupRejectsBadRefs(t *testing.T) {
	pool := newTestPool(t, 2)
	a := New(pool, OptionsFixed)
	r := a.Allocate()

	_, err := pool.Lookup(r)
	require.NoError(t, err)

	_, err = pool.Lookup(MakeRef(r.Segment(), 1000))
	assert.ErrorIs(t, err, ErrBadRef)
	_, err = pool.Lookup(MakeRef(999, 0))
	assert.ErrorIs(t, err, ErrBadRef)
}

type failingBacking struct{ calls atomic.Int64 }

func (b *failingBacking) Reserve(int) ([]atomic.Uint64, func() error, error) {
	b.calls.Add(1)
	return nil, nil, ErrOutOfMemory
}

func (b *failingBacking) Name() string { return "failing" }

func TestArena_ExhaustionIsFatal(t *testing.T) {
	pool := NewPool("failing", 2, &failingBacking{}, epoch.New(0))
	a := New(pool, OptionsFixed)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrOutOfMemory)
	}()
	a.Allocate()
	t.Fatal("Allocate should have panicked")
}

func TestMmapBacking_Reserve(t *testing.T) {
	pool := NewPool("mmap", 4, MmapBacking{}, epoch.New(0))
	a := New(pool, OptionsFixed)
	r := a.Allocate()
	w := a.Words(r)
	w[3].Store(0xfeed)
	assert.Equal(t, uint64(0xfeed), w[3].Load())

	a.DropAll()
	assert.Equal(t, uint64(1), pool.NumFreeSegments())
	pool.FreeAll()
	assert.Zero(t, pool.NumLiveSegments())
}

func TestBackingByName(t *testing.T) {
	b, err := BackingByName("mmap")
	require.NoError(t, err)
	assert.Equal(t, "mmap", b.Name())

	b, err = BackingByName("")
	require.NoError(t, err)
	assert.Equal(t, "heap", b.Name())

	_, err = BackingByName("bogus")
	assert.Error(t, err)
}
