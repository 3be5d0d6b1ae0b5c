package memory

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/cardkit/cardset/arena"
	"github.com/joshuapare/cardkit/cardset/config"
)

func testConfig(t testing.TB) *config.Config {
	t.Helper()
	opts := config.SmallRegions
	opts.Arena = arena.OptionsFixed
	opts.TransferThreshold = 4
	c, err := config.New(opts)
	require.NoError(t, err)
	return c
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "HashNode", HashNode.String())
	assert.Equal(t, "Howl", Howl.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
	assert.Len(t, Kinds(), int(NumKinds))
}

func TestPools_SlotSizesFollowConfig(t *testing.T) {
	cfg := testConfig(t)
	p := NewPools(cfg, PoolOptions{})
	assert.Equal(t, cfg.HashNodeSlotWords(), p.Pool(HashNode).SlotWords())
	assert.Equal(t, cfg.ArraySlotWords(), p.Pool(Array).SlotWords())
	assert.Equal(t, cfg.BitmapSlotWords(), p.Pool(Bitmap).SlotWords())
	assert.Equal(t, cfg.HowlSlotWords(), p.Pool(Howl).SlotWords())
	assert.Equal(t, "heap", p.Pool(Array).Backing().Name())
	assert.Same(t, p.Counter(), p.Pool(Bitmap).Counter())
}

func TestManager_AllocateDistinct(t *testing.T) {
	m := NewManager(NewPools(testConfig(t), PoolOptions{}))

	for _, k := range Kinds() {
		seen := map[arena.Ref]bool{}
		for range 20 {
			r := m.Allocate(k)
			require.False(t, seen[r])
			seen[r] = true
			assert.Len(t, m.Words(k, r), int(SlotWords(m.Pools().Config(), k)))
		}
	}
	assert.Equal(t, uint64(4*3), m.NumSegments())
}

func TestManager_FreedSlotsReusedAfterTransfer(t *testing.T) {
	m := NewManager(NewPools(testConfig(t), PoolOptions{}))

	var refs []arena.Ref
	for range 5 {
		refs = append(refs, m.Allocate(Array))
	}
	// Pending until the threshold is crossed.
	for _, r := range refs[:4] {
		m.Free(Array, r)
	}
	st := m.Stats()[Array]
	assert.Equal(t, uint64(4), st.Pending)
	assert.Zero(t, st.Free)

	m.Free(Array, refs[4])
	m.TransferPending()
	st = m.Stats()[Array]
	assert.Equal(t, uint64(5), st.Free+st.Pending)
	assert.NotZero(t, st.Transfers)

	freed := map[arena.Ref]bool{}
	for _, r := range refs {
		freed[r] = true
	}
	for range st.Free {
		assert.True(t, freed[m.Allocate(Array)], "expected a recycled slot")
	}
}

func TestManager_FlushReturnsSegments(t *testing.T) {
	pools := NewPools(testConfig(t), PoolOptions{})
	m := NewManager(pools)
	for _, k := range Kinds() {
		for range 10 {
			m.Allocate(k)
		}
	}
	owned := m.MemSize()
	segs := m.NumSegments()
	require.NotZero(t, segs)

	m.Flush()
	assert.Zero(t, m.NumSegments())
	assert.Equal(t, segs, pools.NumFreeSegments())
	assert.Less(t, m.MemSize(), owned)
	for _, s := range m.Stats() {
		assert.Zero(t, s.Allocated)
		assert.Zero(t, s.Free)
	}

	// A second manager reuses the segments.
	m2 := NewManager(pools)
	for range 10 {
		m2.Allocate(Howl)
	}
	assert.Less(t, pools.NumFreeSegments(), segs)

	released := pools.Trim(0)
	assert.NotZero(t, released)
	assert.Zero(t, pools.FreeMemSize())
	pools.Close()
}

func TestManager_UnusedMemSize(t *testing.T) {
	m := NewManager(NewPools(testConfig(t), PoolOptions{}))
	assert.Zero(t, m.UnusedMemSize())

	r := m.Allocate(Bitmap)
	slotBytes := uint64(SlotWords(m.Pools().Config(), Bitmap)) * 8
	// One segment of 8 slots, one handed out.
	assert.Equal(t, 7*slotBytes, m.UnusedMemSize())

	m.Free(Bitmap, r)
	assert.Equal(t, 8*slotBytes, m.UnusedMemSize())
}

func TestManager_ConcurrentAllocateFree(t *testing.T) {
	m := NewManager(NewPools(testConfig(t), PoolOptions{}))

	const workers = 8
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var mine []arena.Ref
			for i := range 500 {
				r := m.Allocate(Array)
				words := m.Words(Array, r)
				words[0].Store(uint64(w))
				mine = append(mine, r)
				if i%3 == 0 {
					for _, r := range mine {
						// Nobody else may own a slot we hold.
						assert.Equal(t, uint64(w), m.Words(Array, r)[0].Load())
						m.Free(Array, r)
					}
					mine = mine[:0]
				}
			}
		}()
	}
	wg.Wait()

	st := m.Stats()[Array]
	assert.LessOrEqual(t, st.Free+st.Pending, st.Allocated)
}

func TestManager_PrintStats(t *testing.T) {
	m := NewManager(NewPools(testConfig(t), PoolOptions{Backing: arena.MmapBacking{}}))
	m.Allocate(HashNode)
	var buf bytes.Buffer
	m.PrintStats(&buf)
	out := buf.String()
	for _, k := range Kinds() {
		assert.Contains(t, out, k.String())
	}
	m.Flush()
	m.Pools().Close()
}

func TestKindStats_Efficiency(t *testing.T) {
	assert.Equal(t, 100.0, KindStats{}.Efficiency())
	s := KindStats{Capacity: 10, Allocated: 8, Free: 2, Pending: 1}
	assert.Equal(t, uint64(5), s.Live())
	assert.InDelta(t, 50.0, s.Efficiency(), 0.001)
}

func TestKind_LinkWord(t *testing.T) {
	assert.Equal(t, config.ArrayLockWord, Array.LinkWord())
	for _, k := range []Kind{HashNode, Bitmap, Howl} {
		assert.Equal(t, 1, k.LinkWord(), k.String())
	}
}

func TestManager_FreeLinksThroughLinkWordOnly(t *testing.T) {
	m := NewManager(NewPools(testConfig(t), PoolOptions{}))

	for _, k := range Kinds() {
		first, second := m.Allocate(k), m.Allocate(k)
		w := m.Words(k, second)
		for i := range w {
			w[i].Store(uint64(0xa0 + i))
		}
		m.Free(k, first)
		m.Free(k, second)

		for i := range w {
			if i == k.LinkWord() {
				assert.Equal(t, uint64(first), w[i].Load(), "%v link", k)
				continue
			}
			assert.Equal(t, uint64(0xa0+i), w[i].Load(), "%v word %d", k, i)
		}
	}
}
