package cardset

import (
	"math/rand/v2"
	"testing"

	"github.com/joshuapare/cardkit/cardset/config"
)

// BenchmarkAddCard_Sparse adds random cards across many regions.
func BenchmarkAddCard_Sparse(b *testing.B) {
	cs, _ := newTestSet(b, func(o *config.Options) { *o = config.Balanced })
	rng := rand.New(rand.NewPCG(1, 1))
	cards := cs.Config().MaxCardsInRegion()

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		cs.AddCard(rng.Uint32N(4096), rng.Uint32N(cards))
	}
}

// BenchmarkAddCard_Parallel has every goroutine add into the same few
// regions, driving coarsening races.
func BenchmarkAddCard_Parallel(b *testing.B) {
	cs, _ := newTestSet(b, func(o *config.Options) { *o = config.Balanced })
	cards := cs.Config().MaxCardsInRegion()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewPCG(rand.Uint64(), 7))
		for pb.Next() {
			cs.AddCard(rng.Uint32N(16), rng.Uint32N(cards))
		}
	})
}

// BenchmarkContainsCard looks up cards in a populated set.
func BenchmarkContainsCard(b *testing.B) {
	cs, _ := newTestSet(b, func(o *config.Options) { *o = config.Balanced })
	rng := rand.New(rand.NewPCG(2, 2))
	cards := cs.Config().MaxCardsInRegion()
	for range 100_000 {
		cs.AddCard(rng.Uint32N(256), rng.Uint32N(cards))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rng := rand.New(rand.NewPCG(rand.Uint64(), 3))
		for pb.Next() {
			cs.ContainsCard(rng.Uint32N(256), rng.Uint32N(cards))
		}
	})
}

// BenchmarkClear measures filling and clearing a set with recycled segments.
func BenchmarkClear(b *testing.B) {
	cs, _ := newTestSet(b)
	rng := rand.New(rand.NewPCG(3, 3))

	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		for range 1000 {
			cs.AddCard(rng.Uint32N(64), rng.Uint32N(1024))
		}
		cs.Clear()
	}
}
