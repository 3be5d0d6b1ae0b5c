package memory

import (
	"github.com/joshuapare/cardkit/cardset/arena"
	"github.com/joshuapare/cardkit/cardset/config"
	"github.com/joshuapare/cardkit/internal/epoch"
	"github.com/joshuapare/cardkit/internal/logger"
)

// PoolOptions configures a Pools service.
type PoolOptions struct {
	// Backing supplies segment memory. Defaults to the Go heap.
	Backing arena.Backing
	// EpochSlots sizes the epoch counter; 0 picks the default.
	EpochSlots int
}

// Pools is the service shared by every card set built from one
// configuration: the epoch counter and one free-segment pool per kind.
//
// Card sets return their segments here on Clear and take them back as they
// grow. Pools must outlive every Manager created from it.
type Pools struct {
	cfg     *config.Config
	counter *epoch.Counter
	pools   [NumKinds]*arena.Pool
}

// NewPools creates the pools for cfg.
func NewPools(cfg *config.Config, opts PoolOptions) *Pools {
	backing := opts.Backing
	if backing == nil {
		backing = arena.HeapBacking{}
	}
	p := &Pools{
		cfg:     cfg,
		counter: epoch.New(opts.EpochSlots),
	}
	for _, k := range Kinds() {
		p.pools[k] = arena.NewPool(k.String(), SlotWords(cfg, k), backing, p.counter)
	}
	return p
}

// SlotWords returns the slot size of kind k under cfg.
func SlotWords(cfg *config.Config, k Kind) uint32 {
	switch k {
	case HashNode:
		return cfg.HashNodeSlotWords()
	case Array:
		return cfg.ArraySlotWords()
	case Bitmap:
		return cfg.BitmapSlotWords()
	case Howl:
		return cfg.HowlSlotWords()
	}
	panic("memory: unknown kind " + k.String())
}

// Config returns the configuration the pools were sized for.
func (p *Pools) Config() *config.Config { return p.cfg }

// Counter returns the epoch counter shared by every manager and card set
// using these pools.
func (p *Pools) Counter() *epoch.Counter { return p.counter }

// Pool returns the segment pool of kind k.
func (p *Pools) Pool(k Kind) *arena.Pool { return p.pools[k] }

// FreeMemSize is the memory held by free segments across all kinds.
func (p *Pools) FreeMemSize() uint64 {
	var total uint64
	for _, pool := range p.pools {
		total += pool.FreeMemSize()
	}
	return total
}

// NumFreeSegments is the number of free segments across all kinds.
func (p *Pools) NumFreeSegments() uint64 {
	var total uint64
	for _, pool := range p.pools {
		total += pool.NumFreeSegments()
	}
	return total
}

// Trim releases free segments until at most keepBytes remain per kind. It
// returns the number of bytes given back. No card set may be allocating.
func (p *Pools) Trim(keepBytes uint64) uint64 {
	var released uint64
	for _, pool := range p.pools {
		released += pool.Trim(keepBytes)
	}
	if released > 0 {
		logger.Info("memory: pools trimmed", "released", released, "keepPerKind", keepBytes)
	}
	return released
}

// Close releases every free segment. Segments still owned by managers are
// untouched; Flush them first.
func (p *Pools) Close() {
	for _, pool := range p.pools {
		pool.FreeAll()
	}
}
