// Package cardset implements a concurrent, memory-frugal set of card indices
// per card region: a remembered set.
//
// # Overview
//
// A CardSet maps each card region to an entry holding a container handle
// and an occupancy count. Containers start as an inline handle (no memory
// at all) and coarsen on overflow:
//
//	region:  Inline -> Array -> Howl   -> Full
//	                         -> Bitmap -> Full   (one howl bucket)
//	bucket:  Inline -> Array -> Bitmap -> Full
//
// A Howl splits the region into buckets that coarsen independently. Full
// claims every card and has no backing object.
//
// # Concurrency
//
// AddCard, ContainsCard, IterateCards and IterateContainers may run
// concurrently with each other. Clear, and the pool maintenance in
// cardset/memory, require exclusive access.
//
// Container objects are reference counted. A goroutine pins a container by
// loading its handle and taking a reference inside an epoch section; the
// coarsening winner drops the owner's reference, and the last reference
// frees the object through the memory manager. Freed slots are reused only
// after the free list's next transfer, which synchronizes with every open
// section, so a stale handle never sees a recycled object.
//
// # Occupancy
//
// Occupied counts every distinct card added since the last Clear. Races
// between a coarsening and its card transfer can overcount transiently;
// it never undercounts. A Full container counts as every card of its range.
//
// # Usage
//
//	cfg := config.MustNew(config.DefaultOptions)
//	pools := memory.NewPools(cfg, memory.PoolOptions{})
//	cs := cardset.New(memory.NewManager(pools))
//
//	cs.AddCard(3, 42)
//	cs.ContainsCard(3, 42) // true
//	cs.Clear()             // segments return to pools
package cardset
