// Package freelist implements a batched, epoch-protected free-list allocator
// for fixed-shape nodes.
//
// Released nodes are not immediately reusable: a concurrent Allocate may be
// in the middle of popping the very node being released (the ABA window of
// the lock-free free stack). Release therefore pushes onto one of two
// pending lists. Once the active pending list grows past the configured
// threshold, one releaser takes the transfer lock, flips the active index,
// waits for every open epoch section (in-flight pops and in-flight adds to
// the now inactive list) and splices the quiescent list onto the free stack
// in one step. The synchronization cost is paid once per batch.
package freelist

import (
	"sync/atomic"

	"github.com/joshuapare/cardkit/internal/epoch"
	"github.com/joshuapare/cardkit/internal/invariant"
	"github.com/joshuapare/cardkit/internal/lfstack"
	"github.com/joshuapare/cardkit/internal/logger"
)

// DefaultTransferThreshold is the pending count above which Release attempts
// a transfer.
const DefaultTransferThreshold = 10

// Config supplies the low-level allocation behind an Allocator.
type Config interface {
	// Allocate returns a fresh node when the free list is empty.
	Allocate() uint64
	// Deallocate gives a node back to the low-level allocator. Only called
	// by Destroy.
	Deallocate(ref uint64)
	// TransferThreshold is the pending count that triggers a transfer.
	TransferThreshold() uint64
}

// pendingList collects released nodes until they are transferred.
type pendingList struct {
	head  atomic.Uint64
	tail  atomic.Uint64
	count atomic.Uint64
}

// add pushes ref and returns the count after the add.
func (p *pendingList) add(link lfstack.Linker, ref uint64) uint64 {
	invariant.Check(link.Next(ref) == 0, "pending node %#x still linked", ref)
	old := p.head.Swap(ref)
	if old != 0 {
		link.SetNext(ref, old)
	} else {
		invariant.Check(p.tail.Load() == 0, "pending tail set on empty list")
		p.tail.Store(ref)
	}
	return p.count.Add(1)
}

// takeAll detaches the list. Only valid once no adder can be active.
func (p *pendingList) takeAll() (head, tail, count uint64) {
	head = p.head.Swap(0)
	tail = p.tail.Swap(0)
	count = p.count.Swap(0)
	return head, tail, count
}

// Allocator is the batched free-list allocator.
type Allocator struct {
	name    string
	cfg     Config
	link    lfstack.Linker
	counter *epoch.Counter

	freeCount     atomic.Uint64
	free          lfstack.Stack
	transferLock  atomic.Bool
	activePending atomic.Uint32
	pending       [2]pendingList

	transfers atomic.Uint64
}

// New creates an allocator. link stores the free link inside each node;
// counter is the epoch counter shared with every reader of those nodes.
func New(name string, cfg Config, link lfstack.Linker, counter *epoch.Counter) *Allocator {
	a := &Allocator{
		name:    name,
		cfg:     cfg,
		link:    link,
		counter: counter,
	}
	a.free.Init(link)
	return a
}

// Name returns the allocator name used in log output.
func (a *Allocator) Name() string { return a.name }

// Allocate returns a reusable node from the free list, or a fresh one from
// the Config when the free list is empty.
func (a *Allocator) Allocate() uint64 {
	var ref uint64
	if a.freeCount.Load() > 0 {
		// Protects the pop against reuse; see Release.
		s := a.counter.Enter()
		ref = a.free.Pop()
		s.Exit()
	}
	if ref != 0 {
		// Decremented only after the pop and incremented before the push,
		// so the count never underflows.
		n := a.freeCount.Add(^uint64(0))
		invariant.Check(n+1 != 0, "%s: free count underflow", a.name)
		return ref
	}
	return a.cfg.Allocate()
}

// Release hands ref back. It becomes allocatable after the next transfer.
func (a *Allocator) Release(ref uint64) {
	invariant.Check(ref != 0, "%s: release of zero node", a.name)
	a.link.SetNext(ref, 0)

	// Adding happens inside a section so a transfer waits until we are done
	// with what may be the list being transferred.
	s := a.counter.Enter()
	idx := a.activePending.Load()
	n := a.pending[idx].add(a.link, ref)
	s.Exit()

	if n > a.cfg.TransferThreshold() {
		a.TryTransferPending()
	}
}

// TryTransferPending moves the inactive pending list onto the free list.
// It returns false if another goroutine holds the transfer lock.
func (a *Allocator) TryTransferPending() bool {
	if a.transferLock.Load() || !a.transferLock.CompareAndSwap(false, true) {
		return false
	}

	// Only the lock holder writes the index.
	idx := a.activePending.Load()
	a.activePending.Store((idx + 1) % uint32(len(a.pending)))

	// Wait out free-list pops and adds to the now inactive list.
	a.counter.Synchronize()

	head, tail, count := a.pending[idx].takeAll()
	if count > 0 {
		// Count first so Allocate never underflows.
		a.freeCount.Add(count)
		a.free.Prepend(head, tail)
		a.transfers.Add(1)
		logger.Debug("freelist: transferred pending to free", "name", a.name, "count", count)
	}
	a.transferLock.Store(false)
	return true
}

// Reset drops every pending and free node without deallocating them. Used
// when the backing memory is discarded wholesale. Requires exclusive access.
func (a *Allocator) Reset() {
	for i := range a.pending {
		a.pending[i].takeAll()
	}
	a.free.PopAll()
	a.freeCount.Store(0)
}

// Destroy hands every pending and free node to Config.Deallocate and resets
// the allocator. Requires exclusive access.
func (a *Allocator) Destroy() {
	for i := range a.pending {
		head, _, _ := a.pending[i].takeAll()
		a.deleteList(head)
	}
	a.deleteList(a.free.PopAll())
	a.freeCount.Store(0)
}

func (a *Allocator) deleteList(ref uint64) {
	for ref != 0 {
		next := a.link.Next(ref)
		a.cfg.Deallocate(ref)
		ref = next
	}
}

// FreeCount is the number of nodes on the free list.
func (a *Allocator) FreeCount() uint64 { return a.freeCount.Load() }

// PendingCount is the number of released nodes awaiting transfer.
func (a *Allocator) PendingCount() uint64 {
	var n uint64
	for i := range a.pending {
		n += a.pending[i].count.Load()
	}
	return n
}

// Transfers is the number of completed non-empty transfers.
func (a *Allocator) Transfers() uint64 { return a.transfers.Load() }
