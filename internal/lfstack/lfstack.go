// Package lfstack is an intrusive lock-free LIFO of externally owned nodes.
//
// Nodes are named by non-zero uint64 references; 0 is the empty link. The
// stack does not own or allocate nodes. The caller embeds the next link in
// the node's own storage and exposes it through a Linker.
//
// Pop is subject to the ABA problem: between reading the top node's next
// link and the compare-and-swap, the node may be popped, reused and pushed
// again. Callers whose nodes can be reused concurrently must pop inside an
// epoch critical section and synchronize before reuse.
package lfstack

import "sync/atomic"

// Linker reads and writes the next link stored inside a node.
type Linker interface {
	Next(ref uint64) uint64
	SetNext(ref, next uint64)
}

// Stack is the head of a lock-free stack. The zero value with a Linker set
// via Init is an empty stack.
type Stack struct {
	top  atomic.Uint64
	link Linker
}

// New returns an empty stack using link for node links.
func New(link Linker) *Stack {
	s := &Stack{}
	s.Init(link)
	return s
}

// Init sets the linker of an embedded Stack. It must be called before use.
func (s *Stack) Init(link Linker) {
	s.link = link
}

// Push adds ref on top of the stack.
func (s *Stack) Push(ref uint64) {
	s.Prepend(ref, ref)
}

// Prepend splices the list first..last (linked through the Linker) in front
// of the current top, preserving its order.
func (s *Stack) Prepend(first, last uint64) {
	cur := s.top.Load()
	for {
		s.link.SetNext(last, cur)
		if s.top.CompareAndSwap(cur, first) {
			return
		}
		cur = s.top.Load()
	}
}

// PrependList splices a 0-terminated list starting at first, walking it to
// find its last node.
func (s *Stack) PrependList(first uint64) {
	if first == 0 {
		return
	}
	last := first
	for next := s.link.Next(last); next != 0; next = s.link.Next(last) {
		last = next
	}
	s.Prepend(first, last)
}

// Pop removes and returns the top node, or 0 when the stack is empty.
// The returned node's next link is cleared.
func (s *Stack) Pop() uint64 {
	for {
		top := s.top.Load()
		if top == 0 {
			return 0
		}
		next := s.link.Next(top)
		if s.top.CompareAndSwap(top, next) {
			s.link.SetNext(top, 0)
			return top
		}
	}
}

// PopAll detaches the whole stack and returns its first node (0 if empty).
// The detached nodes keep their links.
func (s *Stack) PopAll() uint64 {
	return s.top.Swap(0)
}

// Empty reports whether the stack has no nodes.
func (s *Stack) Empty() bool {
	return s.top.Load() == 0
}

// Top returns the top node without removing it.
func (s *Stack) Top() uint64 {
	return s.top.Load()
}

// Length walks the stack. Not safe against concurrent modification.
func (s *Stack) Length() int {
	n := 0
	for ref := s.top.Load(); ref != 0; ref = s.link.Next(ref) {
		n++
	}
	return n
}
