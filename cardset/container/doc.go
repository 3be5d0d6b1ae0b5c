// Package container implements the encodings a card set uses for the cards of
// one region, and the lock-free add/contains/iterate algorithm of each.
//
// # Handles
//
// A region's cards are reached through a 64-bit Handle:
//
//	bits 0-1   tag: Inline(0) Array(1) Bitmap(2) Howl(3)
//	Inline:    bits 2-4 card count, then packed cards of a fixed width
//	others:    bits 2-63 arena reference of the container object
//
// Two values are reserved. Free (zero) is an inline handle without cards.
// Full (all ones) claims every card of the region and is never backed by an
// object; it must be tested before the tag.
//
// # Objects
//
// Array, Bitmap and Howl objects live in arena slots and are accessed as
// word slices. Word 0 is the header shared by all of them:
//
//	bit 0      retired
//	bits 1-63  reference count
//
// An object starts live with one reference held by its owner (a region
// table entry or a howl bucket). Readers take extra references with
// TryAcquire inside an epoch section; whoever drops the last reference
// retires the object and must free it.
//
// # Results
//
// Add reports Found, Added or Overflow. Overflow means the container is at
// capacity; the card set coarsens it and retries. It never escapes the card
// set.
//
// This package only interprets memory. Allocation, coarsening and reclamation
// are the card set's job.
package container
