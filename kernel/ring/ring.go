// Package ring implements the fixed-capacity circular buffer backing every
// message queue's storage (spec.md §4.5, §4.7). It is grounded directly on
// the teacher's lineRing (anticipation/cmd/antc/linering.go): capacity
// rounds up to a power of two at construction and head/tail indices wrap
// with a bitmask (lineRing's own `ringMax = 0xf` pattern, generalized to
// whatever power of two the requested capacity needs) instead of a mod.
package ring

import "math/bits"

// Ring is a fixed-capacity FIFO of T, backed by a preallocated slice sized
// to the next power of two at or above the requested capacity. The zero
// value is not usable; construct with New.
type Ring[T any] struct {
	buf        []T
	mask       int
	head, tail int // head: next Get position; tail: next Put position
	length     int
}

// New allocates a Ring holding up to capacity items, rounding capacity up
// to the next power of two.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	size := nextPowerOfTwo(capacity)
	return &Ring[T]{buf: make([]T, size), mask: size - 1}
}

func nextPowerOfTwo(n int) int {
	if n&(n-1) == 0 {
		return n
	}
	return 1 << bits.Len(uint(n))
}

// Cap returns the ring's fixed capacity (the power of two New rounded up
// to, not the capacity originally requested).
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Len returns the number of items currently stored.
func (r *Ring[T]) Len() int { return r.length }

// Full reports whether the ring has no room for another Put.
func (r *Ring[T]) Full() bool { return r.length == len(r.buf) }

// Empty reports whether the ring holds no items.
func (r *Ring[T]) Empty() bool { return r.length == 0 }

// Put appends v. It reports false, leaving the ring unchanged, if full;
// callers (ksync's queue) are expected to have already checked Full under
// the same critical section.
func (r *Ring[T]) Put(v T) bool {
	if r.Full() {
		return false
	}
	r.buf[r.tail] = v
	r.tail = (r.tail + 1) & r.mask
	r.length++
	return true
}

// Get removes and returns the oldest item. ok is false, and the zero value
// is returned, if the ring is empty.
func (r *Ring[T]) Get() (v T, ok bool) {
	if r.Empty() {
		return v, false
	}
	v = r.buf[r.head]
	var zero T
	r.buf[r.head] = zero // drop the reference so a queued pointer/slice can be GC'd
	r.head = (r.head + 1) & r.mask
	r.length--
	return v, true
}

// Peek returns the oldest item without removing it.
func (r *Ring[T]) Peek() (v T, ok bool) {
	if r.Empty() {
		return v, false
	}
	return r.buf[r.head], true
}

// Clear empties the ring without releasing its backing array.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head, r.tail, r.length = 0, 0, 0
}
