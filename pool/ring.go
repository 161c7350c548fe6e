// File: pool/ring.go
// Author: momentics <momentics@gmail.com>
//
// Bounded history ring. Pushing into a full ring overwrites the oldest item.
// Not safe for concurrent use.

package pool

// Ring keeps the last Cap() pushed items.
type Ring[T any] struct {
	data []T
	mask uint64
	head uint64 // oldest
	tail uint64 // next write
}

// NewRing allocates a ring with size slots (must be power of two).
func NewRing[T any](size uint64) *Ring[T] {
	if size == 0 || (size&(size-1)) != 0 {
		panic("ring size must be power of two")
	}
	return &Ring[T]{
		data: make([]T, size),
		mask: size - 1,
	}
}

// Push appends val, evicting the oldest item when full.
func (r *Ring[T]) Push(val T) {
	if r.tail-r.head == uint64(len(r.data)) {
		var zero T
		r.data[r.head&r.mask] = zero
		r.head++
	}
	r.data[r.tail&r.mask] = val
	r.tail++
}

// Last returns the most recently pushed item.
func (r *Ring[T]) Last() (res T, ok bool) {
	if r.head == r.tail {
		return res, false
	}
	return r.data[(r.tail-1)&r.mask], true
}

// At returns the i-th retained item, oldest first.
func (r *Ring[T]) At(i int) (res T, ok bool) {
	if i < 0 || i >= r.Len() {
		return res, false
	}
	return r.data[(r.head+uint64(i))&r.mask], true
}

// Len returns number of retained items.
func (r *Ring[T]) Len() int {
	return int(r.tail - r.head)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return len(r.data)
}

// Total returns how many items were ever pushed.
func (r *Ring[T]) Total() uint64 {
	return r.tail
}
