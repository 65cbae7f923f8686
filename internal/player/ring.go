package player

import "sync/atomic"

// ring is a wait-free single-producer single-consumer queue.
type ring[T any] struct {
	buf  []T
	mask uint64
	head atomic.Uint64
	tail atomic.Uint64
}

// newRing allocates a ring holding at least size items.
func newRing[T any](size int) *ring[T] {
	n := 1
	for n < size {
		n <<= 1
	}
	return &ring[T]{buf: make([]T, n), mask: uint64(n - 1)}
}

// push is called by the producer only.
func (r *ring[T]) push(v T) bool {
	t := r.tail.Load()
	if t-r.head.Load() == uint64(len(r.buf)) {
		return false
	}
	r.buf[t&r.mask] = v
	r.tail.Store(t + 1)
	return true
}

// pop is called by the consumer only.
func (r *ring[T]) pop() (T, bool) {
	h := r.head.Load()
	if h == r.tail.Load() {
		var zero T
		return zero, false
	}
	v := r.buf[h&r.mask]
	r.head.Store(h + 1)
	return v, true
}

func (r *ring[T]) len() int {
	return int(r.tail.Load() - r.head.Load())
}
