package reader

import (
	"context"
	"sync"
	"sync/atomic"
)

// Future is a single-assignment result shared between a producer and any
// number of consumers. The first Resolve wins; later calls are ignored.
type Future[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	value     T
	err       error
	resolved  bool
	callbacks []func(T, error)

	holders   atomic.Int32
	onRelease func()
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future that is already complete.
func Resolved[T any](v T, err error) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(v, err)
	return f
}

// Resolve completes the future and runs registered callbacks on the calling
// goroutine. It reports whether this call set the result.
func (f *Future[T]) Resolve(v T, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.value, f.err, f.resolved = v, err, true
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future resolves or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the future resolves.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Result returns the value of a ready future without blocking. ok is false
// while the future is pending.
func (f *Future[T]) Result() (v T, err error, ok bool) {
	if !f.Ready() {
		return v, nil, false
	}
	return f.value, f.err, true
}

// OnDone registers fn to run once the future resolves. If it already has,
// fn runs immediately.
func (f *Future[T]) OnDone(fn func(T, error)) {
	f.mu.Lock()
	if f.resolved {
		v, err := f.value, f.err
		f.mu.Unlock()
		fn(v, err)
		return
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// OnRelease installs fn to be called when the last holder releases a
// future that is still pending. It must be set before the future is shared.
func (f *Future[T]) OnRelease(fn func()) {
	f.onRelease = fn
}

// Acquire registers one more holder.
func (f *Future[T]) Acquire() *Future[T] {
	f.holders.Add(1)
	return f
}

// Release drops a holder. Releasing a future nobody acquired is a no-op.
func (f *Future[T]) Release() {
	for {
		n := f.holders.Load()
		if n <= 0 {
			return
		}
		if f.holders.CompareAndSwap(n, n-1) {
			if n == 1 && f.onRelease != nil && !f.Ready() {
				f.onRelease()
			}
			return
		}
	}
}

// Holders returns the number of outstanding holders.
func (f *Future[T]) Holders() int {
	return int(f.holders.Load())
}
