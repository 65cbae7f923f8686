package observer

import "sync"

// Value holds a single observable value.
type Value[T any] struct {
	mu    sync.RWMutex
	value T
	equal func(a, b T) bool
	subs  subscribers[T]
}

// NewValue creates a value observable for a comparable type.
func NewValue[T comparable](v T) *Value[T] {
	return &Value[T]{
		value: v,
		equal: func(a, b T) bool { return a == b },
	}
}

// NewValueFunc creates a value observable with a custom equality.
func NewValueFunc[T any](v T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		value: v,
		equal: equal,
	}
}

func (o *Value[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Set stores v and always notifies.
func (o *Value[T]) Set(v T) {
	o.mu.Lock()
	o.value = v
	o.mu.Unlock()

	o.subs.notify(v)
}

// SetIfChanged stores v and notifies only when it differs from the current value.
func (o *Value[T]) SetIfChanged(v T) bool {
	o.mu.Lock()
	if o.equal(o.value, v) {
		o.mu.Unlock()
		return false
	}
	o.value = v
	o.mu.Unlock()

	o.subs.notify(v)
	return true
}

// Observe registers fn for future changes. The current value is not replayed.
func (o *Value[T]) Observe(fn func(T)) *Subscription {
	return o.subs.add(fn)
}

func (o *Value[T]) ObserverCount() int {
	return o.subs.count()
}
