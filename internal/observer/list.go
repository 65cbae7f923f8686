package observer

import (
	"maps"
	"slices"
	"sync"
)

// List holds an observable slice. Readers always receive copies.
type List[T any] struct {
	mu    sync.RWMutex
	items []T
	equal func(a, b T) bool
	subs  subscribers[[]T]
}

func NewList[T comparable](items []T) *List[T] {
	return &List[T]{
		items: slices.Clone(items),
		equal: func(a, b T) bool { return a == b },
	}
}

func NewListFunc[T any](items []T, equal func(a, b T) bool) *List[T] {
	return &List[T]{
		items: slices.Clone(items),
		equal: equal,
	}
}

func (o *List[T]) Get() []T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.items)
}

func (o *List[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

func (o *List[T]) Item(i int) T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.items[i]
}

func (o *List[T]) Set(items []T) {
	o.mu.Lock()
	o.items = slices.Clone(items)
	o.mu.Unlock()

	o.subs.notify(slices.Clone(items))
}

func (o *List[T]) SetIfChanged(items []T) bool {
	o.mu.Lock()
	if slices.EqualFunc(o.items, items, o.equal) {
		o.mu.Unlock()
		return false
	}
	o.items = slices.Clone(items)
	o.mu.Unlock()

	o.subs.notify(slices.Clone(items))
	return true
}

func (o *List[T]) Append(item T) {
	o.mu.Lock()
	o.items = append(o.items, item)
	out := slices.Clone(o.items)
	o.mu.Unlock()

	o.subs.notify(out)
}

func (o *List[T]) Clear() {
	o.SetIfChanged(nil)
}

func (o *List[T]) Observe(fn func([]T)) *Subscription {
	return o.subs.add(fn)
}

// Map holds an observable map. Readers always receive copies.
type Map[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
	equal func(a, b V) bool
	subs  subscribers[map[K]V]
}

func NewMap[K comparable, V comparable](items map[K]V) *Map[K, V] {
	return &Map[K, V]{
		items: maps.Clone(items),
		equal: func(a, b V) bool { return a == b },
	}
}

func NewMapFunc[K comparable, V any](items map[K]V, equal func(a, b V) bool) *Map[K, V] {
	return &Map[K, V]{
		items: maps.Clone(items),
		equal: equal,
	}
}

func (o *Map[K, V]) Get() map[K]V {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return maps.Clone(o.items)
}

func (o *Map[K, V]) Item(k K) (V, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.items[k]
	return v, ok
}

func (o *Map[K, V]) Set(items map[K]V) {
	o.mu.Lock()
	o.items = maps.Clone(items)
	o.mu.Unlock()

	o.subs.notify(maps.Clone(items))
}

func (o *Map[K, V]) SetIfChanged(items map[K]V) bool {
	o.mu.Lock()
	if maps.EqualFunc(o.items, items, o.equal) {
		o.mu.Unlock()
		return false
	}
	o.items = maps.Clone(items)
	o.mu.Unlock()

	o.subs.notify(maps.Clone(items))
	return true
}

// SetItem stores a single entry, notifying only on change.
func (o *Map[K, V]) SetItem(k K, v V) bool {
	o.mu.Lock()
	if old, ok := o.items[k]; ok && o.equal(old, v) {
		o.mu.Unlock()
		return false
	}
	if o.items == nil {
		o.items = make(map[K]V)
	}
	o.items[k] = v
	out := maps.Clone(o.items)
	o.mu.Unlock()

	o.subs.notify(out)
	return true
}

func (o *Map[K, V]) Observe(fn func(map[K]V)) *Subscription {
	return o.subs.add(fn)
}
