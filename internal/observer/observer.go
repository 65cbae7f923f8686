// Package observer provides value, list and map observables. Setters notify
// subscribers synchronously on the calling goroutine; SetIfChanged only
// notifies when the new value differs from the current one.
package observer

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is the lifetime token of an observer callback. Closing it
// detaches the callback; a closed subscription is never called again.
type Subscription struct {
	id     uuid.UUID
	once   sync.Once
	detach func(uuid.UUID)
}

// ID identifies the subscription.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Close detaches the callback. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.detach(s.id)
	})
}

type subscriber[T any] struct {
	id uuid.UUID
	fn func(T)
}

// subscribers is a copy-on-write callback list: notify iterates a snapshot
// without holding the lock so callbacks may subscribe or unsubscribe.
type subscribers[T any] struct {
	mu   sync.Mutex
	list []subscriber[T]
}

func (s *subscribers[T]) add(fn func(T)) *Subscription {
	id := uuid.New()

	s.mu.Lock()
	next := make([]subscriber[T], len(s.list), len(s.list)+1)
	copy(next, s.list)
	s.list = append(next, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	return &Subscription{id: id, detach: s.remove}
}

func (s *subscribers[T]) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]subscriber[T], 0, len(s.list))
	for _, sub := range s.list {
		if sub.id != id {
			next = append(next, sub)
		}
	}
	s.list = next
}

func (s *subscribers[T]) snapshot() []subscriber[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list
}

func (s *subscribers[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

func (s *subscribers[T]) notify(v T) {
	for _, sub := range s.snapshot() {
		sub.fn(v)
	}
}

// Observable is the read side of a Value, List or Map.
type Observable[T any] interface {
	Get() T
	Observe(fn func(T)) *Subscription
}
