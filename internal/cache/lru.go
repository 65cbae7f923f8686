package cache

import (
	"container/list"
	"sync"
)

// LRU is a thread-safe cache bounded by entry count and total byte size.
// The mutex is only held for map and list updates.
type LRU[K comparable, V any] struct {
	capacity int   // 0 = unbounded
	maxSize  int64 // max size in bytes
	size     int64
	sizeOf   func(V) int64
	items    map[K]*list.Element
	order    *list.List
	hits     uint64
	misses   uint64
	mu       sync.Mutex
}

type entry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Len    int    `json:"len"`
	Size   int64  `json:"size"`
	Max    int64  `json:"max"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// NewLRU creates a cache holding at most capacity entries and maxSize bytes
// as measured by sizeOf.
func NewLRU[K comparable, V any](capacity int, maxSize int64, sizeOf func(V) int64) *LRU[K, V] {
	return &LRU[K, V]{
		capacity: capacity,
		maxSize:  maxSize,
		sizeOf:   sizeOf,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// Get retrieves an item and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits++
		return elem.Value.(*entry[K, V]).value, true
	}
	c.misses++
	var zero V
	return zero, false
}

// Contains reports presence without touching recency.
func (c *LRU[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Set adds or updates an item. Items larger than the byte bound are not cached.
func (c *LRU[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizeOf(value)
	if size > c.maxSize {
		return
	}

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		c.size += size - e.size
		e.value, e.size = value, size
		c.order.MoveToFront(elem)
		c.trim()
		return
	}

	elem := c.order.PushFront(&entry[K, V]{key: key, value: value, size: size})
	c.items[key] = elem
	c.size += size
	c.trim()
}

func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.order.Init()
	c.size = 0
}

// SetMaxSize changes the byte bound, evicting from the tail as needed.
func (c *LRU[K, V]) SetMaxSize(maxSize int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = maxSize
	c.trim()
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Size returns the current size in bytes.
func (c *LRU[K, V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Len:    c.order.Len(),
		Size:   c.size,
		Max:    c.maxSize,
		Hits:   c.hits,
		Misses: c.misses,
	}
}

func (c *LRU[K, V]) trim() {
	for c.order.Len() > 0 && (c.size > c.maxSize || (c.capacity > 0 && c.order.Len() > c.capacity)) {
		c.removeElement(c.order.Back())
	}
}

func (c *LRU[K, V]) removeElement(elem *list.Element) {
	e := elem.Value.(*entry[K, V])
	c.order.Remove(elem)
	delete(c.items, e.key)
	c.size -= e.size
}
