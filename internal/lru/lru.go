// Package lru is a size-bounded least-recently-used cache shared by the
// decoded tile caches of the map sources and the in-memory byte tile cache.
package lru

import (
	"container/list"
	"fmt"
	"sync"
)

// Cache holds values with LRU eviction once the summed size of its entries
// exceeds the limit.
//
// Sizes are supplied by the caller's sizer and are estimates; the limit is
// enforced approximately. A limit of 0 means unbounded.
//
// Example:
//
//	cache := lru.New[string, image.Image](64<<20, func(img image.Image) int64 {
//	    b := img.Bounds()
//	    return int64(b.Dx() * b.Dy() * 4)
//	})
//
//	img, err := cache.Get("osm/12/2200/1343", func() (image.Image, error) {
//	    return decode(data)
//	})
type Cache[K comparable, V any] struct {
	maxSize  int64
	usedSize int64
	entries  map[K]*entry[K, V]
	order    *list.List // most recent at front
	sizer    func(V) int64
	onEvict  func(K, V)
	hits     uint64
	misses   uint64
	mu       sync.Mutex
}

type entry[K comparable, V any] struct {
	key         K
	value       V
	size        int64
	element     *list.Element
	accessCount int
}

// New creates a cache limited to maxSize as measured by sizer. A nil sizer
// counts every entry as 1.
func New[K comparable, V any](maxSize int64, sizer func(V) int64) *Cache[K, V] {
	if sizer == nil {
		sizer = func(V) int64 { return 1 }
	}
	return &Cache[K, V]{
		maxSize: maxSize,
		entries: make(map[K]*entry[K, V]),
		order:   list.New(),
		sizer:   sizer,
	}
}

// OnEvict registers a callback run for every entry dropped to make room. It
// runs with the cache locked and must not call back into the cache.
func (c *Cache[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Peek returns the cached value without loading it.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.touch(e)
		c.hits++
		return e.value, true
	}
	c.misses++
	var zero V
	return zero, false
}

// Get returns the cached value for key, or calls loader on a miss and caches
// its result. The loader runs without the cache lock held.
func (c *Cache[K, V]) Get(key K, loader func() (V, error)) (V, error) {
	if v, ok := c.Peek(key); ok {
		return v, nil
	}

	v, err := loader()
	if err != nil {
		var zero V
		return zero, fmt.Errorf("load %v: %w", key, err)
	}

	// A value too large for the cache is still returned to the caller.
	_ = c.Add(key, v)
	return v, nil
}

// Add inserts or replaces a value, evicting least-recently-used entries to
// make room. It fails if the value alone exceeds the limit.
func (c *Cache[K, V]) Add(key K, v V) error {
	size := c.sizer(v)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.usedSize += size - e.size
		e.value = v
		e.size = size
		c.touch(e)
		c.evict()
		return nil
	}

	if c.maxSize > 0 && size > c.maxSize {
		return fmt.Errorf("entry too large for cache (%d > %d)", size, c.maxSize)
	}

	e := &entry[K, V]{
		key:         key,
		value:       v,
		size:        size,
		accessCount: 1,
	}
	e.element = c.order.PushFront(e)
	c.entries[key] = e
	c.usedSize += size
	c.evict()
	return nil
}

func (c *Cache[K, V]) touch(e *entry[K, V]) {
	e.accessCount++
	c.order.MoveToFront(e.element)
}

// evict must be called with c.mu held. The most recent entry is never evicted.
func (c *Cache[K, V]) evict() {
	if c.maxSize <= 0 {
		return
	}
	for c.usedSize > c.maxSize && c.order.Len() > 1 {
		elem := c.order.Back()
		e := elem.Value.(*entry[K, V])
		c.order.Remove(elem)
		delete(c.entries, e.key)
		c.usedSize -= e.size
		if c.onEvict != nil {
			c.onEvict(e.key, e.value)
		}
	}
}

// Remove drops key from the cache.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.order.Remove(e.element)
		delete(c.entries, key)
		c.usedSize -= e.size
	}
}

// Clear empties the cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*entry[K, V])
	c.order.Init()
	c.usedSize = 0
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, e := range c.entries {
		total += e.accessCount
	}
	return Stats{
		Entries:     len(c.entries),
		UsedSize:    c.usedSize,
		MaxSize:     c.maxSize,
		TotalAccess: total,
		Hits:        c.hits,
		Misses:      c.misses,
	}
}

// Stats holds cache performance counters.
type Stats struct {
	Entries     int
	UsedSize    int64
	MaxSize     int64
	TotalAccess int
	Hits        uint64
	Misses      uint64
}
