package cache

import (
	"sync"
	"sync/atomic"
)

const (
	// ShardCount is the number of shards. A power of two.
	ShardCount = 16

	// DefaultCapacity is the per-shard capacity used when none is given.
	DefaultCapacity = 64

	shardMask = ShardCount - 1
)

// Hasher maps a key to a shard hash.
type Hasher[K any] func(K) uint64

// Mix64 is a finalizer for building hashers from integer fields.
func Mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// Cache is a sharded LRU cache. It is safe for concurrent use and must not
// be copied after creation.
type Cache[K comparable, V any] struct {
	shards   [ShardCount]shard[K, V]
	hasher   Hasher[K]
	capacity atomic.Int64 // per shard

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type shard[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*node[K, V]
	lru     list[K, V]
}

// Stats holds cache counters.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// HitRate returns hits over lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// New creates a cache holding up to capacity entries per shard.
// A non-positive capacity selects DefaultCapacity.
func New[K comparable, V any](capacity int, hasher Hasher[K]) *Cache[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache[K, V]{hasher: hasher}
	c.capacity.Store(int64(capacity))
	for i := range c.shards {
		c.shards[i].entries = make(map[K]*node[K, V], capacity)
	}
	return c
}

func (c *Cache[K, V]) shard(key K) *shard[K, V] {
	return &c.shards[c.hasher(key)&shardMask]
}

// Get returns the value for key and marks it recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	s := c.shard(key)
	s.mu.Lock()
	n, ok := s.entries[key]
	if ok {
		s.lru.moveToFront(n)
		v := n.value
		s.mu.Unlock()
		c.hits.Add(1)
		return v, true
	}
	s.mu.Unlock()
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set stores value under key, evicting the least recently used entry of
// the shard when it is full.
func (c *Cache[K, V]) Set(key K, value V) {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	c.setLocked(s, key, value)
}

// GetOrCreate returns the cached value or stores and returns create().
// create runs under the shard lock, so it is called at most once per
// missing key and must not use the cache.
func (c *Cache[K, V]) GetOrCreate(key K, create func() V) V {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.entries[key]; ok {
		s.lru.moveToFront(n)
		c.hits.Add(1)
		return n.value
	}
	c.misses.Add(1)
	v := create()
	c.setLocked(s, key, v)
	return v
}

func (c *Cache[K, V]) setLocked(s *shard[K, V], key K, value V) {
	if n, ok := s.entries[key]; ok {
		n.value = value
		s.lru.moveToFront(n)
		return
	}
	if s.lru.len >= int(c.capacity.Load()) {
		if old := s.lru.popBack(); old != nil {
			delete(s.entries, old.key)
			c.evictions.Add(1)
		}
	}
	n := &node[K, V]{key: key, value: value}
	s.entries[key] = n
	s.lru.pushFront(n)
}

// Delete removes key and reports whether it was present.
func (c *Cache[K, V]) Delete(key K) bool {
	s := c.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.entries[key]
	if ok {
		s.lru.unlink(n)
		delete(s.entries, key)
	}
	return ok
}

// Clear removes every entry. Counters are kept.
func (c *Cache[K, V]) Clear() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		clear(s.entries)
		s.lru = list[K, V]{}
		s.mu.Unlock()
	}
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += s.lru.len
		s.mu.Unlock()
	}
	return n
}

// Capacity returns the total capacity across shards.
func (c *Cache[K, V]) Capacity() int { return int(c.capacity.Load()) * ShardCount }

// Grow raises the per-shard capacity to at least capacity. It never
// shrinks the cache.
func (c *Cache[K, V]) Grow(capacity int) {
	for {
		cur := c.capacity.Load()
		if int64(capacity) <= cur || c.capacity.CompareAndSwap(cur, int64(capacity)) {
			return
		}
	}
}

// Stats returns a snapshot of the counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Len:       c.Len(),
		Capacity:  c.Capacity(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
