// Package cache provides a sharded, thread-safe LRU cache.
//
// The pipeline keeps derived note styles here. Styles are read by the
// render goroutine and by background workers preparing screen rectangles,
// so the cache is split into shards with their own locks.
//
//	c := cache.New[styleKey, Style](64, hashStyleKey)
//	s := c.GetOrCreate(k, func() Style { return derive(k) })
//
// Entries are evicted least recently used first once a shard is full.
// Invalidation is done by changing the key (for example by including an
// epoch counter), never by scanning.
package cache
