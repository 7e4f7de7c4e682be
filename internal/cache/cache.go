package cache

import "sync"

// Cache is a thread-safe LRU over keys with byte sizes.
// When the total size exceeds the limit, least recently used keys are
// evicted and reported to the eviction callback.
//
// Cache must not be copied after creation (has mutex).
type Cache[K comparable] struct {
	mu      sync.Mutex
	nodes   map[K]*lruNode[K]
	lru     lruList[K]
	limit   int64 // 0 means unlimited
	used    int64
	onEvict func(K)

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache with the given byte limit.
// A limit of 0 means unlimited. onEvict may be nil.
func New[K comparable](limit int64, onEvict func(K)) *Cache[K] {
	return &Cache[K]{
		nodes:   make(map[K]*lruNode[K]),
		limit:   limit,
		onEvict: onEvict,
	}
}

// Add records key with the given size as most recently used, replacing any
// previous size. Keys evicted to make room are passed to the eviction
// callback and returned. The key just added is never evicted by its own Add,
// even when it alone exceeds the limit.
func (c *Cache[K]) Add(key K, size int64) []K {
	c.mu.Lock()
	if node, ok := c.nodes[key]; ok {
		c.used += size - node.size
		node.size = size
		c.lru.MoveToFront(node)
	} else {
		c.nodes[key] = c.lru.PushFront(key, size)
		c.used += size
	}
	evicted := c.shrinkLocked(key, true)
	c.mu.Unlock()

	c.notify(evicted)
	return evicted
}

// Touch marks key as most recently used.
// Returns false if the key is not tracked.
func (c *Cache[K]) Touch(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[key]
	if !ok {
		c.misses++
		return false
	}
	c.hits++
	c.lru.MoveToFront(node)
	return true
}

// Contains reports whether key is tracked without changing its recency.
func (c *Cache[K]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.nodes[key]
	return ok
}

// Remove stops tracking key without calling the eviction callback.
// Returns true if the key was tracked.
func (c *Cache[K]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.nodes[key]
	if !ok {
		return false
	}
	c.lru.Remove(node)
	delete(c.nodes, key)
	c.used -= node.size
	return true
}

// SetLimit changes the byte limit and evicts down to it.
func (c *Cache[K]) SetLimit(limit int64) []K {
	c.mu.Lock()
	c.limit = limit
	var zero K
	evicted := c.shrinkLocked(zero, false)
	c.mu.Unlock()

	c.notify(evicted)
	return evicted
}

// Clear evicts every key.
func (c *Cache[K]) Clear() []K {
	c.mu.Lock()
	evicted := make([]K, 0, len(c.nodes))
	for node := c.lru.Oldest(); node != nil; node = node.prev {
		evicted = append(evicted, node.key)
	}
	c.lru.Clear()
	c.nodes = make(map[K]*lruNode[K])
	c.used = 0
	c.evictions += uint64(len(evicted))
	c.mu.Unlock()

	c.notify(evicted)
	return evicted
}

// Len returns the number of tracked keys.
func (c *Cache[K]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Used returns the total tracked bytes.
func (c *Cache[K]) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Limit returns the byte limit.
func (c *Cache[K]) Limit() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}

// Stats returns cache statistics.
func (c *Cache[K]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       c.lru.Len(),
		Used:      c.used,
		Limit:     c.limit,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// shrinkLocked evicts oldest keys until used <= limit, skipping keep when
// skip is set. Caller must hold c.mu.
func (c *Cache[K]) shrinkLocked(keep K, skip bool) []K {
	if c.limit <= 0 {
		return nil
	}
	var evicted []K
	node := c.lru.Oldest()
	for c.used > c.limit && node != nil {
		prev := node.prev
		if !skip || node.key != keep {
			c.lru.Remove(node)
			delete(c.nodes, node.key)
			c.used -= node.size
			evicted = append(evicted, node.key)
		}
		node = prev
	}
	c.evictions += uint64(len(evicted))
	return evicted
}

func (c *Cache[K]) notify(keys []K) {
	if c.onEvict == nil {
		return
	}
	for _, k := range keys {
		c.onEvict(k)
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of keys.
	Len int
	// Used is the total tracked bytes.
	Used int64
	// Limit is the byte limit, 0 if unlimited.
	Limit int64
	// Hits and Misses count Touch outcomes.
	Hits   uint64
	Misses uint64
	// HitRate is Hits / (Hits + Misses), 0.0 to 1.0.
	HitRate float64
	// Evictions is the number of evicted keys.
	Evictions uint64
}
