// Package cache provides a byte-budgeted LRU used to bound the main-memory
// footprint of decoded brick buffers.
//
// The cache does not hold values. It tracks keys and their byte sizes and
// tells the owner, through an eviction callback, which keys to release when
// the budget is exceeded:
//
//	c := cache.New[*brick.Brick](512<<20, func(b *brick.Brick) { b.FreeCache() })
//	c.Add(b, int64(b.CacheBytes()))
//	c.Touch(b)
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation.
// The eviction callback runs after the internal lock is released.
package cache
