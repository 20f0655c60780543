// Package cache provides a small generic LRU cache.
//
// The viewer uses it to memoize values that are expensive to recompute and
// cheap to keep, such as document content checksums keyed by file identity.
//
//	c := cache.New[string, int](100)
//	c.Set("key", 42)
//	value, ok := c.Get("key")
//
// # Thread Safety
//
// Cache is safe for concurrent use and must not be copied after creation
// (it contains a mutex).
package cache
