package embedding

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of texts kept in memory.
const DefaultCacheSize = 1000

// Cache is a bounded least-recently-used map from exact input text to vector.
// It lives for the duration of the process only.
type Cache struct {
	lru *lru.Cache[string, Vector]
}

// NewCache creates a cache holding at most size entries. A non-positive size
// falls back to DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, Vector](size)
	if err != nil {
		// lru.New only fails on non-positive sizes.
		panic(err)
	}
	return &Cache{lru: c}
}

// Get returns the cached vector for text and marks it recently used.
func (c *Cache) Get(text string) (Vector, bool) {
	return c.lru.Get(text)
}

// Add stores the vector for text, evicting the least recently used entry when full.
func (c *Cache) Add(text string, v Vector) {
	c.lru.Add(text, v)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
