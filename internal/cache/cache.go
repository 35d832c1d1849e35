// Package cache keeps the paraphrase candidates of recently seen segments.
package cache

import (
	"fmt"
	"maps"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the number of segment keys retained.
const DefaultSize = 1000

// Candidates maps a candidate phrase to its log10 score.
type Candidates map[string]float64

// Cache is a fixed-capacity recency cache keyed by segment text. Every access
// (Get, Put, Merge and Contains) marks the key most recently used.
type Cache struct {
	mu    sync.Mutex
	items *lru.Cache[string, Candidates]
}

func New(size int) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	items, err := lru.New[string, Candidates](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Cache{items: items}, nil
}

// Get returns a copy of the candidates stored for key.
func (c *Cache) Get(key string) (Candidates, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false
	}
	return maps.Clone(v), true
}

// Put stores value under key, evicting the least recently used key when the
// cache is full.
func (c *Cache) Put(key string, value Candidates) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, maps.Clone(value))
}

// Merge adds value's candidates to whatever is already stored for key and
// returns the merged set. Candidates already present are overwritten.
func (c *Cache) Merge(key string, value Candidates) Candidates {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make(Candidates, len(value))
	if existing, ok := c.items.Get(key); ok {
		maps.Copy(merged, existing)
	}
	maps.Copy(merged, value)
	c.items.Add(key, merged)
	return maps.Clone(merged)
}

// Contains reports whether key is cached. Unlike most membership checks it
// refreshes the key's recency.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items.Get(key)
	return ok
}

func (c *Cache) Len() int {
	return c.items.Len()
}

// Keys returns the cached keys from least to most recently used.
func (c *Cache) Keys() []string {
	return c.items.Keys()
}

func (c *Cache) Purge() {
	c.items.Purge()
}
