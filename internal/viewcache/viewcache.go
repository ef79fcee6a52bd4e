// Package viewcache holds recently viewed previews in a size-bounded LRU.
//
// A Cache is created by its owner and handed to whoever needs it; there is
// no package-level instance.
package viewcache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"thumbcache/internal/metrics"
)

// DefaultSize is the number of previews kept when no size is given.
const DefaultSize = 512

// Key identifies one version of a file. A new modification time is a new
// key, so edited files never hit an old entry.
type Key struct {
	Path     string
	Modified int64
}

// Cache is safe for concurrent use.
type Cache struct {
	lru *lru.Cache[Key, []byte]
}

// New creates a cache holding at most size previews.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.NewWithEvict(size, func(Key, []byte) {
		metrics.ViewCacheEvictions.Inc()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create view cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Get returns the preview for path at the given modification time.
func (c *Cache) Get(path string, modified int64) ([]byte, bool) {
	data, ok := c.lru.Get(Key{Path: path, Modified: modified})
	if ok {
		metrics.ViewCacheRequests.WithLabelValues("hit").Inc()
	} else {
		metrics.ViewCacheRequests.WithLabelValues("miss").Inc()
	}
	return data, ok
}

// Add stores a preview, dropping entries for older versions of path.
func (c *Cache) Add(path string, modified int64, data []byte) {
	for _, k := range c.lru.Keys() {
		if k.Path == path && k.Modified != modified {
			c.lru.Remove(k)
		}
	}
	c.lru.Add(Key{Path: path, Modified: modified}, data)
	metrics.ViewCacheEntries.Set(float64(c.lru.Len()))
}

// Evict removes every entry for path and returns how many were removed.
func (c *Cache) Evict(path string) int {
	n := 0
	for _, k := range c.lru.Keys() {
		if k.Path == path && c.lru.Remove(k) {
			n++
		}
	}
	metrics.ViewCacheEntries.Set(float64(c.lru.Len()))
	return n
}

// EvictDir removes every entry whose path is directly inside dir.
func (c *Cache) EvictDir(dir string, inDir func(path, dir string) bool) int {
	n := 0
	for _, k := range c.lru.Keys() {
		if inDir(k.Path, dir) && c.lru.Remove(k) {
			n++
		}
	}
	metrics.ViewCacheEntries.Set(float64(c.lru.Len()))
	return n
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.lru.Purge()
	metrics.ViewCacheEntries.Set(0)
}

// Len returns the number of cached previews.
func (c *Cache) Len() int {
	return c.lru.Len()
}
