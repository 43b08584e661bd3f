// Package cache keeps the resources a connection has resolved, keyed by
// their normalized locator.
package cache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/johndauphine/tabxfer/internal/model"
	"github.com/johndauphine/tabxfer/internal/respath"
)

// DefaultSize bounds the number of cached tables and views.
const DefaultSize = 1024

// Cache maps normalized locators to resources. Schemas and catalogs are
// always kept; tables, views and queries only while the cache is enabled.
type Cache struct {
	mu         sync.Mutex
	enabled    bool
	containers map[string]*model.Resource
	leaves     *lru.Cache[string, *model.Resource]
}

// New creates a cache. size bounds the leaf entries; zero uses DefaultSize.
func New(enabled bool, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	leaves, err := lru.New[string, *model.Resource](size)
	if err != nil {
		return nil, fmt.Errorf("creating resource cache: %w", err)
	}
	return &Cache{
		enabled:    enabled,
		containers: make(map[string]*model.Resource),
		leaves:     leaves,
	}, nil
}

// Enabled reports whether non-container resources are cached.
func (c *Cache) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SetEnabled toggles leaf caching. Disabling drops the cached leaves.
func (c *Cache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.leaves.Purge()
	}
}

// Get returns the resource cached under key.
func (c *Cache) Get(key string) (*model.Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.containers[key]; ok {
		return r, true
	}
	if !c.enabled {
		return nil, false
	}
	return c.leaves.Get(key)
}

// Put stores r under key and returns the instance now cached, which is the
// earlier one when another caller stored first.
func (c *Cache) Put(key string, r *model.Resource) *model.Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Kind.IsContainer() {
		if prev, ok := c.containers[key]; ok {
			return prev
		}
		c.containers[key] = r
		return r
	}
	if !c.enabled {
		return r
	}
	if prev, ok, _ := c.leaves.PeekOrAdd(key, r); ok {
		return prev
	}
	return r
}

// Invalidate removes the resource at path, everything cached beneath it,
// and the child listings of the containers holding it.
func (c *Cache) Invalidate(path respath.Path) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, r := range c.containers {
		switch {
		case r.Path == path || within(r.Path, path):
			delete(c.containers, key)
		case within(path, r.Path):
			r.ResetChildren()
		}
	}
	for _, key := range c.leaves.Keys() {
		r, ok := c.leaves.Peek(key)
		if ok && (r.Path == path || within(r.Path, path)) {
			c.leaves.Remove(key)
		}
	}
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.containers = make(map[string]*model.Resource)
	c.leaves.Purge()
}

// Len returns the number of cached resources.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.containers) + c.leaves.Len()
}

// within reports whether child lies strictly beneath the container path.
func within(child, container respath.Path) bool {
	if child == container || container.Selector() == respath.ObjectSelector || child.Depth() != container.Depth() {
		return false
	}
	for r := respath.CatalogRole; r <= respath.ObjectRole; r++ {
		cs := container.Segment(r)
		if cs.Kind == respath.Literal && child.Segment(r) != cs {
			return false
		}
	}
	return true
}
