package resolver

import (
	"sync"
	"time"

	"github.com/UOR-Foundation/uordb/internal/clock"
)

type cacheKey struct {
	from      string
	reference string
}

type cacheEntry struct {
	resolution *Resolution
	expiresAt  time.Time
}

// cache holds completed resolutions keyed by requesting namespace and
// reference. A secondary index by chain namespace supports targeted
// invalidation when any namespace on a cached path mutates.
type cache struct {
	mu          sync.Mutex
	clk         clock.Clock
	ttl         time.Duration
	entries     map[cacheKey]cacheEntry
	byNamespace map[string]map[cacheKey]struct{}
}

func newCache(clk clock.Clock, ttl time.Duration) *cache {
	return &cache{
		clk:         clk,
		ttl:         ttl,
		entries:     make(map[cacheKey]cacheEntry),
		byNamespace: make(map[string]map[cacheKey]struct{}),
	}
}

func (c *cache) get(key cacheKey) (*Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.After(c.clk.Now()) {
		c.removeLocked(key)
		return nil, false
	}
	return entry.resolution, true
}

func (c *cache) put(key cacheKey, resolution *Resolution) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
	c.entries[key] = cacheEntry{
		resolution: resolution,
		expiresAt:  c.clk.Now().Add(c.ttl),
	}
	for _, ns := range resolution.Chain {
		index, ok := c.byNamespace[ns]
		if !ok {
			index = make(map[cacheKey]struct{})
			c.byNamespace[ns] = index
		}
		index[key] = struct{}{}
	}
}

// invalidateNamespace drops every entry whose resolution chain touched
// the namespace. Returns the number of dropped entries.
func (c *cache) invalidateNamespace(namespace string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := c.byNamespace[namespace]
	dropped := 0
	for key := range index {
		if _, ok := c.entries[key]; ok {
			dropped++
		}
		c.removeLocked(key)
	}
	return dropped
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *cache) removeLocked(key cacheKey) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	for _, ns := range entry.resolution.Chain {
		if index, ok := c.byNamespace[ns]; ok {
			delete(index, key)
			if len(index) == 0 {
				delete(c.byNamespace, ns)
			}
		}
	}
}
