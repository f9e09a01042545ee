package service

import (
	"sort"
	"sync"
	"time"

	"plate-alert-service/internal/domain/detection"
)

type cacheEntry struct {
	result   detection.Result
	storedAt time.Time
}

// ResultCache keeps recent detection results keyed by image fingerprint. When it
// grows past maxEntries the oldest entries are dropped down to maxEntries-evictCount.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	evictCount int
	now        func() time.Time
}

func NewResultCache(ttl time.Duration, maxEntries, evictCount int) *ResultCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if evictCount < 0 || evictCount >= maxEntries {
		evictCount = 0
	}
	return &ResultCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		evictCount: evictCount,
		now:        time.Now,
	}
}

func (c *ResultCache) Get(key string) (detection.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return detection.Result{}, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return detection.Result{}, false
	}
	return entry.result, true
}

func (c *ResultCache) Put(key string, result detection.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{result: result, storedAt: c.now()}
	if len(c.entries) > c.maxEntries {
		c.evictOldest(c.maxEntries - c.evictCount)
	}
}

func (c *ResultCache) evictOldest(target int) {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].storedAt.Before(c.entries[keys[j]].storedAt)
	})
	for _, k := range keys {
		if len(c.entries) <= target {
			return
		}
		delete(c.entries, k)
	}
}

func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
