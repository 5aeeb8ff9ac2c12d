package tool

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/ragflow/store"
)

const cacheMaxEntries = 100

// resultCache is an in-memory per-query result cache with a TTL.
// Process-wide; mutex guarded. When full, the oldest entry is evicted.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry

	hits   int
	misses int

	now func() time.Time
}

type cacheEntry struct {
	at   time.Time
	docs []store.Document
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *resultCache) get(query string) ([]store.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(query)
	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(entry.at) >= c.ttl {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.docs, true
}

func (c *resultCache) set(query string, docs []store.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(query)] = cacheEntry{at: c.now(), docs: docs}

	if len(c.entries) > cacheMaxEntries {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.at.Before(oldestAt) {
				oldestKey, oldestAt = k, e.at
			}
		}
		delete(c.entries, oldestKey)
	}
}

func (c *resultCache) hitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func cacheKey(query string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}
