package llm

import (
	"context"
	"strings"
	"sync"
)

// DefaultEmbedCacheCapacity bounds the cache when no capacity is given.
const DefaultEmbedCacheCapacity = 100

// EmbedFunc computes an embedding for a query on cache miss.
type EmbedFunc func(ctx context.Context, query string) ([]float32, error)

// EmbedCache is a bounded, process-local cache from normalized query text to
// embedding vectors. Keys are exact-match only (case-folded, trimmed); there
// is no semantic dedup. Eviction is first-in-first-out, not access-recency:
// on overflow the oldest-inserted entry goes, regardless of how recently it
// was read. A restart invalidates the cache silently; it is a pure
// performance optimization, never a correctness dependency.
type EmbedCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string][]float32
	order    []string // insertion order, oldest first

	hits   int64
	misses int64
}

// NewEmbedCache creates a cache holding up to capacity entries.
func NewEmbedCache(capacity int) *EmbedCache {
	if capacity <= 0 {
		capacity = DefaultEmbedCacheCapacity
	}
	return &EmbedCache{
		capacity: capacity,
		entries:  make(map[string][]float32, capacity),
	}
}

// GetOrCompute returns the cached vector for query, or computes and caches it
// via embed. A compute failure is returned as-is and nothing is cached, so a
// miss always falls through to live computation on the next call.
func (c *EmbedCache) GetOrCompute(ctx context.Context, query string, embed EmbedFunc) ([]float32, error) {
	key := normalizeQuery(query)

	c.mu.Lock()
	if vec, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return vec, nil
	}
	c.misses++
	c.mu.Unlock()

	// Compute outside the lock; concurrent misses for the same key may both
	// compute, which is acceptable for a performance cache.
	vec, err := embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if vec == nil {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		if len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.entries[key] = vec
		c.order = append(c.order, key)
	}
	return vec, nil
}

// Len returns the current number of cached entries.
func (c *EmbedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit/miss counters since construction.
func (c *EmbedCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
