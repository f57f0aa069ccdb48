package session

import (
	"net/url"
	"sync"
)

// ServiceCache is a "get_service" table: entries are bucketed by the
// provider's URL hash, then disambiguated within a bucket by the
// provider's URL-equality rule, so hash collisions between unrelated
// URLs never alias two distinct services.
//
// Go has no reliable weak-reference equivalent short of finalizers,
// which are too fragile to depend on for correctness, so eviction
// here is explicit: callers that are done with a service call Evict.
type ServiceCache struct {
	provider Provider

	mu      sync.Mutex
	buckets map[string][]*cacheEntry
}

type cacheEntry struct {
	url *url.URL
	svc any
}

func newServiceCache(p Provider) *ServiceCache {
	return &ServiceCache{provider: p, buckets: make(map[string][]*cacheEntry)}
}

// getOrCreate returns the cached service equal to u under the
// provider's URLEqual rule, or calls create and caches the result.
func (c *ServiceCache) getOrCreate(u *url.URL, create func() (any, error)) (any, error) {
	hash := c.provider.URLHash(u)

	c.mu.Lock()
	for _, entry := range c.buckets[hash] {
		if c.provider.URLEqual(entry.url, u) {
			c.mu.Unlock()
			return entry.svc, nil
		}
	}
	c.mu.Unlock()

	svc, err := create()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.buckets[hash] = append(c.buckets[hash], &cacheEntry{url: u, svc: svc})
	c.mu.Unlock()

	return svc, nil
}

// Evict drops the cached service equal to u, if any, so the next
// getOrCreate for an equivalent URL constructs a fresh one.
func (c *ServiceCache) Evict(u *url.URL) {
	hash := c.provider.URLHash(u)

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.buckets[hash]
	for i, entry := range entries {
		if c.provider.URLEqual(entry.url, u) {
			c.buckets[hash] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(c.buckets[hash]) == 0 {
		delete(c.buckets, hash)
	}
}
