package match

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// IndexCache keeps prepared document indices keyed by text hash.
// Concurrent requests for the same document build the index once.
type IndexCache struct {
	cache *gocache.Cache
	group singleflight.Group
}

// NewIndexCache creates an index cache with the given TTL
func NewIndexCache(ttl time.Duration) *IndexCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &IndexCache{
		cache: gocache.New(ttl, ttl*2),
	}
}

// Get returns the index for text, building it if needed
func (c *IndexCache) Get(text string, opts Options) *Index {
	hash := hashText(text)
	key := hash + ":" + opts.key()

	if v, ok := c.cache.Get(key); ok {
		return v.(*Index)
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.cache.Get(key); ok {
			return v, nil
		}
		idx := prepare(text, hash, opts)
		c.cache.SetDefault(key, idx)
		return idx, nil
	})
	return v.(*Index)
}

// Len returns the number of cached indices
func (c *IndexCache) Len() int {
	return c.cache.ItemCount()
}

// Flush drops every cached index
func (c *IndexCache) Flush() {
	c.cache.Flush()
}
