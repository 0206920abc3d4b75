package cache

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
)

// LayeredCache implements a multi-layer cache (memory, then disk, then shared)
type LayeredCache struct {
	layers []Cache
}

// NewLayeredCache creates a layered cache; the first layer is checked first
func NewLayeredCache(layers ...Cache) *LayeredCache {
	return &LayeredCache{layers: layers}
}

// Get checks each layer in order and promotes hits into the faster layers
func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	for i, layer := range c.layers {
		val, found := layer.Get(ctx, key)
		if !found {
			continue
		}
		for _, faster := range c.layers[:i] {
			_ = faster.Set(ctx, key, val, 0) // Use default TTL
		}
		return val, true
	}
	return nil, false
}

// Set stores a value in every layer
func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var result *multierror.Error
	for _, layer := range c.layers {
		if err := layer.Set(ctx, key, value, ttl); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Delete removes a value from every layer
func (c *LayeredCache) Delete(ctx context.Context, key string) error {
	var result *multierror.Error
	for _, layer := range c.layers {
		if err := layer.Delete(ctx, key); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Clear removes all values from every layer
func (c *LayeredCache) Clear(ctx context.Context) error {
	var result *multierror.Error
	for _, layer := range c.layers {
		if err := layer.Clear(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
