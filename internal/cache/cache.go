package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/groundcheck/internal/model"
)

// Cache defines the interface for caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// CacheKey generates a cache key from its parts
func CacheKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "groundcheck:v1:" + hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg: memory, then disk and redis when configured.
// It returns nil when caching is disabled.
func New(cfg model.CacheConfig, logger *zap.Logger) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	layers := []Cache{NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)}
	if cfg.DiskDir != "" {
		layers = append(layers, NewDiskCache(cfg.DiskDir, cfg.DiskTTL))
	}
	if cfg.RedisAddr != "" {
		rc, err := NewRedisCache(cfg.RedisAddr, cfg.RedisTTL)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		layers = append(layers, rc)
	}

	logger.Debug("match cache enabled", zap.Int("layers", len(layers)))
	return NewLayeredCache(layers...), nil
}
