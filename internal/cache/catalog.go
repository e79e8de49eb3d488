package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	catalogVersionKey = "catalog:version"
	catalogPagePrefix = "catalog:v"
)

// ErrCacheMiss is returned when a key is absent or unreadable.
var ErrCacheMiss = errors.New("cache miss")

// CatalogVersion returns the current catalog generation. Every cached
// storefront page is keyed under a generation, so bumping it invalidates all
// of them at once.
func (c *Cache) CatalogVersion(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, catalogVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get catalog version: %w", err)
	}
	return v, nil
}

// BumpCatalogVersion starts a new catalog generation.
func (c *Cache) BumpCatalogVersion(ctx context.Context) error {
	if err := c.client.Incr(ctx, catalogVersionKey).Err(); err != nil {
		return fmt.Errorf("redis incr catalog version: %w", err)
	}
	return nil
}

// GetCatalogPage decodes a cached page into dest. Returns ErrCacheMiss when
// the page is absent.
func (c *Cache) GetCatalogPage(ctx context.Context, version int64, key string, dest any) error {
	data, err := c.client.Get(ctx, catalogPageKey(version, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get catalog page: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrCacheMiss
	}
	return nil
}

// SetCatalogPage stores a page under the given generation.
func (c *Cache) SetCatalogPage(ctx context.Context, version int64, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal catalog page: %w", err)
	}
	return c.client.Set(ctx, catalogPageKey(version, key), data, ttl).Err()
}

// catalogPageKey hashes the request key so arbitrary search input stays out
// of the key space.
func catalogPageKey(version int64, key string) string {
	sum := sha256.Sum256([]byte(key))
	return catalogPagePrefix + strconv.FormatInt(version, 10) + ":" + hex.EncodeToString(sum[:12])
}
