package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

// Resolved API keys are cached under a hash of the raw key. A second entry
// maps the key ID to that hash so a revoke can drop the principal without
// knowing the secret.
const (
	principalPrefix = "auth:principal:"
	keyIndexPrefix  = "auth:key:"
	principalTTL    = 5 * time.Minute
)

type cachedPrincipal struct {
	Method string   `json:"m"`
	KeyID  string   `json:"k,omitempty"`
	Prefix string   `json:"p,omitempty"`
	UserID string   `json:"u"`
	Role   string   `json:"r"`
	Scopes []string `json:"s,omitempty"`
	Tier   string   `json:"t"`
}

// GetAuthContext returns the cached principal for cacheKey. Misses and
// undecodable entries both return nil.
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	raw, err := c.client.Get(ctx, principalPrefix+cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get principal: %w", err)
	}
	var p cachedPrincipal
	if json.Unmarshal(raw, &p) != nil {
		return nil, nil
	}
	return &model.AuthContext{
		Method:        p.Method,
		KeyID:         p.KeyID,
		KeyPrefix:     p.Prefix,
		UserID:        p.UserID,
		Role:          p.Role,
		Scopes:        p.Scopes,
		RateLimitTier: p.Tier,
	}, nil
}

// SetAuthContext caches a principal and indexes it by key ID.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, ac *model.AuthContext) error {
	raw, err := json.Marshal(cachedPrincipal{
		Method: ac.Method,
		KeyID:  ac.KeyID,
		Prefix: ac.KeyPrefix,
		UserID: ac.UserID,
		Role:   ac.Role,
		Scopes: ac.Scopes,
		Tier:   ac.RateLimitTier,
	})
	if err != nil {
		return fmt.Errorf("encode principal: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, principalPrefix+cacheKey, raw, principalTTL)
		if ac.KeyID != "" {
			p.Set(ctx, keyIndexPrefix+ac.KeyID, cacheKey, principalTTL)
		}
		return nil
	})
	return err
}

// ForgetAPIKey drops the cached principal of a revoked key, if any.
func (c *Cache) ForgetAPIKey(ctx context.Context, keyID string) error {
	cacheKey, err := c.client.GetDel(ctx, keyIndexPrefix+keyID).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("forget api key: %w", err)
	}
	return c.client.Del(ctx, principalPrefix+cacheKey).Err()
}
