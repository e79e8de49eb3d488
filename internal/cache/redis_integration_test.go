//go:build integration

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/testutil"
)

func newRedis(t *testing.T) *Cache {
	t.Helper()
	ctx := context.Background()
	c, err := New(ctx, testutil.RequireEnv(t, "REDIS_URL"), WithPoolSize(8))
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Client().FlushDB(ctx).Err())
	return c
}

func TestRateLimit_BurstUnderConcurrency(t *testing.T) {
	c := newRedis(t)
	ctx := context.Background()
	const burst = 5

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.CheckAPIRateLimit(ctx, "user:01HBURST", 10, burst)
			if !assert.NoError(t, err) {
				return
			}
			if res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	// 10 rpm refills one token every 6s, so at most one extra slips in.
	assert.GreaterOrEqual(t, allowed.Load(), int64(burst))
	assert.LessOrEqual(t, allowed.Load(), int64(burst+1))
}

func TestRateLimit_RejectionCarriesRetryAfter(t *testing.T) {
	c := newRedis(t)
	ctx := context.Background()

	for range 3 {
		res, err := c.CheckIPRateLimit(ctx, "203.0.113.7", 1, 3)
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := c.CheckIPRateLimit(ctx, "203.0.113.7", 1, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Positive(t, res.RetryAfter)
	assert.LessOrEqual(t, res.RetryAfter, time.Second)

	other, err := c.CheckIPRateLimit(ctx, "203.0.113.8", 1, 3)
	require.NoError(t, err)
	assert.True(t, other.Allowed, "buckets are per address")
}

func TestAuthContext_ForgetOnRevoke(t *testing.T) {
	c := newRedis(t)
	ctx := context.Background()

	ac := &model.AuthContext{
		Method:        model.AuthMethodAPIKey,
		KeyID:         "01HKEY",
		KeyPrefix:     "vs_live_ab12cd",
		UserID:        "01HUSER",
		Role:          model.RoleDeveloper,
		Scopes:        []string{model.ScopeRead, model.ScopeWrite},
		RateLimitTier: model.TierFree,
	}
	require.NoError(t, c.SetAuthContext(ctx, "hash-1", ac))

	got, err := c.GetAuthContext(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, ac, got)

	require.NoError(t, c.ForgetAPIKey(ctx, "01HKEY"))
	got, err = c.GetAuthContext(ctx, "hash-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, c.ForgetAPIKey(ctx, "01HKEY"), "forgetting twice is fine")
}

func TestCatalogPages_GenerationBump(t *testing.T) {
	c := newRedis(t)
	ctx := context.Background()

	v, err := c.CatalogVersion(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetCatalogPage(ctx, v, "sort=new", []string{"beat-space"}, time.Minute))

	var page []string
	require.NoError(t, c.GetCatalogPage(ctx, v, "sort=new", &page))
	assert.Equal(t, []string{"beat-space"}, page)

	require.NoError(t, c.BumpCatalogVersion(ctx))
	next, err := c.CatalogVersion(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, c.GetCatalogPage(ctx, next, "sort=new", &page), ErrCacheMiss)
}
