package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bucket keys. Principal buckets outlive a full refill at the slowest tier.
const (
	principalBucketPrefix = "rl:principal:"
	ipBucketPrefix        = "rl:ip:"
	principalBucketTTL    = 2 * time.Minute
	ipBucketTTL           = 10 * time.Second
)

// RateLimitResult is the outcome of taking one token from a bucket.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// takeToken refills a bucket by elapsed milliseconds and takes one token.
// Returns {allowed, retry_after_ms, remaining}.
var takeToken = redis.NewScript(`
local state = redis.call('HMGET', KEYS[1], 't', 'ts')
local per_ms = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(state[1]) or cap
local ts = tonumber(state[2]) or now
if now > ts then
  tokens = math.min(cap, tokens + (now - ts) * per_ms)
end

local ok, wait = 0, 0
if tokens >= 1 then
  tokens = tokens - 1
  ok = 1
else
  wait = math.ceil((1 - tokens) / per_ms)
end

redis.call('HSET', KEYS[1], 't', tokens, 'ts', now)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {ok, wait, math.floor(tokens)}
`)

type bucket struct {
	key   string
	perMS float64
	burst int
	ttl   time.Duration
}

// CheckAPIRateLimit takes a token from the bucket of an authenticated
// principal. A zero rate means the tier is unlimited.
func (c *Cache) CheckAPIRateLimit(ctx context.Context, principalKey string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now().Add(time.Minute)}, nil
	}
	return c.take(ctx, bucket{
		key:   principalBucketPrefix + principalKey,
		perMS: float64(ratePerMinute) / float64(time.Minute/time.Millisecond),
		burst: burst,
		ttl:   principalBucketTTL,
	})
}

// CheckIPRateLimit takes a token from the bucket of an anonymous client.
// Addresses are stored hashed.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now().Add(time.Second)}, nil
	}
	return c.take(ctx, bucket{
		key:   ipBucketPrefix + hashIP(ip),
		perMS: float64(ratePerSecond) / 1000,
		burst: burst,
		ttl:   ipBucketTTL,
	})
}

// take runs the bucket script. Callers decide whether a Redis error fails
// open.
func (c *Cache) take(ctx context.Context, b bucket) (*RateLimitResult, error) {
	now := time.Now()
	out, err := takeToken.Run(ctx, c.client, []string{b.key},
		b.perMS, b.burst, now.UnixMilli(), b.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", b.key, err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("rate limit %s: unexpected reply %v", b.key, out)
	}

	res := &RateLimitResult{
		Allowed:    out[0] == 1,
		RetryAfter: time.Duration(out[1]) * time.Millisecond,
		Remaining:  out[2],
	}
	// Time until one more token is available.
	res.ResetAt = now.Add(time.Duration(1/b.perMS) * time.Millisecond)
	if !res.Allowed {
		res.ResetAt = now.Add(res.RetryAfter)
	}
	return res, nil
}

// hashIP returns the first 8 bytes of the SHA-256 of ip, hex encoded.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
