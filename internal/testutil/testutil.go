// Package testutil holds helpers shared by integration and e2e tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/migrations"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 731731

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// NewDB connects to DATABASE_URL, serializes against other DB tests and
// rebuilds the schema from the embedded migrations.
func NewDB(t testing.TB) (context.Context, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := migrations.Reset(dbURL); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return ctx, pool
}

// NewRedis connects to REDIS_URL and flushes the database.
func NewRedis(t testing.TB) *redis.Client {
	t.Helper()
	redisURL := RequireEnv(t, "REDIS_URL")

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	if err := FlushRedis(context.Background(), client); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Int64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// UniqueSlug generates a unique lower-case slug for tests.
func UniqueSlug(prefix string) string {
	return strings.ToLower(fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano()%1_000_000_000, seq.Add(1)))
}

// NewTestUser creates a user with sensible defaults.
func NewTestUser(t testing.TB, role string) *model.User {
	t.Helper()
	id := ulid.Make().String()
	return &model.User{
		ID:           id,
		Email:        strings.ToLower(id) + "@example.test",
		Name:         "Test " + role,
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaGhhc2hoYXNoaGFzaGhhc2g",
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
}

// NewTestDeveloper creates a developer profile for a user.
func NewTestDeveloper(t testing.TB, userID string) *model.Developer {
	t.Helper()
	now := time.Now().UTC()
	return &model.Developer{
		ID:          ulid.Make().String(),
		UserID:      userID,
		Slug:        UniqueSlug("studio"),
		DisplayName: "Test Studio",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestApp creates a draft app with a complete draft.
func NewTestApp(t testing.TB, developerID string) (*model.App, *model.AppDraft) {
	t.Helper()
	now := time.Now().UTC()
	slug := UniqueSlug("app")
	app := &model.App{
		ID:          ulid.Make().String(),
		DeveloperID: developerID,
		Slug:        slug,
		PackageName: "com.test." + strings.ReplaceAll(slug, "-", ""),
		Name:        "Test App",
		Currency:    "USD",
		Status:      model.AppStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	draft := &model.AppDraft{
		AppID:     app.ID,
		Name:      "Test App",
		Summary:   "An app for tests",
		Category:  "tools",
		Currency:  "USD",
		UpdatedAt: now,
	}
	return app, draft
}

// NewTestRelease creates a release with its artifact.
func NewTestRelease(t testing.TB, appID string, channel model.Channel, versionCode int64) (*model.Artifact, *model.Release) {
	t.Helper()
	now := time.Now().UTC()
	artifact := &model.Artifact{
		ID:        ulid.Make().String(),
		AppID:     appID,
		URL:       fmt.Sprintf("https://cdn.example.test/%s/%d.apk", appID, versionCode),
		SizeBytes: 1024 * versionCode,
		SHA256:    strings.Repeat("ab", 32),
		CreatedAt: now,
	}
	release := &model.Release{
		ID:          ulid.Make().String(),
		AppID:       appID,
		Channel:     channel,
		VersionName: fmt.Sprintf("1.0.%d", versionCode),
		VersionCode: versionCode,
		CreatedAt:   now,
	}
	return artifact, release
}

// NewTestAPIKey creates a test API key with sensible defaults.
func NewTestAPIKey(t testing.TB, userID string) *model.APIKey {
	t.Helper()
	return &model.APIKey{
		ID:            ulid.Make().String(),
		UserID:        userID,
		KeyHash:       UniqueID("hash"),
		KeyPrefix:     "abcd1234",
		Scopes:        []string{model.ScopeRead, model.ScopeWrite},
		RateLimitTier: model.TierFree,
		Name:          "Test Key",
		CreatedAt:     time.Now().UTC(),
	}
}
