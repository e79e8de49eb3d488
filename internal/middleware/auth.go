package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/auth"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

const (
	// minAuthDuration is the minimum time to spend on API key auth to prevent timing attacks.
	minAuthDuration = 200 * time.Millisecond
	// lastUsedTimeout bounds the background last_used_at write.
	lastUsedTimeout = 5 * time.Second
)

var errNoCredential = errors.New("no credential")

// KeyStore looks up API keys during authentication.
type KeyStore interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// UserStore resolves the account behind an API key.
type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthCache caches resolved API key principals.
type AuthCache interface {
	GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error)
	SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger *slog.Logger
	Keys   KeyStore
	Users  UserStore
	// Cache is optional.
	Cache  AuthCache
	Tokens *auth.TokenIssuer
}

// Auth returns a middleware that requires a session token or API key.
// The credential is read from the Authorization header (or X-API-Key)
// and the resolved principal is injected into the request context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return authenticate(cfg, true)
}

// OptionalAuth resolves a principal when a credential is present and lets
// anonymous requests through. A credential that fails to verify is still
// rejected so clients notice expired tokens.
func OptionalAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return authenticate(cfg, false)
}

func authenticate(cfg AuthConfig, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			credential := extractCredential(r)
			if credential == "" && !required {
				next.ServeHTTP(w, r)
				return
			}

			authCtx, cacheHit, err := cfg.resolve(r, credential)
			if err != nil {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", failureReason(err)),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			cfg.Logger.Debug("authentication successful",
				slog.String("method", authCtx.Method),
				slog.String("key_id", authCtx.KeyID),
				slog.String("user_id", authCtx.UserID),
				slog.Bool("cache_hit", cacheHit),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			ctx := auth.ContextWithAuth(r.Context(), authCtx)
			annotateAccessLog(ctx, auth.LogAttrs(ctx)...)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (cfg AuthConfig) resolve(r *http.Request, credential string) (*model.AuthContext, bool, error) {
	if credential == "" {
		return nil, false, errNoCredential
	}
	if auth.LooksLikeAPIKey(credential) {
		return cfg.resolveAPIKey(r, credential)
	}
	authCtx, err := cfg.resolveSession(credential)
	return authCtx, false, err
}

func (cfg AuthConfig) resolveSession(token string) (*model.AuthContext, error) {
	if cfg.Tokens == nil {
		return nil, auth.ErrInvalidToken
	}
	claims, err := cfg.Tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return &model.AuthContext{
		Method:        model.AuthMethodSession,
		UserID:        claims.Subject,
		Role:          claims.Role,
		RateLimitTier: model.TierForRole(claims.Role),
	}, nil
}

func (cfg AuthConfig) resolveAPIKey(r *http.Request, key string) (*model.AuthContext, bool, error) {
	startTime := time.Now()

	// Ensure consistent timing regardless of outcome
	defer func() {
		elapsed := time.Since(startTime)
		if elapsed < minAuthDuration {
			time.Sleep(minAuthDuration - elapsed)
		}
	}()

	parsed, err := auth.ParseAPIKey(key)
	if err != nil {
		return nil, false, err
	}

	cacheKey := auth.QuickHash(key)
	if cfg.Cache != nil {
		if cached, _ := cfg.Cache.GetAuthContext(r.Context(), cacheKey); cached != nil {
			return cached, true, nil
		}
	}

	// Cache miss - lookup by prefix
	keys, err := cfg.Keys.GetAPIKeysByPrefix(r.Context(), parsed.Prefix)
	if err != nil {
		cfg.Logger.Error("database error during auth",
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(r.Context())),
		)
		return nil, false, err
	}

	// Verify against each candidate key (handles prefix collisions)
	var matchedKey *model.APIKey
	for _, k := range keys {
		if match, err := auth.VerifyPassword(key, k.KeyHash); err == nil && match {
			matchedKey = k
			break
		}
	}
	if matchedKey == nil {
		return nil, false, auth.ErrInvalidKeyFormat
	}

	user, err := cfg.Users.GetUserByID(r.Context(), matchedKey.UserID)
	if err != nil {
		return nil, false, err
	}

	authCtx := &model.AuthContext{
		Method:        model.AuthMethodAPIKey,
		KeyID:         matchedKey.ID,
		KeyPrefix:     matchedKey.KeyPrefix,
		UserID:        matchedKey.UserID,
		Role:          user.Role,
		Scopes:        matchedKey.Scopes,
		RateLimitTier: matchedKey.RateLimitTier,
	}

	if cfg.Cache != nil {
		_ = cfg.Cache.SetAuthContext(r.Context(), cacheKey, authCtx)
	}

	go func(ctx context.Context, id string) {
		ctx, cancel := context.WithTimeout(ctx, lastUsedTimeout)
		defer cancel()
		if err := cfg.Keys.UpdateAPIKeyLastUsed(ctx, id); err != nil {
			cfg.Logger.Warn("failed to update key last_used_at", "key_id", id, "error", err)
		}
	}(context.WithoutCancel(r.Context()), matchedKey.ID)

	return authCtx, false, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, errNoCredential):
		return "missing_credential"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, auth.ErrInvalidKeyFormat):
		return "invalid_key"
	default:
		return "lookup_failed"
	}
}

// extractCredential extracts the bearer credential from the request.
// Supports both "Authorization: Bearer <token>" and "X-API-Key: <key>" headers.
func extractCredential(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}
	}
	return r.Header.Get("X-API-Key")
}
