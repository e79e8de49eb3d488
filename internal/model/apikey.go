// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// Scope constants for API key authorization.
const (
	ScopeRead    = "read"
	ScopeWrite   = "write"
	ScopeWebhook = "webhook"
	ScopeAdmin   = "admin"
)

// ValidScopes contains all valid scope values.
var ValidScopes = []string{ScopeRead, ScopeWrite, ScopeWebhook, ScopeAdmin}

// RateLimitTier constants.
const (
	TierFree      = "free"
	TierPro       = "pro"
	TierUnlimited = "unlimited"
)

// RateLimitConfig defines rate limit parameters per tier.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// TierConfigs maps tier names to their rate limit configurations.
var TierConfigs = map[string]RateLimitConfig{
	TierFree:      {RequestsPerMinute: 120, Burst: 20},
	TierPro:       {RequestsPerMinute: 1200, Burst: 100},
	TierUnlimited: {RequestsPerMinute: 0, Burst: 0}, // 0 means unlimited
}

// TierForRole picks the rate limit tier for interactive sessions.
func TierForRole(role string) string {
	switch role {
	case RoleAdmin:
		return TierUnlimited
	case RoleDeveloper:
		return TierPro
	default:
		return TierFree
	}
}

// APIKey is a long-lived credential for CI uploads and scripted console access.
type APIKey struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	KeyHash       string     `json:"-"`
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	Name          string     `json:"name,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsRevoked returns true if the key has been revoked.
func (k *APIKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// HasScope checks if the key has a specific scope.
// Admin scope implies all other scopes.
func (k *APIKey) HasScope(scope string) bool {
	if slices.Contains(k.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(k.Scopes, scope)
}

// GetRateLimitConfig returns the rate limit configuration for this key.
func (k *APIKey) GetRateLimitConfig() RateLimitConfig {
	if config, ok := TierConfigs[k.RateLimitTier]; ok {
		return config
	}
	return TierConfigs[TierFree]
}

// Authentication methods.
const (
	AuthMethodSession = "session"
	AuthMethodAPIKey  = "api_key"
)

// AuthContext is the authenticated principal of a request.
// Session tokens carry every scope; API keys carry the scopes they were minted with.
type AuthContext struct {
	Method        string
	KeyID         string
	KeyPrefix     string
	UserID        string
	Role          string
	Scopes        []string
	RateLimitTier string
}

// HasScope checks if the auth context has a specific scope.
func (a *AuthContext) HasScope(scope string) bool {
	if a.Method == AuthMethodSession {
		return true
	}
	if slices.Contains(a.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(a.Scopes, scope)
}

// HasRole checks the account role. Admins pass every role check and
// developers pass user checks.
func (a *AuthContext) HasRole(role string) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleDeveloper:
		return role == RoleDeveloper || role == RoleUser
	default:
		return role == RoleUser
	}
}

// IsAdmin returns true for admin accounts.
func (a *AuthContext) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// RateLimitKey identifies the bucket this principal consumes.
func (a *AuthContext) RateLimitKey() string {
	if a.KeyID != "" {
		return a.KeyID
	}
	return "user:" + a.UserID
}
