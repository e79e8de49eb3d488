package auth

import (
	"context"
	"log/slog"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

type principalKey struct{}

// ContextWithAuth attaches the resolved principal to ctx.
func ContextWithAuth(ctx context.Context, ac *model.AuthContext) context.Context {
	return context.WithValue(ctx, principalKey{}, ac)
}

// AuthFromContext returns the principal, or nil for anonymous requests.
func AuthFromContext(ctx context.Context) *model.AuthContext {
	ac, _ := ctx.Value(principalKey{}).(*model.AuthContext)
	return ac
}

// LogAttrs describes the principal for access logs. Keys are identified by
// prefix only.
func LogAttrs(ctx context.Context) []slog.Attr {
	ac := AuthFromContext(ctx)
	if ac == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String("auth_method", ac.Method),
		slog.String("user_id", ac.UserID),
	}
	if ac.KeyPrefix != "" {
		attrs = append(attrs, slog.String("key_prefix", ac.KeyPrefix))
	}
	return attrs
}
