package main

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/auth"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/config"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/handler"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/metrics"
)

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"postgres://store:s3cret@db:5432/vrstore", "postgres://store@db:5432/vrstore"},
		{"redis://:s3cret@cache:6379/0", "redis://redacted@cache:6379/0"},
		{"redis://cache:6379", "redis://cache:6379"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redactURL(tt.in), tt.in)
	}
}

func TestSanitizeError(t *testing.T) {
	dsn := "postgres://store:s3cret@db:5432/vrstore"
	err := errors.New("dial " + dsn + ": password=s3cret refused")

	got := sanitizeError(err, dsn)
	assert.NotContains(t, got, "s3cret")
	assert.Contains(t, got, "postgres://store@db:5432/vrstore")
	assert.Empty(t, sanitizeError(nil))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

// newTestRouter mounts every route over services that must never be
// reached: each request below is answered by middleware first.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)

	cfg := &config.Config{
		AppEnv:                 "production",
		MaxRequestBodySize:     1 << 20,
		RateLimitProviderRPS:   20,
		RateLimitProviderBurst: 40,
		CORSAllowedOrigins:     "https://store.example.com",
	}

	h := routes{
		health:    handler.NewHealthHandler(nil),
		catalog:   handler.NewCatalogHandler(nil, metrics.NewNoop(), logger),
		accounts:  handler.NewAccountHandler(nil, logger),
		developer: handler.NewDeveloperHandler(nil, nil, nil, nil, logger),
		webhooks:  handler.NewWebhookHandler(nil, nil, logger),
		admin:     handler.NewAdminHandler(nil, nil, logger),
		reviews:   handler.NewReviewHandler(nil, logger),
		payments:  handler.NewPaymentHandler(nil, logger),
	}
	return setupRouter(h, nil, nil, tokens, metrics.NewPrometheus(), cfg, logger)
}

func TestRouter_MiddlewareAnswers(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		code   string
	}{
		{"unknown route", http.MethodGet, "/nope", http.StatusNotFound, "NOT_FOUND"},
		{"account needs credentials", http.MethodGet, "/api/account/api-keys", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"developer console needs credentials", http.MethodGet, "/api/developer/apps", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"admin needs credentials", http.MethodGet, "/api/admin/stats", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"checkout needs credentials", http.MethodPost, "/api/checkout", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"malformed slug", http.MethodGet, "/api/public/apps/Not_A_Slug", http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"code":"`+tt.code+`"`)
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestRouter_AdminRequiresAdminRole(t *testing.T) {
	router := newTestRouter(t)
	tokens, err := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	token, _, err := tokens.Issue("usr_1", "developer")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.RemoteAddr = "198.51.100.4:1234"
	rec := httptest.NewRecorder()

	// Session requests skip the IP limiter and the API limiter is disabled.
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_MetricsAndPreflight(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/public/apps", nil)
	req.Header.Set("Origin", "https://store.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "https://store.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
