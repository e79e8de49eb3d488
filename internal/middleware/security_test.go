package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func securityHeaders(dev bool) http.Header {
	cfg := DefaultSecurityConfig()
	cfg.IsDevelopment = dev
	rec := httptest.NewRecorder()
	Security(cfg)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/public/apps", nil))
	return rec.Header()
}

func TestSecurity_Headers(t *testing.T) {
	h := securityHeaders(false)

	want := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
		"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
		"Permissions-Policy":        "geolocation=(), microphone=(), camera=(), usb=()",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Cache-Control":             "no-store",
	}
	for name, value := range want {
		assert.Equal(t, value, h.Get(name), name)
	}
}

func TestSecurity_NoHSTSInDevelopment(t *testing.T) {
	h := securityHeaders(true)
	assert.Empty(t, h.Get("Strict-Transport-Security"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
}

func TestSecurity_HandlerMayOverrideCaching(t *testing.T) {
	rec := httptest.NewRecorder()
	Security(DefaultSecurityConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=60")
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/public/categories", nil))

	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
}

func TestMaxBodySize(t *testing.T) {
	readAll := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.Copy(io.Discard, r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	const manifest = `{"version_code":42,"channel":"beta"}`

	tests := []struct {
		name   string
		limit  int64
		length int64
		want   int
	}{
		{"fits", 1024, int64(len(manifest)), http.StatusOK},
		{"declared too large", 16, int64(len(manifest)), http.StatusRequestEntityTooLarge},
		{"chunked too large", 16, -1, http.StatusRequestEntityTooLarge},
		{"chunked fits", 1024, -1, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/developer/apps", strings.NewReader(manifest))
			req.ContentLength = tt.length
			rec := httptest.NewRecorder()
			MaxBodySize(tt.limit)(readAll).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
