// Package middleware provides HTTP middleware for the VR store API.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/service"
)

// Validation errors.
var (
	ErrInvalidSlug = errors.New("slug is not canonical")
	ErrInvalidID   = errors.New("identifier is not a ULID")
)

// ParamRule validates one URL parameter value.
type ParamRule func(value string) error

// ValidateSlug accepts lower-case hyphenated slugs.
func ValidateSlug(value string) error {
	if !service.IsValidSlug(value) {
		return ErrInvalidSlug
	}
	return nil
}

// ValidateID accepts canonical upper-case ULIDs.
func ValidateID(value string) error {
	if _, err := ulid.ParseStrict(value); err != nil {
		return ErrInvalidID
	}
	return nil
}

// ValidateURLParams rejects requests whose path parameters cannot name an
// existing resource before any lookup happens. Malformed values get the
// same 404 as unknown ones.
func ValidateURLParams(logger *slog.Logger, rules map[string]ParamRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for name, rule := range rules {
				value := chi.URLParam(r, name)
				if value == "" {
					continue
				}
				if err := rule(value); err != nil {
					logger.Debug("rejected path parameter",
						slog.String("param", name),
						slog.String("error", err.Error()),
						slog.String("request_id", GetRequestID(r.Context())),
					)
					writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
