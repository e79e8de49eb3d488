package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/handler/dto"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/payments"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/service"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/webhook"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", service.ErrAppNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"wrapped not found", fmt.Errorf("load app: %w", service.ErrAppNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"missing profile", service.ErrProfileNotFound, http.StatusNotFound, "PROFILE_REQUIRED"},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"purchase required", service.ErrPurchaseRequired, http.StatusPaymentRequired, "PURCHASE_REQUIRED"},
		{"transition", service.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
		{"owned", service.ErrAlreadyOwned, http.StatusConflict, "ALREADY_OWNED"},
		{"payout running", service.ErrPayoutInProgress, http.StatusConflict, "PAYOUT_IN_PROGRESS"},
		{"no release", service.ErrNoRelease, http.StatusUnprocessableEntity, "NO_RELEASE"},
		{"notes", service.ErrNotesRequired, http.StatusBadRequest, "NOTES_REQUIRED"},
		{"cursor", service.ErrInvalidCursor, http.StatusBadRequest, "INVALID_CURSOR"},
		{"endpoint limit", webhook.ErrTooManyEndpoints, http.StatusConflict, "LIMIT_REACHED"},
		{"webhook url", webhook.ErrPrivateTarget, http.StatusBadRequest, "INVALID_URL"},
		{"signature", payments.ErrInvalidSignature, http.StatusBadRequest, "INVALID_SIGNATURE"},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, testLogger(), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var resp dto.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestWriteServiceError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, testLogger(), errors.New("pq: password authentication failed"))

	assert.NotContains(t, rec.Body.String(), "password")
}

func TestWriteServiceError_Validation(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, testLogger(), &service.ValidationError{Field: "rating", Message: "must be 1-5"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "VALIDATION_FAILED", resp.Code)
	assert.Equal(t, "rating", resp.Field)
}

func TestWriteServiceError_Incomplete(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, testLogger(), &service.IncompleteError{Fields: []string{"name", "category"}})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp dto.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INCOMPLETE_DRAFT", resp.Code)
	assert.Equal(t, []string{"name", "category"}, resp.Fields)
}
