package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/handler/dto"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/payments"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/service"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/webhook"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{service.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrAPIKeyNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrProfileNotFound, http.StatusNotFound, "PROFILE_REQUIRED"},
	{service.ErrAppNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrReleaseNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrReviewNotFound, http.StatusNotFound, "NOT_FOUND"},
	{webhook.ErrEndpointNotFound, http.StatusNotFound, "NOT_FOUND"},
	{webhook.ErrDeliveryNotFound, http.StatusNotFound, "NOT_FOUND"},

	{service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{service.ErrPurchaseRequired, http.StatusPaymentRequired, "PURCHASE_REQUIRED"},

	{service.ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN"},
	{service.ErrProfileExists, http.StatusConflict, "PROFILE_EXISTS"},
	{service.ErrSlugTaken, http.StatusConflict, "SLUG_TAKEN"},
	{service.ErrPackageTaken, http.StatusConflict, "PACKAGE_TAKEN"},
	{service.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{service.ErrConcurrentUpdate, http.StatusConflict, "CONCURRENT_UPDATE"},
	{service.ErrVersionNotIncreasing, http.StatusConflict, "VERSION_NOT_INCREASING"},
	{service.ErrLastRelease, http.StatusConflict, "LAST_RELEASE"},
	{service.ErrAlreadyOwned, http.StatusConflict, "ALREADY_OWNED"},
	{service.ErrPayoutInProgress, http.StatusConflict, "PAYOUT_IN_PROGRESS"},
	{webhook.ErrTooManyEndpoints, http.StatusConflict, "LIMIT_REACHED"},
	{webhook.ErrDeliveryNotFailed, http.StatusConflict, "NOT_RETRYABLE"},

	{service.ErrNoRelease, http.StatusUnprocessableEntity, "NO_RELEASE"},
	{service.ErrNotesRequired, http.StatusBadRequest, "NOTES_REQUIRED"},
	{service.ErrFreeApp, http.StatusBadRequest, "FREE_APP"},
	{service.ErrProviderUnavailable, http.StatusBadRequest, "PROVIDER_UNAVAILABLE"},
	{service.ErrInvalidCursor, http.StatusBadRequest, "INVALID_CURSOR"},

	{webhook.ErrInvalidEventType, http.StatusBadRequest, "INVALID_EVENT_TYPE"},
	{webhook.ErrInvalidStatus, http.StatusBadRequest, "INVALID_STATUS"},
	{webhook.ErrNameTooLong, http.StatusBadRequest, "VALIDATION_FAILED"},
	{webhook.ErrInvalidURL, http.StatusBadRequest, "INVALID_URL"},
	{webhook.ErrInvalidScheme, http.StatusBadRequest, "INVALID_URL"},
	{webhook.ErrInvalidPort, http.StatusBadRequest, "INVALID_URL"},
	{webhook.ErrPrivateTarget, http.StatusBadRequest, "INVALID_URL"},

	{payments.ErrInvalidSignature, http.StatusBadRequest, "INVALID_SIGNATURE"},
	{payments.ErrMalformedPayload, http.StatusBadRequest, "MALFORMED_PAYLOAD"},
	{payments.ErrUnsupported, http.StatusBadRequest, "UNSUPPORTED"},
}

// writeServiceError maps domain errors to API errors. Anything unknown is
// logged and reported as a 500 without details.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error: validation.Error(),
			Code:  "VALIDATION_FAILED",
			Field: validation.Field,
		})
		return
	}
	var incomplete *service.IncompleteError
	if errors.As(err, &incomplete) {
		writeJSON(w, http.StatusUnprocessableEntity, dto.ErrorResponse{
			Error:  incomplete.Error(),
			Code:   "INCOMPLETE_DRAFT",
			Fields: incomplete.Fields,
		})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, m.err.Error())
			return
		}
	}

	logger.Error("unhandled service error", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
}
