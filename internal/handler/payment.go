package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/handler/dto"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/service"
)

// maxWebhookPayload bounds provider webhook bodies.
const maxWebhookPayload = 64 << 10

// Purchases runs checkouts and provider callbacks.
type Purchases interface {
	Checkout(ctx context.Context, userID, slug, provider string) (*service.CheckoutResult, error)
	HandleWebhook(ctx context.Context, provider string, payload []byte, header http.Header) error
	Library(ctx context.Context, userID string) ([]*model.Purchase, error)
}

// PaymentHandler handles checkout, library and provider webhook endpoints.
type PaymentHandler struct {
	svc    Purchases
	logger *slog.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc Purchases, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		svc:    svc,
		logger: logger.With("handler", "payment"),
	}
}

// Checkout handles POST /api/checkout.
func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	var req dto.CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Checkout(r.Context(), authCtx.UserID, req.Slug, req.Provider)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Library handles GET /api/account/library.
func (h *PaymentHandler) Library(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	purchases, err := h.svc.Library(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": nonNil(purchases)})
}

// ProviderWebhook returns the handler for POST /api/webhooks/{provider}.
// Signatures are checked over the raw body, so it is read before decoding.
func (h *PaymentHandler) ProviderWebhook(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookPayload+1))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
			return
		}
		if len(payload) > maxWebhookPayload {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body too large")
			return
		}

		if err := h.svc.HandleWebhook(r.Context(), provider, payload, r.Header); err != nil {
			if errors.Is(err, service.ErrProviderUnavailable) {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
				return
			}
			h.logger.Warn("provider webhook rejected", "provider", provider, "error", err)
			writeServiceError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
	}
}
