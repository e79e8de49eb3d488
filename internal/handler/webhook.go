package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/handler/dto"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/webhook"
)

// Endpoints manages a developer's notification endpoints.
type Endpoints interface {
	Create(ctx context.Context, developerID string, in webhook.EndpointInput) (*model.WebhookEndpoint, string, error)
	List(ctx context.Context, developerID string) ([]*model.WebhookEndpoint, error)
	Get(ctx context.Context, developerID, id string) (*model.WebhookEndpoint, error)
	Update(ctx context.Context, developerID, id string, upd webhook.EndpointUpdate) (*model.WebhookEndpoint, error)
	Delete(ctx context.Context, developerID, id string) error
	RotateSecret(ctx context.Context, developerID, id string) (string, error)
	ListDeliveries(ctx context.Context, developerID, id string, statuses []string, limit, offset int) ([]*model.WebhookDelivery, int, error)
	RetryDelivery(ctx context.Context, developerID, endpointID, deliveryID string) error
}

// DeveloperResolver finds the developer profile of a user.
type DeveloperResolver interface {
	GetProfile(ctx context.Context, userID string) (*model.Developer, error)
}

// WebhookHandler handles developer notification webhook endpoints.
type WebhookHandler struct {
	endpoints  Endpoints
	developers DeveloperResolver
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(endpoints Endpoints, developers DeveloperResolver, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		endpoints:  endpoints,
		developers: developers,
		logger:     logger.With("handler", "webhook"),
	}
}

// developer authenticates the caller, checks the webhook scope and resolves
// their developer profile.
func (h *WebhookHandler) developer(w http.ResponseWriter, r *http.Request) (*model.Developer, bool) {
	authCtx, ok := principal(w, r)
	if !ok {
		return nil, false
	}
	if !authCtx.HasScope(model.ScopeWebhook) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Webhook scope required")
		return nil, false
	}

	dev, err := h.developers.GetProfile(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return nil, false
	}
	return dev, true
}

// Create handles POST /api/developer/webhooks.
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.developer(w, r)
	if !ok {
		return
	}

	var req dto.WebhookEndpointRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	endpoint, secret, err := h.endpoints.Create(r.Context(), dev.ID, webhook.EndpointInput{
		TargetURL:  req.TargetURL,
		EventTypes: req.EventTypes,
		Name:       req.Name,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("webhook endpoint created",
		"endpoint_id", endpoint.ID,
		"developer_id", dev.ID,
	)
	writeJSON(w, http.StatusCreated, dto.WebhookSecretResponse{WebhookEndpoint: endpoint, Secret: secret})
}

// List handles GET /api/developer/webhooks.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.developer(w, r)
	if !ok {
		return
	}

	endpoints, err := h.endpoints.List(r.Context(), dev.ID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": nonNil(endpoints)})
}

// Get handles GET /api/developer/webhooks/{id}.
func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.developer(w, r)
	if !ok {
		return
	}

	endpoint, err := h.endpoints.Get(r.Context(), dev.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

// Update handles PATCH /api/developer/webhooks/{id}.
func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.developer(w, r)
	if !ok {
		return
	}

	var req dto.WebhookEndpointUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	endpoint, err := h.endpoints.Update(r.Context(), dev.ID, chi.URLParam(r, "id"), webhook.EndpointUpdate{
		TargetURL:  req.TargetURL,
		EventTypes: req.EventTypes,
		Name:       req.Name,
		Enabled:    req.Enabled,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoint)
}

// Delete handles DELETE /api/developer/webhooks/{id}.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.developer(w, r)
	if !ok {
		return
	}

	endpointID := chi.URLParam(r, "id")
	if err := h.endpoints.Delete(r.Context(), dev.ID, endpointID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("webhook endpoint deleted",
		"endpoint_id", endpointID,
		"developer_id", dev.ID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// RotateSecret handles POST /api/developer/webhooks/{id}/rotate-secret.
func (h *WebhookHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.developer(w, r)
	if !ok {
		return
	}

	endpointID := chi.URLParam(r, "id")
	secret, err := h.endpoints.RotateSecret(r.Context(), dev.ID, endpointID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("webhook secret rotated",
		"endpoint_id", endpointID,
		"developer_id", dev.ID,
	)
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

// ListDeliveries handles GET /api/developer/webhooks/{id}/deliveries.
func (h *WebhookHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.developer(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(query.Get("per_page"))
	if perPage < 1 || perPage > maxPageLimit {
		perPage = defaultPageLimit
	}

	deliveries, total, err := h.endpoints.ListDeliveries(r.Context(), dev.ID, chi.URLParam(r, "id"), query["status"], perPage, (page-1)*perPage)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DeliveryListResponse{
		Deliveries: nonNil(deliveries),
		Total:      total,
		Page:       page,
		PerPage:    perPage,
	})
}

// RetryDelivery handles POST /api/developer/webhooks/{id}/deliveries/{deliveryID}/retry.
func (h *WebhookHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.developer(w, r)
	if !ok {
		return
	}

	endpointID := chi.URLParam(r, "id")
	deliveryID := chi.URLParam(r, "deliveryID")
	if err := h.endpoints.RetryDelivery(r.Context(), dev.ID, endpointID, deliveryID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("webhook delivery retry requested",
		"delivery_id", deliveryID,
		"endpoint_id", endpointID,
		"developer_id", dev.ID,
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry_scheduled"})
}
