package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/handler/dto"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/service"
)

// Moderation is the admin review queue.
type Moderation interface {
	Queue(ctx context.Context, status model.AppStatus, cursor string, limit int) (*service.Page[*model.App], error)
	Decide(ctx context.Context, admin *model.AuthContext, input service.DecideInput) (*model.App, error)
	History(ctx context.Context, appID string) ([]*model.ModerationEvent, error)
	Stats(ctx context.Context) (*service.Stats, error)
}

// PayoutRunner triggers a payout run outside the schedule.
type PayoutRunner interface {
	RunPayouts(ctx context.Context) (*service.PayoutReport, error)
}

// AdminHandler handles admin moderation endpoints.
type AdminHandler struct {
	moderation Moderation
	payouts    PayoutRunner
	logger     *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(moderation Moderation, payouts PayoutRunner, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		moderation: moderation,
		payouts:    payouts,
		logger:     logger.With("handler", "admin"),
	}
}

// Queue handles GET /api/admin/apps?status=IN_REVIEW.
func (h *AdminHandler) Queue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := h.moderation.Queue(r.Context(), model.AppStatus(query.Get("status")), query.Get("cursor"), queryLimit(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(page.Items, page.NextCursor))
}

// Decide handles POST /api/admin/apps/{appID}/review.
func (h *AdminHandler) Decide(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	var req dto.DecideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appID := chi.URLParam(r, "appID")
	app, err := h.moderation.Decide(r.Context(), authCtx, service.DecideInput{
		AppID:  appID,
		Action: req.Action,
		Notes:  req.Notes,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("moderation decision",
		"app_id", appID,
		"action", req.Action,
		"status", app.Status,
		"admin_id", authCtx.UserID,
	)
	writeJSON(w, http.StatusOK, app)
}

// History handles GET /api/admin/apps/{appID}/history.
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	events, err := h.moderation.History(r.Context(), chi.URLParam(r, "appID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

// Stats handles GET /api/admin/stats.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.moderation.Stats(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// RunPayouts handles POST /api/admin/payouts/run. The run is synchronous.
func (h *AdminHandler) RunPayouts(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	h.logger.Info("manual payout run requested", "admin_id", authCtx.UserID)
	report, err := h.payouts.RunPayouts(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
