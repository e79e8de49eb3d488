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

// Reviews stores user ratings.
type Reviews interface {
	Upsert(ctx context.Context, userID, slug string, input service.ReviewInput) (*model.Review, error)
	Delete(ctx context.Context, userID, slug string) error
}

// ReviewHandler handles review endpoints.
type ReviewHandler struct {
	svc    Reviews
	logger *slog.Logger
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(svc Reviews, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		svc:    svc,
		logger: logger.With("handler", "review"),
	}
}

// Upsert handles POST /api/apps/{slug}/reviews.
func (h *ReviewHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	var req dto.ReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	review, err := h.svc.Upsert(r.Context(), authCtx.UserID, chi.URLParam(r, "slug"), service.ReviewInput{
		Rating: req.Rating,
		Title:  req.Title,
		Body:   req.Body,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}

// Delete handles DELETE /api/apps/{slug}/reviews.
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), authCtx.UserID, chi.URLParam(r, "slug")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
