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

// DeveloperConsole manages profiles and app listings.
type DeveloperConsole interface {
	CreateProfile(ctx context.Context, userID string, input service.ProfileInput) (*model.Developer, error)
	GetProfile(ctx context.Context, userID string) (*model.Developer, error)
	UpdateProfile(ctx context.Context, userID string, input service.ProfileInput) (*model.Developer, error)
	CreateApp(ctx context.Context, actor *model.AuthContext, input service.CreateAppInput) (*service.AppWithDraft, error)
	ListApps(ctx context.Context, actor *model.AuthContext) ([]*model.App, error)
	GetApp(ctx context.Context, actor *model.AuthContext, appID string) (*service.AppWithDraft, error)
	UpdateDraft(ctx context.Context, actor *model.AuthContext, appID string, input service.DraftInput) (*service.AppWithDraft, error)
	SubmitForReview(ctx context.Context, actor *model.AuthContext, appID string) (*model.App, error)
	History(ctx context.Context, actor *model.AuthContext, appID string) ([]*model.ModerationEvent, error)
}

// Releases manages builds of owned apps.
type Releases interface {
	ListReleases(ctx context.Context, actor *model.AuthContext, appID string, channel model.Channel) ([]*model.Release, error)
	CreateRelease(ctx context.Context, actor *model.AuthContext, appID string, input service.CreateReleaseInput) (*model.Release, error)
	DeleteRelease(ctx context.Context, actor *model.AuthContext, appID, releaseID string) error
}

// Payouts manages a developer's payout destination and history.
type Payouts interface {
	SetupPayouts(ctx context.Context, userID string, input service.SetupPayoutsInput) (*service.PayoutSetup, error)
	ListPayouts(ctx context.Context, userID string) ([]*model.Payout, error)
}

// SessionRefresher reissues a token after the user's role changes.
type SessionRefresher interface {
	RefreshSession(ctx context.Context, userID string) (*service.Session, error)
}

// DeveloperHandler serves the developer console.
type DeveloperHandler struct {
	console  DeveloperConsole
	releases Releases
	payouts  Payouts
	sessions SessionRefresher
	logger   *slog.Logger
}

// NewDeveloperHandler creates a new DeveloperHandler.
func NewDeveloperHandler(console DeveloperConsole, releases Releases, payouts Payouts, sessions SessionRefresher, logger *slog.Logger) *DeveloperHandler {
	return &DeveloperHandler{
		console:  console,
		releases: releases,
		payouts:  payouts,
		sessions: sessions,
		logger:   logger.With("handler", "developer"),
	}
}

// CreateProfile handles POST /api/developer/profile. The response carries a
// fresh session because the caller's role changes to developer.
func (h *DeveloperHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	var req dto.ProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	dev, err := h.console.CreateProfile(r.Context(), authCtx.UserID, profileInput(req))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := dto.ProfileCreatedResponse{Developer: dev}
	if authCtx.Method == model.AuthMethodSession {
		session, err := h.sessions.RefreshSession(r.Context(), authCtx.UserID)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		resp.Session = toSessionResponse(session)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetProfile handles GET /api/developer/profile.
func (h *DeveloperHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	dev, err := h.console.GetProfile(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// UpdateProfile handles PATCH /api/developer/profile.
func (h *DeveloperHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	var req dto.ProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	dev, err := h.console.UpdateProfile(r.Context(), authCtx.UserID, profileInput(req))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// CreateApp handles POST /api/developer/apps.
func (h *DeveloperHandler) CreateApp(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	var req dto.CreateAppRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.console.CreateApp(r.Context(), authCtx, service.CreateAppInput{
		PackageName: req.PackageName,
		DraftInput:  draftInput(req.DraftRequest),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListApps handles GET /api/developer/apps.
func (h *DeveloperHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	apps, err := h.console.ListApps(r.Context(), authCtx)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": nonNil(apps)})
}

// GetApp handles GET /api/developer/apps/{appID}.
func (h *DeveloperHandler) GetApp(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	app, err := h.console.GetApp(r.Context(), authCtx, chi.URLParam(r, "appID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// UpdateDraft handles PATCH /api/developer/apps/{appID}/draft.
func (h *DeveloperHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	var req dto.DraftRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	app, err := h.console.UpdateDraft(r.Context(), authCtx, chi.URLParam(r, "appID"), draftInput(req))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// Submit handles POST /api/developer/apps/{appID}/submit.
func (h *DeveloperHandler) Submit(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	app, err := h.console.SubmitForReview(r.Context(), authCtx, chi.URLParam(r, "appID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// History handles GET /api/developer/apps/{appID}/history.
func (h *DeveloperHandler) History(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	events, err := h.console.History(r.Context(), authCtx, chi.URLParam(r, "appID"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

// ListReleases handles GET /api/developer/apps/{appID}/releases.
func (h *DeveloperHandler) ListReleases(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	releases, err := h.releases.ListReleases(r.Context(), authCtx, chi.URLParam(r, "appID"), queryChannel(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"releases": nonNil(releases)})
}

// CreateRelease handles POST /api/developer/apps/{appID}/releases.
func (h *DeveloperHandler) CreateRelease(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	var req dto.CreateReleaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	release, err := h.releases.CreateRelease(r.Context(), authCtx, chi.URLParam(r, "appID"), service.CreateReleaseInput{
		Channel:     req.Channel,
		VersionName: req.VersionName,
		VersionCode: req.VersionCode,
		Notes:       req.Notes,
		ArtifactURL: req.Artifact.URL,
		SizeBytes:   req.Artifact.SizeBytes,
		SHA256:      req.Artifact.SHA256,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, release)
}

// DeleteRelease handles DELETE /api/developer/apps/{appID}/releases/{releaseID}.
func (h *DeveloperHandler) DeleteRelease(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	if err := h.releases.DeleteRelease(r.Context(), authCtx, chi.URLParam(r, "appID"), chi.URLParam(r, "releaseID")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetupPayouts handles POST /api/developer/payouts/setup.
func (h *DeveloperHandler) SetupPayouts(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	var req dto.SetupPayoutsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	setup, err := h.payouts.SetupPayouts(r.Context(), authCtx.UserID, service.SetupPayoutsInput{
		Provider:   req.Provider,
		Country:    req.Country,
		MpesaPhone: req.MpesaPhone,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

// ListPayouts handles GET /api/developer/payouts.
func (h *DeveloperHandler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := principal(w, r)
	if !ok {
		return
	}

	payouts, err := h.payouts.ListPayouts(r.Context(), authCtx.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payouts": nonNil(payouts)})
}

func profileInput(req dto.ProfileRequest) service.ProfileInput {
	return service.ProfileInput{
		DisplayName:  req.DisplayName,
		Website:      req.Website,
		SupportEmail: req.SupportEmail,
	}
}

func draftInput(req dto.DraftRequest) service.DraftInput {
	return service.DraftInput{
		Name:        req.Name,
		Summary:     req.Summary,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		IconURL:     req.IconURL,
		Screenshots: req.Screenshots,
	}
}
