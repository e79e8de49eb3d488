package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/auth"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/handler/dto"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/service"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/sideload"
)

// Catalog is the storefront read model.
type Catalog interface {
	ListApps(ctx context.Context, input service.ListAppsInput) (*service.Page[*model.App], error)
	GetApp(ctx context.Context, slug string) (*service.AppDetail, error)
	ListReviews(ctx context.Context, slug, cursor string, limit int) (*service.Page[*model.Review], error)
	ListReleases(ctx context.Context, slug string, channel model.Channel) ([]*model.Release, error)
	Categories(ctx context.Context) ([]service.CategorySummary, error)
	Download(ctx context.Context, slug string, channel model.Channel, principal *model.AuthContext) (*model.Release, error)
	SideloadManifest(ctx context.Context, slug string, channel model.Channel, principal *model.AuthContext) (*model.SideloadManifest, error)
}

// CatalogHandler serves the public storefront.
type CatalogHandler struct {
	svc     Catalog
	metrics sideloadRecorder
	logger  *slog.Logger
}

type sideloadRecorder interface {
	IncSideloadManifest(compatible bool)
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(svc Catalog, recorder sideloadRecorder, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		svc:     svc,
		metrics: recorder,
		logger:  logger.With("handler", "catalog"),
	}
}

// ListApps handles GET /api/public/apps.
func (h *CatalogHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, err := h.svc.ListApps(r.Context(), service.ListAppsInput{
		Query:    query.Get("q"),
		Category: query.Get("category"),
		Sort:     query.Get("sort"),
		Cursor:   query.Get("cursor"),
		Limit:    queryLimit(r),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(page.Items, page.NextCursor))
}

// GetApp handles GET /api/public/apps/{slug}.
func (h *CatalogHandler) GetApp(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetApp(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.AppDetailResponse{App: detail.App, LatestRelease: detail.LatestRelease})
}

// ListReviews handles GET /api/public/apps/{slug}/reviews.
func (h *CatalogHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListReviews(r.Context(), chi.URLParam(r, "slug"), r.URL.Query().Get("cursor"), queryLimit(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(page.Items, page.NextCursor))
}

// ListReleases handles GET /api/public/apps/{slug}/releases.
func (h *CatalogHandler) ListReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := h.svc.ListReleases(r.Context(), chi.URLParam(r, "slug"), queryChannel(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"releases": nonNil(releases)})
}

// Categories handles GET /api/public/categories.
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Categories(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": nonNil(categories)})
}

// Download handles GET /api/public/apps/{slug}/download by redirecting to the
// artifact. Paid apps need a signed-in owner.
func (h *CatalogHandler) Download(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	release, err := h.svc.Download(r.Context(), slug, queryChannel(r), auth.AuthFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("download served",
		"slug", slug,
		"release_id", release.ID,
		"version_code", release.VersionCode,
	)

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, release.Artifact.URL, http.StatusFound)
}

// Sideload handles GET /api/public/apps/{slug}/sideload. The browser reports
// WebUSB support with ?webusb=1; the user agent and origin come from headers.
func (h *CatalogHandler) Sideload(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.svc.SideloadManifest(r.Context(), chi.URLParam(r, "slug"), queryChannel(r), auth.AuthFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	verdict := sideload.Evaluate(sideloadEnvironment(r))
	h.metrics.IncSideloadManifest(verdict.Compatible)

	writeJSON(w, http.StatusOK, dto.SideloadResponse{Manifest: manifest, Preflight: verdict})
}

func sideloadEnvironment(r *http.Request) sideload.Environment {
	webUSB, _ := strconv.ParseBool(r.URL.Query().Get("webusb"))

	origin := r.Header.Get("Origin")
	if origin == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		origin = scheme + "://" + r.Host
	}

	return sideload.Environment{
		WebUSB:    webUSB,
		UserAgent: r.UserAgent(),
		Origin:    origin,
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
