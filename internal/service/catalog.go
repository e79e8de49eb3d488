package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/metrics"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/repository"
)

const (
	defaultPageSize = 20
	maxCatalogPage  = 50
	maxQueryLength  = 100
)

// CatalogStore is the persistence needed by the storefront.
type CatalogStore interface {
	AppStore
	ReleaseStore
	ReviewStore
	DeveloperStore
	HasCompletedPurchase(ctx context.Context, appID, userID string) (bool, error)
}

// CatalogService serves the public storefront.
type CatalogService struct {
	store    CatalogStore
	cache    CatalogCache
	cacheTTL time.Duration
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewCatalogService creates a new CatalogService. cache may be nil.
func NewCatalogService(store CatalogStore, cache CatalogCache, cacheTTL time.Duration, recorder metrics.Recorder, logger *slog.Logger) *CatalogService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &CatalogService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  recorder,
		logger:   logger.With("component", "catalog"),
	}
}

// ListAppsInput defines storefront listing parameters.
type ListAppsInput struct {
	Query    string
	Category string
	Sort     string
	Cursor   string
	Limit    int
}

// AppDetail is a published app with its current stable build.
type AppDetail struct {
	App           *model.App
	LatestRelease *model.Release
}

// CategorySummary is a shelf with its published app count.
type CategorySummary struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// ListApps returns published apps. Pages are cached per catalog generation;
// any cache failure falls through to the database.
func (s *CatalogService) ListApps(ctx context.Context, input ListAppsInput) (*Page[*model.App], error) {
	input.Query = strings.TrimSpace(input.Query)
	if len(input.Query) > maxQueryLength {
		return nil, invalid("q", "must be at most %d characters", maxQueryLength)
	}
	if input.Category != "" && !model.IsValidCategory(input.Category) {
		return nil, invalid("category", "unknown category %q", input.Category)
	}
	switch input.Sort {
	case "":
		input.Sort = repository.SortNew
	case repository.SortNew, repository.SortPopular, repository.SortRating, repository.SortPrice:
	default:
		return nil, invalid("sort", "must be one of new, popular, rating, price")
	}
	input.Limit = clampLimit(input.Limit, defaultPageSize, maxCatalogPage)

	cacheKey := fmt.Sprintf("q=%s|c=%s|s=%s|cur=%s|l=%d",
		strings.ToLower(input.Query), input.Category, input.Sort, input.Cursor, input.Limit)

	version, cached := s.cachedPage(ctx, cacheKey)
	if cached != nil {
		return cached, nil
	}

	filter := repository.AppFilter{Query: input.Query, Category: input.Category, Sort: input.Sort}
	apps, next, err := s.store.ListPublishedApps(ctx, filter, input.Cursor, input.Limit)
	if err != nil {
		return nil, err
	}
	page := &Page[*model.App]{Items: lo.Ternary(apps == nil, []*model.App{}, apps), NextCursor: next}

	if s.cache != nil && version >= 0 {
		if err := s.cache.SetCatalogPage(ctx, version, cacheKey, page, s.cacheTTL); err != nil {
			s.logger.Warn("catalog cache write failed", "error", err)
		}
	}
	return page, nil
}

// cachedPage returns the catalog generation and a cached page if present.
// A negative version means the cache is unavailable.
func (s *CatalogService) cachedPage(ctx context.Context, key string) (int64, *Page[*model.App]) {
	if s.cache == nil {
		return -1, nil
	}
	version, err := s.cache.CatalogVersion(ctx)
	if err != nil {
		s.logger.Warn("catalog cache unavailable", "error", err)
		return -1, nil
	}

	var page Page[*model.App]
	if err := s.cache.GetCatalogPage(ctx, version, key, &page); err != nil {
		s.metrics.IncCatalogCacheMiss()
		return version, nil
	}
	s.metrics.IncCatalogCacheHit()
	return version, &page
}

// GetApp returns a published app and its latest stable release, if any.
func (s *CatalogService) GetApp(ctx context.Context, slug string) (*AppDetail, error) {
	app, err := s.publishedApp(ctx, slug)
	if err != nil {
		return nil, err
	}

	detail := &AppDetail{App: app}
	rel, err := s.store.LatestRelease(ctx, app.ID, model.ChannelStable)
	switch {
	case err == nil:
		detail.LatestRelease = rel
	case !errors.Is(err, repository.ErrReleaseNotFound):
		return nil, err
	}
	return detail, nil
}

// ListReviews returns a published app's reviews, newest first.
func (s *CatalogService) ListReviews(ctx context.Context, slug, cursor string, limit int) (*Page[*model.Review], error) {
	app, err := s.publishedApp(ctx, slug)
	if err != nil {
		return nil, err
	}
	reviews, next, err := s.store.ListReviews(ctx, app.ID, cursor, clampLimit(limit, defaultPageSize, maxCatalogPage))
	if err != nil {
		return nil, err
	}
	return &Page[*model.Review]{Items: lo.Ternary(reviews == nil, []*model.Review{}, reviews), NextCursor: next}, nil
}

// ListReleases returns a published app's releases. An empty channel lists all.
func (s *CatalogService) ListReleases(ctx context.Context, slug string, channel model.Channel) ([]*model.Release, error) {
	if channel != "" && !channel.IsValid() {
		return nil, invalid("channel", "must be one of stable, beta, alpha")
	}
	app, err := s.publishedApp(ctx, slug)
	if err != nil {
		return nil, err
	}
	releases, err := s.store.ListReleases(ctx, app.ID, channel)
	if err != nil {
		return nil, err
	}
	return lo.Ternary(releases == nil, []*model.Release{}, releases), nil
}

// Categories lists every shelf with its published app count.
func (s *CatalogService) Categories(ctx context.Context) ([]CategorySummary, error) {
	counts, err := s.store.CountPublishedByCategory(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(model.Categories, func(name string, _ int) CategorySummary {
		return CategorySummary{Name: name, Count: counts[name]}
	}), nil
}

// Download resolves the artifact to serve for an app and counts the download.
// Paid apps require a completed purchase unless the caller owns the app or is
// an admin. principal is nil for anonymous requests.
func (s *CatalogService) Download(ctx context.Context, slug string, channel model.Channel, principal *model.AuthContext) (*model.Release, error) {
	app, rel, err := s.resolveBuild(ctx, slug, channel, principal)
	if err != nil {
		return nil, err
	}

	if err := s.store.IncrementDownloads(ctx, app.ID); err != nil {
		s.logger.Warn("failed to count download", "app_id", app.ID, "error", err)
	}
	s.metrics.IncDownload()
	return rel, nil
}

// SideloadManifest describes the build a sideload client should install.
// Access rules match Download. Fetching a manifest is not a download.
func (s *CatalogService) SideloadManifest(ctx context.Context, slug string, channel model.Channel, principal *model.AuthContext) (*model.SideloadManifest, error) {
	app, rel, err := s.resolveBuild(ctx, slug, channel, principal)
	if err != nil {
		return nil, err
	}
	return &model.SideloadManifest{
		AppID:       app.ID,
		Slug:        app.Slug,
		PackageName: app.PackageName,
		Channel:     rel.Channel,
		VersionName: rel.VersionName,
		VersionCode: rel.VersionCode,
		APKURL:      rel.Artifact.URL,
		SizeBytes:   rel.Artifact.SizeBytes,
		SHA256:      rel.Artifact.SHA256,
	}, nil
}

func (s *CatalogService) resolveBuild(ctx context.Context, slug string, channel model.Channel, principal *model.AuthContext) (*model.App, *model.Release, error) {
	if channel == "" {
		channel = model.ChannelStable
	}
	if !channel.IsValid() {
		return nil, nil, invalid("channel", "must be one of stable, beta, alpha")
	}

	app, err := s.store.GetAppBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrAppNotFound) {
			return nil, nil, ErrAppNotFound
		}
		return nil, nil, err
	}

	privileged, err := s.isPrivileged(ctx, app, principal)
	if err != nil {
		return nil, nil, err
	}
	if !app.IsPublished() && !privileged {
		return nil, nil, ErrAppNotFound
	}

	if !app.IsFree() && !privileged {
		if principal == nil {
			return nil, nil, ErrPurchaseRequired
		}
		owned, err := s.store.HasCompletedPurchase(ctx, app.ID, principal.UserID)
		if err != nil {
			return nil, nil, err
		}
		if !owned {
			return nil, nil, ErrPurchaseRequired
		}
	}

	rel, err := s.store.LatestRelease(ctx, app.ID, channel)
	if err != nil {
		if errors.Is(err, repository.ErrReleaseNotFound) {
			return nil, nil, ErrReleaseNotFound
		}
		return nil, nil, err
	}
	if rel.Artifact == nil {
		return nil, nil, fmt.Errorf("release %s has no artifact", rel.ID)
	}

	return app, rel, nil
}

// isPrivileged reports whether the principal is an admin or the app's developer.
func (s *CatalogService) isPrivileged(ctx context.Context, app *model.App, principal *model.AuthContext) (bool, error) {
	if principal == nil {
		return false, nil
	}
	if principal.IsAdmin() {
		return true, nil
	}
	if !principal.HasRole(model.RoleDeveloper) {
		return false, nil
	}
	dev, err := s.store.GetDeveloperByUserID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrDeveloperNotFound) {
			return false, nil
		}
		return false, err
	}
	return dev.ID == app.DeveloperID, nil
}

func (s *CatalogService) publishedApp(ctx context.Context, slug string) (*model.App, error) {
	app, err := s.store.GetAppBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrAppNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, err
	}
	if !app.IsPublished() {
		return nil, ErrAppNotFound
	}
	return app, nil
}
