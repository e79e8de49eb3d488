package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/metrics"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/repository"
)

const (
	maxAppNameLength     = 80
	maxSummaryLength     = 200
	maxDescriptionLength = 10000
	maxTags              = 10
	maxTagLength         = 30
	maxScreenshots       = 10
	maxPriceCents        = 100_000_00
	defaultCurrency      = "USD"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// ConsoleStore is the persistence needed by the developer console.
type ConsoleStore interface {
	DeveloperStore
	AppStore
	CountReleases(ctx context.Context, appID string) (int, error)
}

// DeveloperService handles developer profiles, apps and drafts.
type DeveloperService struct {
	store   ConsoleStore
	cache   CatalogCache
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewDeveloperService creates a new DeveloperService. cache may be nil.
func NewDeveloperService(store ConsoleStore, cache CatalogCache, recorder metrics.Recorder, logger *slog.Logger) *DeveloperService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &DeveloperService{
		store:   store,
		cache:   cache,
		metrics: recorder,
		logger:  logger.With("component", "developer"),
	}
}

// ProfileInput defines input for creating or updating a developer profile.
// Nil fields are left unchanged on update.
type ProfileInput struct {
	DisplayName  *string
	Website      *string
	SupportEmail *string
}

// CreateProfile registers the user as a developer.
func (s *DeveloperService) CreateProfile(ctx context.Context, userID string, input ProfileInput) (*model.Developer, error) {
	if input.DisplayName == nil {
		return nil, invalid("display_name", "is required")
	}

	dev := &model.Developer{ID: newID(), UserID: userID, CreatedAt: now()}
	dev.UpdatedAt = dev.CreatedAt
	if err := applyProfile(dev, input); err != nil {
		return nil, err
	}

	slug, err := uniqueSlug(ctx, Slugify(dev.DisplayName), s.store.DeveloperSlugExists)
	if err != nil {
		return nil, err
	}
	dev.Slug = slug

	if err := s.store.CreateDeveloper(ctx, dev); err != nil {
		switch {
		case errors.Is(err, repository.ErrDeveloperExists):
			return nil, ErrProfileExists
		case errors.Is(err, repository.ErrSlugExists):
			return nil, ErrSlugTaken
		}
		return nil, err
	}

	s.logger.Info("developer profile created", "developer_id", dev.ID, "user_id", userID)
	return dev, nil
}

// GetProfile returns the user's developer profile.
func (s *DeveloperService) GetProfile(ctx context.Context, userID string) (*model.Developer, error) {
	dev, err := s.store.GetDeveloperByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrDeveloperNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return dev, nil
}

// UpdateProfile changes the profile's public fields. The slug is stable.
func (s *DeveloperService) UpdateProfile(ctx context.Context, userID string, input ProfileInput) (*model.Developer, error) {
	dev, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := applyProfile(dev, input); err != nil {
		return nil, err
	}
	dev.UpdatedAt = now()
	if err := s.store.UpdateDeveloper(ctx, dev); err != nil {
		return nil, err
	}
	return dev, nil
}

func applyProfile(dev *model.Developer, input ProfileInput) error {
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" || len(name) > maxNameLength {
			return invalid("display_name", "must be 1-%d characters", maxNameLength)
		}
		dev.DisplayName = name
	}
	if input.Website != nil {
		site := strings.TrimSpace(*input.Website)
		if site != "" && !isHTTPURL(site) {
			return invalid("website", "must be an http(s) URL")
		}
		dev.Website = site
	}
	if input.SupportEmail != nil {
		email := strings.TrimSpace(*input.SupportEmail)
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				return invalid("support_email", "must be a valid email address")
			}
		}
		dev.SupportEmail = email
	}
	return nil
}

// CreateAppInput defines input for registering a new app.
type CreateAppInput struct {
	PackageName string
	DraftInput
}

// DraftInput holds editable listing fields. Nil fields are left unchanged.
type DraftInput struct {
	Name        *string
	Summary     *string
	Description *string
	Category    *string
	Tags        *[]string
	PriceCents  *int64
	Currency    *string
	IconURL     *string
	Screenshots *[]string
}

// AppWithDraft is a console view of an app and its pending edits.
type AppWithDraft struct {
	App   *model.App      `json:"app"`
	Draft *model.AppDraft `json:"draft"`
}

// CreateApp registers an app in DRAFT. The slug is derived from the name and
// suffixed on collision.
func (s *DeveloperService) CreateApp(ctx context.Context, actor *model.AuthContext, input CreateAppInput) (*AppWithDraft, error) {
	dev, err := s.GetProfile(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	pkg := strings.TrimSpace(input.PackageName)
	if !IsValidPackageName(pkg) {
		return nil, invalid("package_name", "must be a dotted package name such as com.studio.game")
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, invalid("name", "is required")
	}

	ts := now()
	draft := &model.AppDraft{Currency: defaultCurrency, Tags: []string{}, Screenshots: []string{}, UpdatedAt: ts}
	if err := applyDraft(draft, input.DraftInput); err != nil {
		return nil, err
	}

	slug, err := uniqueSlug(ctx, Slugify(draft.Name), s.store.SlugExists)
	if err != nil {
		return nil, err
	}

	app := &model.App{
		ID:          newID(),
		DeveloperID: dev.ID,
		Slug:        slug,
		PackageName: pkg,
		Status:      model.AppStatusDraft,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	app.ApplyDraft(draft)
	draft.AppID = app.ID

	if err := s.store.CreateApp(ctx, app, draft); err != nil {
		switch {
		case errors.Is(err, repository.ErrSlugExists):
			return nil, ErrSlugTaken
		case errors.Is(err, repository.ErrPackageExists):
			return nil, ErrPackageTaken
		}
		return nil, err
	}

	s.metrics.IncAppCreated()
	s.logger.Info("app created", "app_id", app.ID, "slug", app.Slug, "developer_id", dev.ID)
	return &AppWithDraft{App: app, Draft: draft}, nil
}

// ListApps returns the caller's apps in every status.
func (s *DeveloperService) ListApps(ctx context.Context, actor *model.AuthContext) ([]*model.App, error) {
	dev, err := s.GetProfile(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	apps, err := s.store.ListAppsByDeveloper(ctx, dev.ID)
	if err != nil {
		return nil, err
	}
	return lo.Ternary(apps == nil, []*model.App{}, apps), nil
}

// GetApp returns an owned app with its draft.
func (s *DeveloperService) GetApp(ctx context.Context, actor *model.AuthContext, appID string) (*AppWithDraft, error) {
	app, err := ownedApp(ctx, s.store, actor, appID)
	if err != nil {
		return nil, err
	}
	draft, err := s.store.GetDraft(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	return &AppWithDraft{App: app, Draft: draft}, nil
}

// UpdateDraft applies a partial edit to the draft. The public listing is not
// touched until an admin approves a submission. A draft under review is frozen
// so the approved content is the content that was reviewed.
func (s *DeveloperService) UpdateDraft(ctx context.Context, actor *model.AuthContext, appID string, input DraftInput) (*AppWithDraft, error) {
	app, err := ownedApp(ctx, s.store, actor, appID)
	if err != nil {
		return nil, err
	}
	if app.Status == model.AppStatusSuspended || app.Status == model.AppStatusInReview {
		return nil, ErrInvalidTransition
	}

	draft, err := s.store.GetDraft(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if err := applyDraft(draft, input); err != nil {
		return nil, err
	}
	draft.UpdatedAt = now()

	if err := s.store.UpdateDraft(ctx, draft); err != nil {
		return nil, err
	}
	return &AppWithDraft{App: app, Draft: draft}, nil
}

// SubmitForReview moves the app to IN_REVIEW. The draft must be complete and
// the app must have at least one release. A published app leaves the listing
// until the resubmission is approved.
func (s *DeveloperService) SubmitForReview(ctx context.Context, actor *model.AuthContext, appID string) (*model.App, error) {
	app, err := ownedApp(ctx, s.store, actor, appID)
	if err != nil {
		return nil, err
	}
	from := app.Status
	to, err := model.NextStatus(from, model.ActionSubmit)
	if err != nil {
		return nil, err
	}

	draft, err := s.store.GetDraft(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if missing := draft.MissingFields(); len(missing) > 0 {
		return nil, &IncompleteError{Fields: missing}
	}
	n, err := s.store.CountReleases(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNoRelease
	}

	ts := now()
	app.Status = to
	app.ReviewNotes = ""
	app.UpdatedAt = ts
	event := &model.ModerationEvent{
		ID:         newID(),
		AppID:      app.ID,
		ActorID:    actor.UserID,
		Action:     model.ActionSubmit,
		FromStatus: from,
		ToStatus:   to,
		CreatedAt:  ts,
	}
	if err := s.store.ApplyTransition(ctx, app, from, event, &ts); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	if from == model.AppStatusPublished {
		bumpCatalog(ctx, s.cache, s.logger)
	}
	s.metrics.IncAppSubmitted()
	s.logger.Info("app submitted for review", "app_id", app.ID, "from", from)
	return app, nil
}

// History returns an owned app's moderation events, oldest first.
func (s *DeveloperService) History(ctx context.Context, actor *model.AuthContext, appID string) ([]*model.ModerationEvent, error) {
	app, err := ownedApp(ctx, s.store, actor, appID)
	if err != nil {
		return nil, err
	}
	return s.store.ListModerationEvents(ctx, app.ID)
}

type ownershipStore interface {
	GetAppByID(ctx context.Context, id string) (*model.App, error)
	GetDeveloperByUserID(ctx context.Context, userID string) (*model.Developer, error)
}

// ownedApp loads an app the actor may manage: its developer, or an admin.
// Apps owned by someone else are reported as missing.
func ownedApp(ctx context.Context, store ownershipStore, actor *model.AuthContext, appID string) (*model.App, error) {
	app, err := store.GetAppByID(ctx, appID)
	if err != nil {
		if errors.Is(err, repository.ErrAppNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, err
	}
	if actor.IsAdmin() {
		return app, nil
	}

	dev, err := store.GetDeveloperByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrDeveloperNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if dev.ID != app.DeveloperID {
		return nil, ErrAppNotFound
	}
	return app, nil
}

func applyDraft(d *model.AppDraft, in DraftInput) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || len(name) > maxAppNameLength {
			return invalid("name", "must be 1-%d characters", maxAppNameLength)
		}
		d.Name = name
	}
	if in.Summary != nil {
		summary := strings.TrimSpace(*in.Summary)
		if len(summary) > maxSummaryLength {
			return invalid("summary", "must be at most %d characters", maxSummaryLength)
		}
		d.Summary = summary
	}
	if in.Description != nil {
		if len(*in.Description) > maxDescriptionLength {
			return invalid("description", "must be at most %d characters", maxDescriptionLength)
		}
		d.Description = *in.Description
	}
	if in.Category != nil {
		if *in.Category != "" && !model.IsValidCategory(*in.Category) {
			return invalid("category", "unknown category %q", *in.Category)
		}
		d.Category = *in.Category
	}
	if in.Tags != nil {
		tags := lo.Uniq(lo.FilterMap(*in.Tags, func(t string, _ int) (string, bool) {
			t = strings.ToLower(strings.TrimSpace(t))
			return t, t != ""
		}))
		if len(tags) > maxTags {
			return invalid("tags", "at most %d tags", maxTags)
		}
		if _, tooLong := lo.Find(tags, func(t string) bool { return len(t) > maxTagLength }); tooLong {
			return invalid("tags", "each tag must be at most %d characters", maxTagLength)
		}
		d.Tags = tags
	}
	if in.PriceCents != nil {
		if *in.PriceCents < 0 || *in.PriceCents > maxPriceCents {
			return invalid("price_cents", "must be within 0..%d", maxPriceCents)
		}
		d.PriceCents = *in.PriceCents
	}
	if in.Currency != nil {
		cur := strings.ToUpper(strings.TrimSpace(*in.Currency))
		if !currencyPattern.MatchString(cur) {
			return invalid("currency", "must be a three-letter ISO 4217 code")
		}
		d.Currency = cur
	}
	if in.IconURL != nil {
		if *in.IconURL != "" && !isHTTPURL(*in.IconURL) {
			return invalid("icon_url", "must be an http(s) URL")
		}
		d.IconURL = *in.IconURL
	}
	if in.Screenshots != nil {
		if len(*in.Screenshots) > maxScreenshots {
			return invalid("screenshots", "at most %d screenshots", maxScreenshots)
		}
		if bad, found := lo.Find(*in.Screenshots, func(u string) bool { return !isHTTPURL(u) }); found {
			return invalid("screenshots", "%q is not an http(s) URL", bad)
		}
		d.Screenshots = append([]string{}, *in.Screenshots...)
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "https" || u.Scheme == "http"
}

// bumpCatalog starts a new catalog generation. Failures only delay
// visibility until cached pages expire.
func bumpCatalog(ctx context.Context, cache CatalogCache, logger *slog.Logger) {
	if cache == nil {
		return
	}
	if err := cache.BumpCatalogVersion(ctx); err != nil {
		logger.Warn("catalog cache invalidation failed", "error", err)
	}
}
