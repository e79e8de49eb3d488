package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/metrics"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/repository"
)

const (
	maxVersionNameLength = 50
	maxReleaseNotes      = 5000
	maxArtifactBytes     = 8 << 30
)

// ReleaseConsoleStore is the persistence needed for release management.
type ReleaseConsoleStore interface {
	ReleaseStore
	GetAppByID(ctx context.Context, id string) (*model.App, error)
	GetDeveloperByUserID(ctx context.Context, userID string) (*model.Developer, error)
}

// ReleaseService manages versioned builds of developer apps.
type ReleaseService struct {
	store   ReleaseConsoleStore
	cache   CatalogCache
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewReleaseService creates a new ReleaseService. cache may be nil.
func NewReleaseService(store ReleaseConsoleStore, cache CatalogCache, recorder metrics.Recorder, logger *slog.Logger) *ReleaseService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ReleaseService{
		store:   store,
		cache:   cache,
		metrics: recorder,
		logger:  logger.With("component", "release"),
	}
}

// CreateReleaseInput defines a new build and its artifact.
type CreateReleaseInput struct {
	Channel     model.Channel
	VersionName string
	VersionCode int64
	Notes       string
	ArtifactURL string
	SizeBytes   int64
	SHA256      string
}

// ListReleases returns an owned app's releases. An empty channel lists all.
func (s *ReleaseService) ListReleases(ctx context.Context, actor *model.AuthContext, appID string, channel model.Channel) ([]*model.Release, error) {
	if channel != "" && !channel.IsValid() {
		return nil, invalid("channel", "must be one of stable, beta, alpha")
	}
	app, err := ownedApp(ctx, s.store, actor, appID)
	if err != nil {
		return nil, err
	}
	releases, err := s.store.ListReleases(ctx, app.ID, channel)
	if err != nil {
		return nil, err
	}
	return lo.Ternary(releases == nil, []*model.Release{}, releases), nil
}

// CreateRelease records a build. Its version code must exceed the latest on
// the same channel.
func (s *ReleaseService) CreateRelease(ctx context.Context, actor *model.AuthContext, appID string, input CreateReleaseInput) (*model.Release, error) {
	if err := validateRelease(&input); err != nil {
		return nil, err
	}
	app, err := ownedApp(ctx, s.store, actor, appID)
	if err != nil {
		return nil, err
	}
	if app.Status == model.AppStatusSuspended {
		return nil, ErrInvalidTransition
	}

	ts := now()
	artifact := &model.Artifact{
		ID:        newID(),
		AppID:     app.ID,
		URL:       input.ArtifactURL,
		SizeBytes: input.SizeBytes,
		SHA256:    input.SHA256,
		CreatedAt: ts,
	}
	release := &model.Release{
		ID:          newID(),
		AppID:       app.ID,
		Channel:     input.Channel,
		VersionName: input.VersionName,
		VersionCode: input.VersionCode,
		Notes:       input.Notes,
		ArtifactID:  artifact.ID,
		CreatedAt:   ts,
		Artifact:    artifact,
	}

	if err := s.store.CreateRelease(ctx, artifact, release); err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionNotIncreasing):
			return nil, ErrVersionNotIncreasing
		case errors.Is(err, repository.ErrAppNotFound):
			return nil, ErrAppNotFound
		}
		return nil, err
	}

	if app.IsPublished() {
		bumpCatalog(ctx, s.cache, s.logger)
	}
	s.metrics.IncReleaseCreated()
	s.logger.Info("release created",
		"app_id", app.ID,
		"release_id", release.ID,
		"channel", release.Channel,
		"version_code", release.VersionCode,
	)
	return release, nil
}

// DeleteRelease removes a release. A published app keeps at least one.
func (s *ReleaseService) DeleteRelease(ctx context.Context, actor *model.AuthContext, appID, releaseID string) error {
	app, err := ownedApp(ctx, s.store, actor, appID)
	if err != nil {
		return err
	}

	rel, err := s.store.GetRelease(ctx, releaseID)
	if err != nil {
		if errors.Is(err, repository.ErrReleaseNotFound) {
			return ErrReleaseNotFound
		}
		return err
	}
	if rel.AppID != app.ID {
		return ErrReleaseNotFound
	}

	if app.IsPublished() {
		if err := s.keepsPublishedBuild(ctx, app.ID, rel); err != nil {
			return err
		}
	}

	if err := s.store.DeleteRelease(ctx, rel.ID); err != nil {
		if errors.Is(err, repository.ErrReleaseNotFound) {
			return ErrReleaseNotFound
		}
		return err
	}

	if app.IsPublished() {
		bumpCatalog(ctx, s.cache, s.logger)
	}
	s.logger.Info("release deleted", "app_id", app.ID, "release_id", rel.ID)
	return nil
}

// keepsPublishedBuild rejects deleting the last release of a published app
// or its last stable release, which the listing and downloads serve.
func (s *ReleaseService) keepsPublishedBuild(ctx context.Context, appID string, rel *model.Release) error {
	n, err := s.store.CountReleases(ctx, appID)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastRelease
	}
	if rel.Channel != model.ChannelStable {
		return nil
	}
	stable, err := s.store.ListReleases(ctx, appID, model.ChannelStable)
	if err != nil {
		return err
	}
	if len(stable) <= 1 {
		return ErrLastRelease
	}
	return nil
}

func validateRelease(in *CreateReleaseInput) error {
	if in.Channel == "" {
		in.Channel = model.ChannelStable
	}
	if !in.Channel.IsValid() {
		return invalid("channel", "must be one of stable, beta, alpha")
	}
	in.VersionName = strings.TrimSpace(in.VersionName)
	if in.VersionName == "" || len(in.VersionName) > maxVersionNameLength {
		return invalid("version_name", "must be 1-%d characters", maxVersionNameLength)
	}
	if in.VersionCode <= 0 {
		return invalid("version_code", "must be positive")
	}
	if len(in.Notes) > maxReleaseNotes {
		return invalid("notes", "must be at most %d characters", maxReleaseNotes)
	}
	if !isHTTPURL(in.ArtifactURL) {
		return invalid("artifact.url", "must be an http(s) URL")
	}
	if in.SizeBytes <= 0 || in.SizeBytes > maxArtifactBytes {
		return invalid("artifact.size_bytes", "must be within 1..%d", int64(maxArtifactBytes))
	}
	in.SHA256 = strings.ToLower(strings.TrimSpace(in.SHA256))
	if !model.IsValidSHA256(in.SHA256) {
		return invalid("artifact.sha256", "must be a hex SHA-256 digest")
	}
	return nil
}
