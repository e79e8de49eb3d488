package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

func validRelease(code int64) CreateReleaseInput {
	return CreateReleaseInput{
		VersionName: fmt.Sprintf("1.0.%d", code),
		VersionCode: code,
		ArtifactURL: "https://cdn.example.com/build.apk",
		SizeBytes:   2048,
		SHA256:      strings.Repeat("AB", 32),
	}
}

func TestCreateRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	created, err := env.developers.CreateApp(ctx, dev, CreateAppInput{PackageName: "com.studio.game", DraftInput: DraftInput{Name: ptr("Game")}})
	require.NoError(t, err)
	appID := created.App.ID

	rel, err := env.releases.CreateRelease(ctx, dev, appID, validRelease(1))
	require.NoError(t, err)
	assert.Equal(t, model.ChannelStable, rel.Channel)
	assert.Equal(t, strings.Repeat("ab", 32), rel.Artifact.SHA256)
	assert.Equal(t, rel.ArtifactID, rel.Artifact.ID)

	_, err = env.releases.CreateRelease(ctx, dev, appID, validRelease(1))
	assert.ErrorIs(t, err, ErrVersionNotIncreasing)

	beta := validRelease(1)
	beta.Channel = model.ChannelBeta
	_, err = env.releases.CreateRelease(ctx, dev, appID, beta)
	require.NoError(t, err, "version codes are tracked per channel")

	_, err = env.releases.CreateRelease(ctx, dev, appID, validRelease(2))
	require.NoError(t, err)

	all, err := env.releases.ListReleases(ctx, dev, appID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	stable, err := env.releases.ListReleases(ctx, dev, appID, model.ChannelStable)
	require.NoError(t, err)
	assert.Len(t, stable, 2)

	assert.Equal(t, uint64(3), env.recorder.Snapshot().ReleasesCreated)
}

func TestCreateRelease_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	created, err := env.developers.CreateApp(ctx, dev, CreateAppInput{PackageName: "com.studio.game", DraftInput: DraftInput{Name: ptr("Game")}})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*CreateReleaseInput)
		field  string
	}{
		{"bad_channel", func(in *CreateReleaseInput) { in.Channel = "nightly" }, "channel"},
		{"empty_version_name", func(in *CreateReleaseInput) { in.VersionName = " " }, "version_name"},
		{"zero_version_code", func(in *CreateReleaseInput) { in.VersionCode = 0 }, "version_code"},
		{"bad_url", func(in *CreateReleaseInput) { in.ArtifactURL = "file:///tmp/a.apk" }, "artifact.url"},
		{"zero_size", func(in *CreateReleaseInput) { in.SizeBytes = 0 }, "artifact.size_bytes"},
		{"bad_sha", func(in *CreateReleaseInput) { in.SHA256 = "abc" }, "artifact.sha256"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRelease(1)
			tt.mutate(&in)
			_, err := env.releases.CreateRelease(ctx, dev, created.App.ID, in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestCreateRelease_ForeignApp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.developer(t, "owner@example.com", "Owner")
	other := env.developer(t, "other@example.com", "Other")
	app := env.submittableApp(t, owner, "Game", 0)

	_, err := env.releases.CreateRelease(ctx, other, app.ID, validRelease(2))
	assert.ErrorIs(t, err, ErrAppNotFound)
}

func TestDeleteRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	admin := env.admin(t)
	app := env.publishedApp(t, dev, admin, "Game", 0)

	releases, err := env.releases.ListReleases(ctx, dev, app.ID, "")
	require.NoError(t, err)
	require.Len(t, releases, 1)

	err = env.releases.DeleteRelease(ctx, dev, app.ID, releases[0].ID)
	assert.ErrorIs(t, err, ErrLastRelease)

	second, err := env.releases.CreateRelease(ctx, dev, app.ID, validRelease(2))
	require.NoError(t, err)

	version, _ := env.cache.CatalogVersion(ctx)
	require.NoError(t, env.releases.DeleteRelease(ctx, dev, app.ID, second.ID))
	after, _ := env.cache.CatalogVersion(ctx)
	assert.Greater(t, after, version, "deleting a published app's release invalidates the catalog")

	err = env.releases.DeleteRelease(ctx, dev, app.ID, second.ID)
	assert.ErrorIs(t, err, ErrReleaseNotFound)
}

func TestDeleteRelease_KeepsLastStable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	admin := env.admin(t)
	app := env.publishedApp(t, dev, admin, "Game", 0)

	stable, err := env.releases.ListReleases(ctx, dev, app.ID, model.ChannelStable)
	require.NoError(t, err)
	require.Len(t, stable, 1)

	betaInput := validRelease(2)
	betaInput.Channel = model.ChannelBeta
	beta, err := env.releases.CreateRelease(ctx, dev, app.ID, betaInput)
	require.NoError(t, err)

	err = env.releases.DeleteRelease(ctx, dev, app.ID, stable[0].ID)
	assert.ErrorIs(t, err, ErrLastRelease)

	detail, err := env.catalog.GetApp(ctx, app.Slug)
	require.NoError(t, err)
	require.NotNil(t, detail.LatestRelease)
	assert.Equal(t, stable[0].ID, detail.LatestRelease.ID)

	require.NoError(t, env.releases.DeleteRelease(ctx, dev, app.ID, beta.ID), "beta builds may go")
}

func TestDeleteRelease_DraftMayDropAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	app := env.submittableApp(t, dev, "Game", 0)

	releases, err := env.releases.ListReleases(ctx, dev, app.ID, "")
	require.NoError(t, err)
	require.NoError(t, env.releases.DeleteRelease(ctx, dev, app.ID, releases[0].ID))
}

func TestDeleteRelease_WrongApp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	first := env.submittableApp(t, dev, "First", 0)
	second := env.submittableApp(t, dev, "Second", 0)

	releases, err := env.releases.ListReleases(ctx, dev, first.ID, "")
	require.NoError(t, err)

	err = env.releases.DeleteRelease(ctx, dev, second.ID, releases[0].ID)
	assert.ErrorIs(t, err, ErrReleaseNotFound)
}
