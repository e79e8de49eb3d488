package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviews_FreeApp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	admin := env.admin(t)
	app := env.publishedApp(t, dev, admin, "Beat Space", 0)
	alice := env.registerUser(t, "alice@example.com")
	bob := env.registerUser(t, "bob@example.com")

	first, err := env.reviews.Upsert(ctx, alice.ID, app.Slug, ReviewInput{Rating: 5, Title: "  Great  ", Body: "Loved it"})
	require.NoError(t, err)
	assert.Equal(t, "Great", first.Title)
	_, err = env.reviews.Upsert(ctx, bob.ID, app.Slug, ReviewInput{Rating: 2})
	require.NoError(t, err)

	stored, err := env.store.GetAppByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RatingCount)
	assert.InDelta(t, 3.5, stored.RatingAvg, 0.001)

	// A second review by the same user replaces the first.
	second, err := env.reviews.Upsert(ctx, alice.ID, app.Slug, ReviewInput{Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	page, err := env.catalog.ListReviews(ctx, app.Slug, "", 0)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	stored, err = env.store.GetAppByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RatingCount)
	assert.InDelta(t, 3.0, stored.RatingAvg, 0.001)
}

func TestReviews_PaidAppRequiresPurchase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	admin := env.admin(t)
	app := env.publishedApp(t, dev, admin, "Paid Game", 1500)
	buyer := sessionActor(env.registerUser(t, "buyer@example.com"))
	stranger := env.registerUser(t, "stranger@example.com")

	_, err := env.reviews.Upsert(ctx, stranger.ID, app.Slug, ReviewInput{Rating: 1})
	assert.ErrorIs(t, err, ErrPurchaseRequired)

	env.completePurchase(t, buyer, app)
	_, err = env.reviews.Upsert(ctx, buyer.UserID, app.Slug, ReviewInput{Rating: 5})
	assert.NoError(t, err)
}

func TestReviews_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	admin := env.admin(t)
	app := env.publishedApp(t, dev, admin, "Beat Space", 0)
	user := env.registerUser(t, "alice@example.com")

	tests := []struct {
		name  string
		input ReviewInput
		field string
	}{
		{"rating zero", ReviewInput{Rating: 0}, "rating"},
		{"rating six", ReviewInput{Rating: 6}, "rating"},
		{"title too long", ReviewInput{Rating: 3, Title: strings.Repeat("é", maxReviewTitle+1)}, "title"},
		{"body too long", ReviewInput{Rating: 3, Body: strings.Repeat("x", maxReviewBody+1)}, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.reviews.Upsert(ctx, user.ID, app.Slug, tt.input)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	// Multi-byte titles are measured in characters.
	_, err := env.reviews.Upsert(ctx, user.ID, app.Slug, ReviewInput{Rating: 3, Title: strings.Repeat("é", maxReviewTitle)})
	assert.NoError(t, err)
}

func TestReviews_UnpublishedApp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	app := env.submittableApp(t, dev, "Beat Space", 0)
	user := env.registerUser(t, "alice@example.com")

	_, err := env.reviews.Upsert(ctx, user.ID, app.Slug, ReviewInput{Rating: 4})
	assert.ErrorIs(t, err, ErrAppNotFound)
	_, err = env.catalog.ListReviews(ctx, app.Slug, "", 0)
	assert.ErrorIs(t, err, ErrAppNotFound)
}

func TestReviews_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev := env.developer(t, "maker@example.com", "Studio")
	admin := env.admin(t)
	app := env.publishedApp(t, dev, admin, "Beat Space", 0)
	user := env.registerUser(t, "alice@example.com")

	_, err := env.reviews.Upsert(ctx, user.ID, app.Slug, ReviewInput{Rating: 4})
	require.NoError(t, err)
	before, _ := env.cache.CatalogVersion(ctx)

	require.NoError(t, env.reviews.Delete(ctx, user.ID, app.Slug))
	after, _ := env.cache.CatalogVersion(ctx)
	assert.Greater(t, after, before)

	stored, err := env.store.GetAppByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.RatingCount)

	assert.ErrorIs(t, env.reviews.Delete(ctx, user.ID, app.Slug), ErrReviewNotFound)
	assert.ErrorIs(t, env.reviews.Delete(ctx, user.ID, "missing"), ErrAppNotFound)
}
