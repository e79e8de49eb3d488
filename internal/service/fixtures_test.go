package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/auth"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/metrics"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/payments"
)

var fastParams = auth.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

// testEnv wires every service over one memStore.
type testEnv struct {
	store     *memStore
	cache     *memCache
	publisher *memPublisher
	recorder  *metrics.InMemoryRecorder
	stripe    *fakeProvider
	flw       *fakeProvider

	accounts   *AccountService
	catalog    *CatalogService
	developers *DeveloperService
	releases   *ReleaseService
	moderation *ModerationService
	reviews    *ReviewService
	payments   *PaymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	tokens, err := auth.NewTokenIssuer(strings.Repeat("s", 32), time.Hour)
	require.NoError(t, err)

	env := &testEnv{
		store:     newMemStore(),
		cache:     newMemCache(),
		publisher: &memPublisher{},
		recorder:  metrics.NewInMemory(),
		stripe:    &fakeProvider{name: model.ProviderStripe},
		flw:       &fakeProvider{name: model.ProviderFlutterwave},
	}
	logger := testLogger()

	env.accounts = NewAccountService(env.store, env.store, tokens, logger)
	env.accounts.hash = func(p string) (string, error) { return auth.HashWithParams(p, fastParams) }
	env.catalog = NewCatalogService(env.store, env.cache, time.Minute, env.recorder, logger)
	env.developers = NewDeveloperService(env.store, env.cache, env.recorder, logger)
	env.releases = NewReleaseService(env.store, env.cache, env.recorder, logger)
	env.moderation = NewModerationService(env.store, env.cache, env.publisher, env.recorder, logger)
	env.reviews = NewReviewService(env.store, env.cache, logger)
	env.payments = NewPaymentService(env.store, payments.NewRegistry(env.stripe, env.flw), env.publisher,
		PaymentConfig{FeePercent: 30, BaseURL: "https://store.example.com"}, env.recorder, logger)
	return env
}

func ptr[T any](v T) *T { return &v }

func sessionActor(user *model.User) *model.AuthContext {
	return &model.AuthContext{Method: model.AuthMethodSession, UserID: user.ID, Role: user.Role}
}

func (e *testEnv) registerUser(t *testing.T, email string) *model.User {
	t.Helper()
	user, err := e.accounts.Register(context.Background(), RegisterInput{Email: email, Name: "Test User", Password: "correct horse"})
	require.NoError(t, err)
	return user
}

func (e *testEnv) admin(t *testing.T) *model.AuthContext {
	t.Helper()
	user := e.registerUser(t, "admin@example.com")
	e.store.mu.Lock()
	e.store.users[user.ID].Role = model.RoleAdmin
	e.store.mu.Unlock()
	user.Role = model.RoleAdmin
	return sessionActor(user)
}

// developer registers a user with a developer profile.
func (e *testEnv) developer(t *testing.T, email, studio string) *model.AuthContext {
	t.Helper()
	user := e.registerUser(t, email)
	_, err := e.developers.CreateProfile(context.Background(), user.ID, ProfileInput{DisplayName: ptr(studio)})
	require.NoError(t, err)
	user.Role = model.RoleDeveloper
	return sessionActor(user)
}

// submittableApp creates an app with a complete draft and one stable release.
func (e *testEnv) submittableApp(t *testing.T, dev *model.AuthContext, name string, priceCents int64) *model.App {
	t.Helper()
	ctx := context.Background()
	pkg := "com.test." + strings.ReplaceAll(Slugify(name), "-", "")
	created, err := e.developers.CreateApp(ctx, dev, CreateAppInput{
		PackageName: pkg,
		DraftInput: DraftInput{
			Name:       ptr(name),
			Summary:    ptr("A " + name + " experience"),
			Category:   ptr("games"),
			Tags:       &[]string{"VR", "rhythm"},
			PriceCents: ptr(priceCents),
		},
	})
	require.NoError(t, err)

	_, err = e.releases.CreateRelease(ctx, dev, created.App.ID, CreateReleaseInput{
		VersionName: "1.0.0",
		VersionCode: 1,
		ArtifactURL: "https://cdn.example.com/" + created.App.Slug + "-1.apk",
		SizeBytes:   1 << 20,
		SHA256:      strings.Repeat("ab", 32),
	})
	require.NoError(t, err)
	return created.App
}

// publishedApp runs an app through submission and approval.
func (e *testEnv) publishedApp(t *testing.T, dev, admin *model.AuthContext, name string, priceCents int64) *model.App {
	t.Helper()
	ctx := context.Background()
	app := e.submittableApp(t, dev, name, priceCents)
	_, err := e.developers.SubmitForReview(ctx, dev, app.ID)
	require.NoError(t, err)
	approved, err := e.moderation.Decide(ctx, admin, DecideInput{AppID: app.ID, Action: model.ActionApprove})
	require.NoError(t, err)
	return approved
}

// completePurchase marks a purchase of app by user as paid.
func (e *testEnv) completePurchase(t *testing.T, user *model.AuthContext, app *model.App) *model.Purchase {
	t.Helper()
	ctx := context.Background()
	res, err := e.payments.Checkout(ctx, user.UserID, app.Slug, model.ProviderStripe)
	require.NoError(t, err)
	ok, err := e.store.CompletePurchase(ctx, res.PurchaseID, "cs_"+res.PurchaseID)
	require.NoError(t, err)
	require.True(t, ok)
	p, err := e.store.GetPurchaseByID(ctx, res.PurchaseID)
	require.NoError(t, err)
	return p
}
