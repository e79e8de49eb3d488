package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/payments"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/repository"
)

// memStore is an in-memory stand-in for *repository.Repository. Pagination
// is not modelled: list calls return everything and an empty cursor.
type memStore struct {
	mu         sync.Mutex
	users      map[string]*model.User
	keys       map[string]*model.APIKey
	developers map[string]*model.Developer
	apps       map[string]*model.App
	drafts     map[string]*model.AppDraft
	events     []*model.ModerationEvent
	releases   map[string]*model.Release
	reviews    map[string]*model.Review
	purchases  map[string]*model.Purchase
	payouts    map[string]*model.Payout
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[string]*model.User),
		keys:       make(map[string]*model.APIKey),
		developers: make(map[string]*model.Developer),
		apps:       make(map[string]*model.App),
		drafts:     make(map[string]*model.AppDraft),
		releases:   make(map[string]*model.Release),
		reviews:    make(map[string]*model.Review),
		purchases:  make(map[string]*model.Purchase),
		payouts:    make(map[string]*model.Payout),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

// Users

func (m *memStore) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
	}
	m.users[user.ID] = clone(user)
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return clone(u), nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return clone(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// API keys

func (m *memStore) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ID] = clone(key)
	return nil
}

func (m *memStore) GetAPIKeyByID(_ context.Context, id string) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok {
		return nil, repository.ErrAPIKeyNotFound
	}
	return clone(k), nil
}

func (m *memStore) ListAPIKeysByUserID(_ context.Context, userID string) ([]*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.APIKey
	for _, k := range m.keys {
		if k.UserID == userID {
			out = append(out, clone(k))
		}
	}
	return out, nil
}

func (m *memStore) RevokeAPIKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[id]
	if !ok || k.RevokedAt != nil {
		return repository.ErrAPIKeyNotFound
	}
	ts := time.Now().UTC()
	k.RevokedAt = &ts
	return nil
}

func (m *memStore) RotateAPIKey(ctx context.Context, oldID string, replacement *model.APIKey) error {
	if err := m.RevokeAPIKey(ctx, oldID); err != nil {
		return err
	}
	return m.CreateAPIKey(ctx, replacement)
}

// Developers

func (m *memStore) CreateDeveloper(_ context.Context, dev *model.Developer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.developers {
		if d.UserID == dev.UserID {
			return repository.ErrDeveloperExists
		}
		if d.Slug == dev.Slug {
			return repository.ErrSlugExists
		}
	}
	m.developers[dev.ID] = clone(dev)
	if u, ok := m.users[dev.UserID]; ok && u.Role == model.RoleUser {
		u.Role = model.RoleDeveloper
	}
	return nil
}

func (m *memStore) GetDeveloperByID(_ context.Context, id string) (*model.Developer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.developers[id]
	if !ok {
		return nil, repository.ErrDeveloperNotFound
	}
	return clone(d), nil
}

func (m *memStore) GetDeveloperByUserID(_ context.Context, userID string) (*model.Developer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.developers {
		if d.UserID == userID {
			return clone(d), nil
		}
	}
	return nil, repository.ErrDeveloperNotFound
}

func (m *memStore) UpdateDeveloper(_ context.Context, dev *model.Developer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.developers[dev.ID]; !ok {
		return repository.ErrDeveloperNotFound
	}
	m.developers[dev.ID] = clone(dev)
	return nil
}

func (m *memStore) UpdateDeveloperPayout(ctx context.Context, dev *model.Developer) error {
	return m.UpdateDeveloper(ctx, dev)
}

func (m *memStore) DeveloperSlugExists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.developers {
		if d.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// Apps

func (m *memStore) CreateApp(_ context.Context, app *model.App, draft *model.AppDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.apps {
		if a.Slug == app.Slug {
			return repository.ErrSlugExists
		}
		if a.PackageName == app.PackageName {
			return repository.ErrPackageExists
		}
	}
	m.apps[app.ID] = clone(app)
	m.drafts[app.ID] = clone(draft)
	return nil
}

func (m *memStore) SlugExists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.apps {
		if a.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) withDeveloperName(a *model.App) *model.App {
	c := clone(a)
	if d, ok := m.developers[a.DeveloperID]; ok {
		c.DeveloperName = d.DisplayName
	}
	return c
}

func (m *memStore) GetAppByID(_ context.Context, id string) (*model.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, repository.ErrAppNotFound
	}
	return m.withDeveloperName(a), nil
}

func (m *memStore) GetAppBySlug(_ context.Context, slug string) (*model.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.apps {
		if a.Slug == slug {
			return m.withDeveloperName(a), nil
		}
	}
	return nil, repository.ErrAppNotFound
}

func (m *memStore) sortedApps(keep func(*model.App) bool) []*model.App {
	var out []*model.App
	for _, a := range m.apps {
		if keep(a) {
			out = append(out, m.withDeveloperName(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) ListAppsByDeveloper(_ context.Context, developerID string) ([]*model.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedApps(func(a *model.App) bool { return a.DeveloperID == developerID }), nil
}

func (m *memStore) ListPublishedApps(_ context.Context, filter repository.AppFilter, _ string, limit int) ([]*model.App, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := strings.ToLower(filter.Query)
	apps := m.sortedApps(func(a *model.App) bool {
		if !a.IsPublished() {
			return false
		}
		if filter.Category != "" && a.Category != filter.Category {
			return false
		}
		return q == "" || strings.Contains(strings.ToLower(a.Name+" "+a.Summary), q) || slices.Contains(a.Tags, q)
	})
	if len(apps) > limit {
		apps = apps[:limit]
	}
	return apps, "", nil
}

func (m *memStore) ListAppsByStatus(_ context.Context, status model.AppStatus, _ string, limit int) ([]*model.App, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apps := m.sortedApps(func(a *model.App) bool { return a.Status == status })
	if len(apps) > limit {
		apps = apps[:limit]
	}
	return apps, "", nil
}

func (m *memStore) GetDraft(_ context.Context, appID string) (*model.AppDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[appID]
	if !ok {
		return nil, repository.ErrDraftNotFound
	}
	return clone(d), nil
}

func (m *memStore) UpdateDraft(_ context.Context, draft *model.AppDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.drafts[draft.AppID]; !ok {
		return repository.ErrDraftNotFound
	}
	m.drafts[draft.AppID] = clone(draft)
	return nil
}

func (m *memStore) ApplyTransition(_ context.Context, app *model.App, from model.AppStatus, event *model.ModerationEvent, submittedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.apps[app.ID]
	if !ok {
		return repository.ErrAppNotFound
	}
	if current.Status != from {
		return repository.ErrStatusChanged
	}
	m.apps[app.ID] = clone(app)
	if submittedAt != nil {
		m.drafts[app.ID].SubmittedAt = submittedAt
	}
	m.events = append(m.events, clone(event))
	return nil
}

func (m *memStore) ListModerationEvents(_ context.Context, appID string) ([]*model.ModerationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ModerationEvent
	for _, e := range m.events {
		if e.AppID == appID {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (m *memStore) CountAppsByStatus(_ context.Context) ([]model.StatusCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.AppStatus]int64)
	for _, a := range m.apps {
		counts[a.Status]++
	}
	var out []model.StatusCount
	for _, st := range model.AppStatuses {
		if counts[st] > 0 {
			out = append(out, model.StatusCount{Status: st, Count: counts[st]})
		}
	}
	return out, nil
}

func (m *memStore) CountPublishedByCategory(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for _, a := range m.apps {
		if a.IsPublished() {
			out[a.Category]++
		}
	}
	return out, nil
}

func (m *memStore) IncrementDownloads(_ context.Context, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.apps[appID]; ok {
		a.Downloads++
	}
	return nil
}

// Releases

func (m *memStore) CreateRelease(_ context.Context, artifact *model.Artifact, release *model.Release) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.apps[release.AppID]; !ok {
		return repository.ErrAppNotFound
	}
	for _, r := range m.releases {
		if r.AppID == release.AppID && r.Channel == release.Channel && r.VersionCode >= release.VersionCode {
			return repository.ErrVersionNotIncreasing
		}
	}
	r := clone(release)
	r.Artifact = clone(artifact)
	m.releases[r.ID] = r
	return nil
}

func (m *memStore) GetRelease(_ context.Context, id string) (*model.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.releases[id]
	if !ok {
		return nil, repository.ErrReleaseNotFound
	}
	return clone(r), nil
}

func (m *memStore) appReleases(appID string, channel model.Channel) []*model.Release {
	var out []*model.Release
	for _, r := range m.releases {
		if r.AppID == appID && (channel == "" || r.Channel == channel) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionCode > out[j].VersionCode })
	return out
}

func (m *memStore) LatestRelease(_ context.Context, appID string, channel model.Channel) (*model.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rels := m.appReleases(appID, channel)
	if len(rels) == 0 {
		return nil, repository.ErrReleaseNotFound
	}
	return rels[0], nil
}

func (m *memStore) ListReleases(_ context.Context, appID string, channel model.Channel) ([]*model.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appReleases(appID, channel), nil
}

func (m *memStore) CountReleases(_ context.Context, appID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appReleases(appID, "")), nil
}

func (m *memStore) DeleteRelease(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.releases[id]; !ok {
		return repository.ErrReleaseNotFound
	}
	delete(m.releases, id)
	return nil
}

// Reviews

func reviewKey(appID, userID string) string { return appID + "/" + userID }

func (m *memStore) refreshRating(appID string) {
	var sum, n int
	for _, r := range m.reviews {
		if r.AppID == appID {
			sum += r.Rating
			n++
		}
	}
	a := m.apps[appID]
	a.RatingCount = n
	a.RatingAvg = 0
	if n > 0 {
		a.RatingAvg = float64(sum) / float64(n)
	}
}

func (m *memStore) UpsertReview(_ context.Context, review *model.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := reviewKey(review.AppID, review.UserID)
	if existing, ok := m.reviews[key]; ok {
		review.ID = existing.ID
		review.CreatedAt = existing.CreatedAt
	} else {
		review.CreatedAt = review.UpdatedAt
	}
	m.reviews[key] = clone(review)
	m.refreshRating(review.AppID)
	return nil
}

func (m *memStore) DeleteReview(_ context.Context, appID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := reviewKey(appID, userID)
	if _, ok := m.reviews[key]; !ok {
		return repository.ErrReviewNotFound
	}
	delete(m.reviews, key)
	m.refreshRating(appID)
	return nil
}

func (m *memStore) ListReviews(_ context.Context, appID, _ string, limit int) ([]*model.Review, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Review
	for _, r := range m.reviews {
		if r.AppID == appID {
			out = append(out, clone(r))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, "", nil
}

// Purchases

func (m *memStore) CreatePurchase(_ context.Context, p *model.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases[p.ID] = clone(p)
	return nil
}

func (m *memStore) SetPurchaseProviderRef(_ context.Context, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok {
		return repository.ErrPurchaseNotFound
	}
	p.ProviderRef = ref
	return nil
}

func (m *memStore) GetPurchaseByID(_ context.Context, id string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok {
		return nil, repository.ErrPurchaseNotFound
	}
	c := clone(p)
	if a, ok := m.apps[p.AppID]; ok {
		c.AppSlug, c.AppName = a.Slug, a.Name
	}
	return c, nil
}

func (m *memStore) CompletePurchase(_ context.Context, id, providerRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok || p.Status != model.PurchaseStatusPending {
		return false, nil
	}
	for _, other := range m.purchases {
		if other.AppID == p.AppID && other.UserID == p.UserID && other.Status == model.PurchaseStatusCompleted {
			return false, repository.ErrAlreadyPurchased
		}
	}
	ts := time.Now().UTC()
	p.Status = model.PurchaseStatusCompleted
	p.CompletedAt = &ts
	if providerRef != "" {
		p.ProviderRef = providerRef
	}
	return true, nil
}

func (m *memStore) FailPurchase(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.purchases[id]; ok && p.Status == model.PurchaseStatusPending {
		p.Status = model.PurchaseStatusFailed
	}
	return nil
}

func (m *memStore) HasCompletedPurchase(_ context.Context, appID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.purchases {
		if p.AppID == appID && p.UserID == userID && p.Status == model.PurchaseStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListLibrary(_ context.Context, userID string) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Purchase
	for _, p := range m.purchases {
		if p.UserID == userID && p.Status == model.PurchaseStatusCompleted {
			out = append(out, clone(p))
		}
	}
	return out, nil
}

func (m *memStore) CountPurchases(_ context.Context, status model.PurchaseStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.purchases {
		if p.Status == status {
			n++
		}
	}
	return n, nil
}

// Payouts

func (m *memStore) UnpaidBalances(_ context.Context) ([]*model.PayoutBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	batches := make(map[string]*model.PayoutBatch)
	for _, p := range m.purchases {
		if p.Status != model.PurchaseStatusCompleted || p.PayoutID != nil {
			continue
		}
		dev := m.developers[p.DeveloperID]
		if dev == nil || !dev.PayoutsEnabled {
			continue
		}
		key := dev.ID + "/" + p.Currency
		b, ok := batches[key]
		if !ok {
			b = &model.PayoutBatch{Developer: clone(dev), Currency: p.Currency}
			batches[key] = b
		}
		b.AmountCents += p.NetCents()
		b.PurchaseIDs = append(b.PurchaseIDs, p.ID)
	}
	keys := make([]string, 0, len(batches))
	for k := range batches {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*model.PayoutBatch, 0, len(keys))
	for _, k := range keys {
		sort.Strings(batches[k].PurchaseIDs)
		out = append(out, batches[k])
	}
	return out, nil
}

func (m *memStore) CreatePayout(_ context.Context, p *model.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts[p.ID] = clone(p)
	return nil
}

func (m *memStore) MarkPayoutPaid(_ context.Context, payoutID, providerRef string, purchaseIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payouts[payoutID]
	p.Status = model.PayoutStatusPaid
	p.ProviderRef = providerRef
	for _, id := range purchaseIDs {
		pid := payoutID
		m.purchases[id].PayoutID = &pid
	}
	return nil
}

func (m *memStore) MarkPayoutFailed(_ context.Context, payoutID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.payouts[payoutID]
	p.Status = model.PayoutStatusFailed
	p.FailureReason = reason
	return nil
}

func (m *memStore) ListPayoutsByDeveloper(_ context.Context, developerID string) ([]*model.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payout
	for _, p := range m.payouts {
		if p.DeveloperID == developerID {
			out = append(out, clone(p))
		}
	}
	return out, nil
}

func (m *memStore) PendingPayoutTotal(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for _, p := range m.purchases {
		if p.Status == model.PurchaseStatusCompleted && p.PayoutID == nil {
			out[p.Currency] += p.NetCents()
		}
	}
	return out, nil
}

var (
	_ UserStore           = (*memStore)(nil)
	_ APIKeyStore         = (*memStore)(nil)
	_ CatalogStore        = (*memStore)(nil)
	_ ConsoleStore        = (*memStore)(nil)
	_ ReleaseConsoleStore = (*memStore)(nil)
	_ ModerationStore     = (*memStore)(nil)
	_ ReviewWriteStore    = (*memStore)(nil)
	_ PaymentStore        = (*memStore)(nil)
)

// memCache is an in-memory CatalogCache.
type memCache struct {
	mu      sync.Mutex
	version int64
	pages   map[string][]byte
	fail    bool
}

func newMemCache() *memCache {
	return &memCache{pages: make(map[string][]byte)}
}

func (c *memCache) CatalogVersion(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return 0, errCacheDown
	}
	return c.version, nil
}

func (c *memCache) BumpCatalogVersion(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errCacheDown
	}
	c.version++
	return nil
}

func (c *memCache) GetCatalogPage(_ context.Context, version int64, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.pages[pageKey(version, key)]
	if !ok {
		return errCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *memCache) SetCatalogPage(_ context.Context, version int64, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.pages[pageKey(version, key)] = b
	return nil
}

func pageKey(version int64, key string) string {
	return strconv.FormatInt(version, 10) + ":" + key
}

var (
	errCacheDown = errors.New("cache down")
	errCacheMiss = errors.New("cache miss")
)

type publishedEvent struct {
	DeveloperID string
	Type        model.EventType
	Data        map[string]any
}

// memPublisher records published developer events.
type memPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *memPublisher) Publish(_ context.Context, developerID string, eventType model.EventType, data map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{DeveloperID: developerID, Type: eventType, Data: data})
	return nil
}

func (p *memPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeProvider is a scripted payments.Provider.
type fakeProvider struct {
	name        string
	checkoutErr error
	transferErr error
	event       *payments.WebhookEvent
	webhookErr  error

	mu        sync.Mutex
	checkouts []payments.CheckoutRequest
	transfers []payments.TransferRequest
	accounts  []payments.AccountRequest
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreateCheckout(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, req)
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return &payments.CheckoutSession{Ref: "sess_" + req.PurchaseID, URL: "https://pay.example.com/" + req.PurchaseID}, nil
}

func (f *fakeProvider) ParseWebhook(context.Context, []byte, http.Header) (*payments.WebhookEvent, error) {
	if f.webhookErr != nil {
		return nil, f.webhookErr
	}
	return f.event, nil
}

func (f *fakeProvider) SetupAccount(_ context.Context, req payments.AccountRequest) (*payments.AccountSetup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, req)
	if f.name == model.ProviderStripe {
		return &payments.AccountSetup{AccountID: "acct_123", OnboardingURL: "https://connect.stripe.com/setup/abc"}, nil
	}
	return &payments.AccountSetup{AccountID: "4321", Ready: true}, nil
}

func (f *fakeProvider) Transfer(_ context.Context, req payments.TransferRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, req)
	if f.transferErr != nil {
		return "", f.transferErr
	}
	return "tr_" + req.PayoutID, nil
}
