// Package service provides business logic for the storefront, the developer
// console, moderation and payments.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/repository"
)

// Service errors.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAPIKeyNotFound       = errors.New("API key not found")
	ErrProfileNotFound      = errors.New("developer profile not found")
	ErrProfileExists        = errors.New("developer profile already exists")
	ErrAppNotFound          = errors.New("app not found")
	ErrSlugTaken            = errors.New("slug already taken")
	ErrPackageTaken         = errors.New("package name already registered")
	ErrForbidden            = errors.New("not allowed to access this resource")
	ErrInvalidTransition    = model.ErrInvalidTransition
	ErrConcurrentUpdate     = errors.New("app was modified concurrently")
	ErrNoRelease            = errors.New("at least one release is required before submission")
	ErrReleaseNotFound      = errors.New("release not found")
	ErrVersionNotIncreasing = errors.New("version code must exceed the channel's latest release")
	ErrLastRelease          = errors.New("cannot delete the only release or only stable release of a published app")
	ErrNotesRequired        = errors.New("notes are required for this action")
	ErrReviewNotFound       = errors.New("review not found")
	ErrPurchaseRequired     = errors.New("a completed purchase is required")
	ErrAlreadyOwned         = errors.New("app already owned")
	ErrFreeApp              = errors.New("app is free")
	ErrProviderUnavailable  = errors.New("payment provider not configured")
	ErrInvalidCursor        = repository.ErrInvalidCursor
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IncompleteError lists the draft fields missing for submission.
type IncompleteError struct {
	Fields []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("draft is missing required fields: %v", e.Fields)
}

// Page is a cursor-paginated result.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// HasMore reports whether another page exists.
func (p Page[T]) HasMore() bool {
	return p.NextCursor != ""
}

// Persistence interfaces implemented by *repository.Repository.

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// APIKeyStore persists API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
	RotateAPIKey(ctx context.Context, oldID string, replacement *model.APIKey) error
}

// DeveloperStore persists developer profiles.
type DeveloperStore interface {
	CreateDeveloper(ctx context.Context, dev *model.Developer) error
	GetDeveloperByID(ctx context.Context, id string) (*model.Developer, error)
	GetDeveloperByUserID(ctx context.Context, userID string) (*model.Developer, error)
	UpdateDeveloper(ctx context.Context, dev *model.Developer) error
	UpdateDeveloperPayout(ctx context.Context, dev *model.Developer) error
	DeveloperSlugExists(ctx context.Context, slug string) (bool, error)
}

// AppStore persists apps, drafts and moderation history.
type AppStore interface {
	CreateApp(ctx context.Context, app *model.App, draft *model.AppDraft) error
	SlugExists(ctx context.Context, slug string) (bool, error)
	GetAppByID(ctx context.Context, id string) (*model.App, error)
	GetAppBySlug(ctx context.Context, slug string) (*model.App, error)
	ListAppsByDeveloper(ctx context.Context, developerID string) ([]*model.App, error)
	ListPublishedApps(ctx context.Context, filter repository.AppFilter, cursor string, limit int) ([]*model.App, string, error)
	ListAppsByStatus(ctx context.Context, status model.AppStatus, cursor string, limit int) ([]*model.App, string, error)
	GetDraft(ctx context.Context, appID string) (*model.AppDraft, error)
	UpdateDraft(ctx context.Context, draft *model.AppDraft) error
	ApplyTransition(ctx context.Context, app *model.App, from model.AppStatus, event *model.ModerationEvent, submittedAt *time.Time) error
	ListModerationEvents(ctx context.Context, appID string) ([]*model.ModerationEvent, error)
	CountAppsByStatus(ctx context.Context) ([]model.StatusCount, error)
	CountPublishedByCategory(ctx context.Context) (map[string]int64, error)
	IncrementDownloads(ctx context.Context, appID string) error
}

// ReleaseStore persists releases and artifacts.
type ReleaseStore interface {
	CreateRelease(ctx context.Context, artifact *model.Artifact, release *model.Release) error
	GetRelease(ctx context.Context, id string) (*model.Release, error)
	LatestRelease(ctx context.Context, appID string, channel model.Channel) (*model.Release, error)
	ListReleases(ctx context.Context, appID string, channel model.Channel) ([]*model.Release, error)
	CountReleases(ctx context.Context, appID string) (int, error)
	DeleteRelease(ctx context.Context, id string) error
}

// ReviewStore persists reviews.
type ReviewStore interface {
	UpsertReview(ctx context.Context, review *model.Review) error
	DeleteReview(ctx context.Context, appID, userID string) error
	ListReviews(ctx context.Context, appID, cursor string, limit int) ([]*model.Review, string, error)
}

// PurchaseStore persists purchases.
type PurchaseStore interface {
	CreatePurchase(ctx context.Context, p *model.Purchase) error
	SetPurchaseProviderRef(ctx context.Context, id, ref string) error
	GetPurchaseByID(ctx context.Context, id string) (*model.Purchase, error)
	CompletePurchase(ctx context.Context, id, providerRef string) (bool, error)
	FailPurchase(ctx context.Context, id string) error
	HasCompletedPurchase(ctx context.Context, appID, userID string) (bool, error)
	ListLibrary(ctx context.Context, userID string) ([]*model.Purchase, error)
	CountPurchases(ctx context.Context, status model.PurchaseStatus) (int64, error)
}

// PayoutStore persists payouts.
type PayoutStore interface {
	UnpaidBalances(ctx context.Context) ([]*model.PayoutBatch, error)
	CreatePayout(ctx context.Context, p *model.Payout) error
	MarkPayoutPaid(ctx context.Context, payoutID, providerRef string, purchaseIDs []string) error
	MarkPayoutFailed(ctx context.Context, payoutID, reason string) error
	ListPayoutsByDeveloper(ctx context.Context, developerID string) ([]*model.Payout, error)
	PendingPayoutTotal(ctx context.Context) (map[string]int64, error)
}

// CatalogCache stores storefront pages under a catalog generation.
type CatalogCache interface {
	CatalogVersion(ctx context.Context) (int64, error)
	BumpCatalogVersion(ctx context.Context) error
	GetCatalogPage(ctx context.Context, version int64, key string, dest any) error
	SetCatalogPage(ctx context.Context, version int64, key string, value any, ttl time.Duration) error
}

// EventPublisher queues developer notification webhooks.
type EventPublisher interface {
	Publish(ctx context.Context, developerID string, eventType model.EventType, data map[string]any) error
}

var (
	_ UserStore      = (*repository.Repository)(nil)
	_ APIKeyStore    = (*repository.Repository)(nil)
	_ DeveloperStore = (*repository.Repository)(nil)
	_ AppStore       = (*repository.Repository)(nil)
	_ ReleaseStore   = (*repository.Repository)(nil)
	_ ReviewStore    = (*repository.Repository)(nil)
	_ PurchaseStore  = (*repository.Repository)(nil)
	_ PayoutStore    = (*repository.Repository)(nil)
)

func newID() string {
	return ulid.Make().String()
}

func now() time.Time {
	return time.Now().UTC()
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
