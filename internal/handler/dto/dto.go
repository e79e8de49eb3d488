// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/samber/lo"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/sideload"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Field  string   `json:"field,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ListResponse is a paginated list.
type ListResponse[T any] struct {
	Data       []T         `json:"data"`
	Pagination *Pagination `json:"pagination"`
}

// NewListResponse builds a list response. A nil slice is rendered as [].
func NewListResponse[T any](items []T, nextCursor string) ListResponse[T] {
	return ListResponse[T]{
		Data: lo.Ternary(items == nil, []T{}, items),
		Pagination: &Pagination{
			NextCursor: nextCursor,
			HasMore:    nextCursor != "",
		},
	}
}

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse carries a bearer token for the user.
type SessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

// CreateAPIKeyRequest is the body of POST /api/account/api-keys.
type CreateAPIKeyRequest struct {
	Name   string   `json:"name,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
}

// APIKeyCreatedResponse includes the plaintext key, shown once.
type APIKeyCreatedResponse struct {
	*model.APIKey
	Key string `json:"key"`
}

// ProfileRequest creates or edits a developer profile.
type ProfileRequest struct {
	DisplayName  *string `json:"display_name,omitempty"`
	Website      *string `json:"website,omitempty"`
	SupportEmail *string `json:"support_email,omitempty"`
}

// ProfileCreatedResponse returns the profile with a token carrying the new role.
type ProfileCreatedResponse struct {
	Developer *model.Developer `json:"developer"`
	Session   *SessionResponse `json:"session"`
}

// DraftRequest holds editable listing fields. Omitted fields are unchanged.
type DraftRequest struct {
	Name        *string   `json:"name,omitempty"`
	Summary     *string   `json:"summary,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	PriceCents  *int64    `json:"price_cents,omitempty"`
	Currency    *string   `json:"currency,omitempty"`
	IconURL     *string   `json:"icon_url,omitempty"`
	Screenshots *[]string `json:"screenshots,omitempty"`
}

// CreateAppRequest is the body of POST /api/developer/apps.
type CreateAppRequest struct {
	PackageName string `json:"package_name"`
	DraftRequest
}

// ArtifactRequest describes an uploaded build.
type ArtifactRequest struct {
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// CreateReleaseRequest is the body of POST /api/developer/apps/{id}/releases.
type CreateReleaseRequest struct {
	Channel     model.Channel   `json:"channel"`
	VersionName string          `json:"version_name"`
	VersionCode int64           `json:"version_code"`
	Notes       string          `json:"notes,omitempty"`
	Artifact    ArtifactRequest `json:"artifact"`
}

// SetupPayoutsRequest is the body of POST /api/developer/payouts/setup.
type SetupPayoutsRequest struct {
	Provider   string `json:"provider"`
	Country    string `json:"country,omitempty"`
	MpesaPhone string `json:"mpesa_phone,omitempty"`
}

// DecideRequest is the body of POST /api/admin/apps/{id}/review.
type DecideRequest struct {
	Action model.ModerationAction `json:"action"`
	Notes  string                 `json:"notes,omitempty"`
}

// ReviewRequest is the body of POST /api/apps/{slug}/reviews.
type ReviewRequest struct {
	Rating int    `json:"rating"`
	Title  string `json:"title,omitempty"`
	Body   string `json:"body,omitempty"`
}

// CheckoutRequest is the body of POST /api/checkout.
type CheckoutRequest struct {
	Slug     string `json:"slug"`
	Provider string `json:"provider"`
}

// AppDetailResponse is a storefront listing with its current stable build.
type AppDetailResponse struct {
	*model.App
	LatestRelease *model.Release `json:"latest_release,omitempty"`
}

// SideloadResponse pairs the install manifest with the browser preflight.
type SideloadResponse struct {
	Manifest  *model.SideloadManifest `json:"manifest"`
	Preflight sideload.Verdict        `json:"preflight"`
}

// WebhookEndpointRequest is the body of POST /api/developer/webhooks.
type WebhookEndpointRequest struct {
	TargetURL  string            `json:"target_url"`
	EventTypes []model.EventType `json:"event_types,omitempty"`
	Name       string            `json:"name,omitempty"`
}

// WebhookEndpointUpdateRequest is the body of PATCH /api/developer/webhooks/{id}.
type WebhookEndpointUpdateRequest struct {
	TargetURL  *string            `json:"target_url,omitempty"`
	EventTypes *[]model.EventType `json:"event_types,omitempty"`
	Name       *string            `json:"name,omitempty"`
	Enabled    *bool              `json:"enabled,omitempty"`
}

// WebhookSecretResponse returns an endpoint with its signing secret, shown once.
type WebhookSecretResponse struct {
	*model.WebhookEndpoint
	Secret string `json:"secret"`
}

// DeliveryListResponse is a page of delivery attempts.
type DeliveryListResponse struct {
	Deliveries []*model.WebhookDelivery `json:"deliveries"`
	Total      int                      `json:"total"`
	Page       int                      `json:"page"`
	PerPage    int                      `json:"per_page"`
}
