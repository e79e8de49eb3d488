package model

import (
	"slices"
	"time"
)

// Payment provider names.
const (
	ProviderStripe      = "stripe"
	ProviderFlutterwave = "flutterwave"
)

// ValidProviders contains all supported payment providers.
var ValidProviders = []string{ProviderStripe, ProviderFlutterwave}

// IsValidProvider reports whether p is a supported provider.
func IsValidProvider(p string) bool {
	return slices.Contains(ValidProviders, p)
}

// PurchaseStatus is the state of a checkout.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusFailed    PurchaseStatus = "failed"
)

// Purchase is a user's payment for a paid app.
type Purchase struct {
	ID          string         `json:"id"`
	AppID       string         `json:"app_id"`
	UserID      string         `json:"user_id"`
	DeveloperID string         `json:"developer_id"`
	Provider    string         `json:"provider"`
	ProviderRef string         `json:"provider_ref,omitempty"`
	AmountCents int64          `json:"amount_cents"`
	Currency    string         `json:"currency"`
	FeeCents    int64          `json:"fee_cents"`
	Status      PurchaseStatus `json:"status"`
	PayoutID    *string        `json:"payout_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	// Populated by library reads.
	AppSlug string `json:"app_slug,omitempty"`
	AppName string `json:"app_name,omitempty"`
}

// NetCents is the developer's share of the purchase.
func (p *Purchase) NetCents() int64 {
	return p.AmountCents - p.FeeCents
}

// PayoutStatus is the state of a transfer to a developer.
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPaid    PayoutStatus = "paid"
	PayoutStatusFailed  PayoutStatus = "failed"
)

// Payout is one transfer of accumulated earnings to a developer.
type Payout struct {
	ID            string       `json:"id"`
	DeveloperID   string       `json:"developer_id"`
	Provider      string       `json:"provider"`
	AmountCents   int64        `json:"amount_cents"`
	Currency      string       `json:"currency"`
	Status        PayoutStatus `json:"status"`
	ProviderRef   string       `json:"provider_ref,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// PayoutBatch is the unpaid balance of one developer in one currency.
type PayoutBatch struct {
	Developer   *Developer
	Currency    string
	AmountCents int64
	PurchaseIDs []string
}
