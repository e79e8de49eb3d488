// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// Role constants for user accounts.
const (
	RoleUser      = "user"
	RoleDeveloper = "developer"
	RoleAdmin     = "admin"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleUser, RoleDeveloper, RoleAdmin}

// IsValidRole reports whether r is a known role.
func IsValidRole(r string) bool {
	return slices.Contains(ValidRoles, r)
}

// User is a storefront account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Developer is the publisher profile attached to a user.
type Developer struct {
	ID                       string    `json:"id"`
	UserID                   string    `json:"user_id"`
	Slug                     string    `json:"slug"`
	DisplayName              string    `json:"display_name"`
	Website                  string    `json:"website,omitempty"`
	SupportEmail             string    `json:"support_email,omitempty"`
	PayoutProvider           string    `json:"payout_provider,omitempty"`
	StripeAccountID          string    `json:"stripe_account_id,omitempty"`
	FlutterwaveBeneficiaryID string    `json:"flutterwave_beneficiary_id,omitempty"`
	MpesaPhone               string    `json:"mpesa_phone,omitempty"`
	PayoutsEnabled           bool      `json:"payouts_enabled"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// PayoutDestination returns the provider-side account for transfers.
func (d *Developer) PayoutDestination() string {
	switch d.PayoutProvider {
	case ProviderStripe:
		return d.StripeAccountID
	case ProviderFlutterwave:
		return d.FlutterwaveBeneficiaryID
	default:
		return ""
	}
}

// ModerationEvent records one status change of an app.
type ModerationEvent struct {
	ID         string           `json:"id"`
	AppID      string           `json:"app_id"`
	ActorID    string           `json:"actor_id"`
	Action     ModerationAction `json:"action"`
	FromStatus AppStatus        `json:"from_status"`
	ToStatus   AppStatus        `json:"to_status"`
	Notes      string           `json:"notes,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// Review is a user's rating of an app.
type Review struct {
	ID        string    `json:"id"`
	AppID     string    `json:"app_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Rating    int       `json:"rating"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)
