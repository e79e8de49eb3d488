// Package model defines domain entities for the application.
package model

import (
	"errors"
	"slices"
	"time"
)

// AppStatus is the moderation state of a store listing.
type AppStatus string

const (
	AppStatusDraft     AppStatus = "DRAFT"
	AppStatusInReview  AppStatus = "IN_REVIEW"
	AppStatusPublished AppStatus = "PUBLISHED"
	AppStatusRejected  AppStatus = "REJECTED"
	AppStatusSuspended AppStatus = "SUSPENDED"
)

// AppStatuses lists every status in lifecycle order.
var AppStatuses = []AppStatus{
	AppStatusDraft,
	AppStatusInReview,
	AppStatusPublished,
	AppStatusRejected,
	AppStatusSuspended,
}

// IsValid reports whether s is a known status.
func (s AppStatus) IsValid() bool {
	return slices.Contains(AppStatuses, s)
}

// ModerationAction is an actor's request to move an app between statuses.
type ModerationAction string

const (
	ActionSubmit    ModerationAction = "submit"
	ActionApprove   ModerationAction = "approve"
	ActionReject    ModerationAction = "reject"
	ActionSuspend   ModerationAction = "suspend"
	ActionReinstate ModerationAction = "reinstate"
)

// AdminActions are the actions available from the review queue.
var AdminActions = []ModerationAction{ActionApprove, ActionReject, ActionSuspend, ActionReinstate}

// IsAdminAction reports whether the action is reserved for admins.
func (a ModerationAction) IsAdminAction() bool {
	return slices.Contains(AdminActions, a)
}

// RequiresNotes reports whether the action must carry reviewer notes.
func (a ModerationAction) RequiresNotes() bool {
	return a == ActionReject || a == ActionSuspend
}

// ErrInvalidTransition is returned for any move not in the transition table.
var ErrInvalidTransition = errors.New("invalid status transition")

type transitionKey struct {
	from   AppStatus
	action ModerationAction
}

var transitions = map[transitionKey]AppStatus{
	{AppStatusDraft, ActionSubmit}:        AppStatusInReview,
	{AppStatusRejected, ActionSubmit}:     AppStatusInReview,
	{AppStatusPublished, ActionSubmit}:    AppStatusInReview,
	{AppStatusInReview, ActionApprove}:    AppStatusPublished,
	{AppStatusInReview, ActionReject}:     AppStatusRejected,
	{AppStatusPublished, ActionSuspend}:   AppStatusSuspended,
	{AppStatusSuspended, ActionReinstate}: AppStatusPublished,
}

// NextStatus returns the status reached by applying action in status from.
func NextStatus(from AppStatus, action ModerationAction) (AppStatus, error) {
	to, ok := transitions[transitionKey{from, action}]
	if !ok {
		return "", ErrInvalidTransition
	}
	return to, nil
}

// Categories are the storefront shelves an app can be listed under.
var Categories = []string{
	"games",
	"education",
	"entertainment",
	"fitness",
	"productivity",
	"social",
	"tools",
	"experiences",
}

// IsValidCategory reports whether c is a known category.
func IsValidCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// App is a store listing. Public fields only change when an admin approves a draft.
type App struct {
	ID          string     `json:"id"`
	DeveloperID string     `json:"developer_id"`
	Slug        string     `json:"slug"`
	PackageName string     `json:"package_name"`
	Name        string     `json:"name"`
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	PriceCents  int64      `json:"price_cents"`
	Currency    string     `json:"currency"`
	IconURL     string     `json:"icon_url,omitempty"`
	Screenshots []string   `json:"screenshots"`
	Status      AppStatus  `json:"status"`
	ReviewNotes string     `json:"review_notes,omitempty"`
	RatingAvg   float64    `json:"rating_avg"`
	RatingCount int        `json:"rating_count"`
	Downloads   int64      `json:"downloads"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Populated by catalog reads.
	DeveloperName string `json:"developer_name,omitempty"`
}

// IsPublished returns true if the app is visible in the storefront.
func (a *App) IsPublished() bool {
	return a.Status == AppStatusPublished
}

// IsFree returns true if the app needs no purchase.
func (a *App) IsFree() bool {
	return a.PriceCents == 0
}

// ApplyDraft copies the editable fields of d onto the listing.
func (a *App) ApplyDraft(d *AppDraft) {
	a.Name = d.Name
	a.Summary = d.Summary
	a.Description = d.Description
	a.Category = d.Category
	a.Tags = d.Tags
	a.PriceCents = d.PriceCents
	a.Currency = d.Currency
	a.IconURL = d.IconURL
	a.Screenshots = d.Screenshots
}

// AppDraft holds the developer's pending edits for an app.
type AppDraft struct {
	AppID       string     `json:"app_id"`
	Name        string     `json:"name"`
	Summary     string     `json:"summary"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	PriceCents  int64      `json:"price_cents"`
	Currency    string     `json:"currency"`
	IconURL     string     `json:"icon_url,omitempty"`
	Screenshots []string   `json:"screenshots"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MissingFields lists the fields that must be filled before submission.
func (d *AppDraft) MissingFields() []string {
	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.Summary == "" {
		missing = append(missing, "summary")
	}
	if d.Category == "" {
		missing = append(missing, "category")
	}
	return missing
}

// StatusCount is the number of apps in one status.
type StatusCount struct {
	Status AppStatus `json:"status"`
	Count  int64     `json:"count"`
}

// CategoryCount is the number of published apps in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}
