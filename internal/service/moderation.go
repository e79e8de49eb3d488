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
	maxQueuePage   = 100
	maxReviewNotes = 2000
)

// ModerationStore is the persistence needed by the review queue.
type ModerationStore interface {
	AppStore
	CountPurchases(ctx context.Context, status model.PurchaseStatus) (int64, error)
	PendingPayoutTotal(ctx context.Context) (map[string]int64, error)
}

// ModerationService runs the admin review workflow.
type ModerationService struct {
	store     ModerationStore
	cache     CatalogCache
	publisher EventPublisher
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewModerationService creates a new ModerationService. cache and publisher may be nil.
func NewModerationService(store ModerationStore, cache CatalogCache, publisher EventPublisher, recorder metrics.Recorder, logger *slog.Logger) *ModerationService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ModerationService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		metrics:   recorder,
		logger:    logger.With("component", "moderation"),
	}
}

// Queue lists apps in a status, oldest update first. The default status is
// IN_REVIEW.
func (s *ModerationService) Queue(ctx context.Context, status model.AppStatus, cursor string, limit int) (*Page[*model.App], error) {
	if status == "" {
		status = model.AppStatusInReview
	}
	if !status.IsValid() {
		return nil, invalid("status", "unknown status %q", status)
	}
	apps, next, err := s.store.ListAppsByStatus(ctx, status, cursor, clampLimit(limit, defaultPageSize, maxQueuePage))
	if err != nil {
		return nil, err
	}
	return &Page[*model.App]{Items: lo.Ternary(apps == nil, []*model.App{}, apps), NextCursor: next}, nil
}

// DecideInput is an admin's decision on one app.
type DecideInput struct {
	AppID  string
	Action model.ModerationAction
	Notes  string
}

// Decide applies an admin action. Approving merges the draft into the public
// listing and stamps the first publication time.
func (s *ModerationService) Decide(ctx context.Context, admin *model.AuthContext, input DecideInput) (*model.App, error) {
	if !input.Action.IsAdminAction() {
		return nil, invalid("action", "must be one of approve, reject, suspend, reinstate")
	}
	notes := strings.TrimSpace(input.Notes)
	if input.Action.RequiresNotes() && notes == "" {
		return nil, ErrNotesRequired
	}
	if len(notes) > maxReviewNotes {
		return nil, invalid("notes", "must be at most %d characters", maxReviewNotes)
	}

	app, err := s.store.GetAppByID(ctx, input.AppID)
	if err != nil {
		if errors.Is(err, repository.ErrAppNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, err
	}

	from := app.Status
	to, err := model.NextStatus(from, input.Action)
	if err != nil {
		return nil, err
	}

	ts := now()
	if input.Action == model.ActionApprove {
		draft, err := s.store.GetDraft(ctx, app.ID)
		if err != nil {
			return nil, err
		}
		if missing := draft.MissingFields(); len(missing) > 0 {
			return nil, &IncompleteError{Fields: missing}
		}
		app.ApplyDraft(draft)
		if app.PublishedAt == nil {
			app.PublishedAt = &ts
		}
	}
	app.Status = to
	app.ReviewNotes = notes
	app.UpdatedAt = ts

	event := &model.ModerationEvent{
		ID:         newID(),
		AppID:      app.ID,
		ActorID:    admin.UserID,
		Action:     input.Action,
		FromStatus: from,
		ToStatus:   to,
		Notes:      notes,
		CreatedAt:  ts,
	}
	if err := s.store.ApplyTransition(ctx, app, from, event, nil); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, ErrConcurrentUpdate
		}
		return nil, err
	}

	if from == model.AppStatusPublished || to == model.AppStatusPublished {
		bumpCatalog(ctx, s.cache, s.logger)
	}
	s.notify(ctx, app, input.Action, notes)
	s.metrics.IncModerationDecision(string(input.Action))

	s.logger.Info("moderation decision",
		"app_id", app.ID,
		"action", input.Action,
		"from", from,
		"to", to,
		"admin_id", admin.UserID,
	)
	return app, nil
}

func (s *ModerationService) notify(ctx context.Context, app *model.App, action model.ModerationAction, notes string) {
	eventType, ok := model.EventForAction(action)
	if !ok || s.publisher == nil {
		return
	}
	data := map[string]any{
		"app_id": app.ID,
		"slug":   app.Slug,
		"name":   app.Name,
		"status": app.Status,
		"notes":  notes,
	}
	if err := s.publisher.Publish(ctx, app.DeveloperID, eventType, data); err != nil {
		s.logger.Warn("failed to queue developer notification", "app_id", app.ID, "event", eventType, "error", err)
	}
}

// History returns an app's moderation events, oldest first.
func (s *ModerationService) History(ctx context.Context, appID string) ([]*model.ModerationEvent, error) {
	if _, err := s.store.GetAppByID(ctx, appID); err != nil {
		if errors.Is(err, repository.ErrAppNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, err
	}
	events, err := s.store.ListModerationEvents(ctx, appID)
	if err != nil {
		return nil, err
	}
	return lo.Ternary(events == nil, []*model.ModerationEvent{}, events), nil
}

// Stats summarizes the store for the admin dashboard.
type Stats struct {
	AppsByStatus       map[model.AppStatus]int64 `json:"apps_by_status"`
	CompletedPurchases int64                     `json:"completed_purchases"`
	PendingPurchases   int64                     `json:"pending_purchases"`
	UnpaidByCurrency   map[string]int64          `json:"unpaid_by_currency"`
}

// Stats returns per-status app counts, purchase counts and unpaid balances.
func (s *ModerationService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.CountAppsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := s.store.CountPurchases(ctx, model.PurchaseStatusCompleted)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.CountPurchases(ctx, model.PurchaseStatusPending)
	if err != nil {
		return nil, err
	}
	unpaid, err := s.store.PendingPayoutTotal(ctx)
	if err != nil {
		return nil, err
	}

	byStatus := make(map[model.AppStatus]int64, len(model.AppStatuses))
	for _, st := range model.AppStatuses {
		byStatus[st] = 0
	}
	for _, c := range counts {
		byStatus[c.Status] = c.Count
	}

	return &Stats{
		AppsByStatus:       byStatus,
		CompletedPurchases: completed,
		PendingPurchases:   pending,
		UnpaidByCurrency:   lo.Ternary(unpaid == nil, map[string]int64{}, unpaid),
	}, nil
}
