package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/repository"
)

const (
	maxReviewTitle = 120
	maxReviewBody  = 4000
)

// ReviewWriteStore is the persistence needed to write reviews.
type ReviewWriteStore interface {
	GetAppBySlug(ctx context.Context, slug string) (*model.App, error)
	UpsertReview(ctx context.Context, review *model.Review) error
	DeleteReview(ctx context.Context, appID, userID string) error
	HasCompletedPurchase(ctx context.Context, appID, userID string) (bool, error)
}

// ReviewService lets users rate published apps.
type ReviewService struct {
	store  ReviewWriteStore
	cache  CatalogCache
	logger *slog.Logger
}

// NewReviewService creates a new ReviewService. cache may be nil.
func NewReviewService(store ReviewWriteStore, cache CatalogCache, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		store:  store,
		cache:  cache,
		logger: logger.With("component", "reviews"),
	}
}

// ReviewInput is a user's rating of an app.
type ReviewInput struct {
	Rating int
	Title  string
	Body   string
}

// Upsert creates or replaces the user's review of a published app. Paid apps
// can only be reviewed by owners.
func (s *ReviewService) Upsert(ctx context.Context, userID, slug string, input ReviewInput) (*model.Review, error) {
	if input.Rating < model.MinRating || input.Rating > model.MaxRating {
		return nil, invalid("rating", "must be between %d and %d", model.MinRating, model.MaxRating)
	}
	title := strings.TrimSpace(input.Title)
	if utf8.RuneCountInString(title) > maxReviewTitle {
		return nil, invalid("title", "must be at most %d characters", maxReviewTitle)
	}
	body := strings.TrimSpace(input.Body)
	if utf8.RuneCountInString(body) > maxReviewBody {
		return nil, invalid("body", "must be at most %d characters", maxReviewBody)
	}

	app, err := s.reviewableApp(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !app.IsFree() {
		owned, err := s.store.HasCompletedPurchase(ctx, app.ID, userID)
		if err != nil {
			return nil, err
		}
		if !owned {
			return nil, ErrPurchaseRequired
		}
	}

	review := &model.Review{
		ID:        newID(),
		AppID:     app.ID,
		UserID:    userID,
		Rating:    input.Rating,
		Title:     title,
		Body:      body,
		UpdatedAt: now(),
	}
	if err := s.store.UpsertReview(ctx, review); err != nil {
		return nil, err
	}
	bumpCatalog(ctx, s.cache, s.logger)

	s.logger.Info("review saved", "app_id", app.ID, "user_id", userID, "rating", review.Rating)
	return review, nil
}

// Delete removes the user's review of an app.
func (s *ReviewService) Delete(ctx context.Context, userID, slug string) error {
	app, err := s.store.GetAppBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrAppNotFound) {
			return ErrAppNotFound
		}
		return err
	}
	if err := s.store.DeleteReview(ctx, app.ID, userID); err != nil {
		if errors.Is(err, repository.ErrReviewNotFound) {
			return ErrReviewNotFound
		}
		return err
	}
	bumpCatalog(ctx, s.cache, s.logger)

	s.logger.Info("review deleted", "app_id", app.ID, "user_id", userID)
	return nil
}

func (s *ReviewService) reviewableApp(ctx context.Context, slug string) (*model.App, error) {
	app, err := s.store.GetAppBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrAppNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, err
	}
	if !app.IsPublished() {
		return nil, ErrAppNotFound
	}
	return app, nil
}
