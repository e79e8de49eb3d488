package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

// ErrReviewNotFound is returned when a user has not reviewed an app.
var ErrReviewNotFound = errors.New("review not found")

// UpsertReview creates or replaces a user's review and refreshes the app's
// rating aggregate in the same transaction.
func (r *Repository) UpsertReview(ctx context.Context, review *model.Review) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO reviews (id, app_id, user_id, rating, title, body, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
			ON CONFLICT (app_id, user_id) DO UPDATE SET
				rating = EXCLUDED.rating,
				title = EXCLUDED.title,
				body = EXCLUDED.body,
				updated_at = EXCLUDED.updated_at
			RETURNING id, created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			review.ID,
			review.AppID,
			review.UserID,
			review.Rating,
			review.Title,
			review.Body,
			review.UpdatedAt,
		).Scan(&review.ID, &review.CreatedAt, &review.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert review: %w", err)
		}
		return refreshRating(ctx, tx, review.AppID)
	})
}

// DeleteReview removes a user's review and refreshes the aggregate.
func (r *Repository) DeleteReview(ctx context.Context, appID, userID string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `DELETE FROM reviews WHERE app_id = $1 AND user_id = $2`, appID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete review: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrReviewNotFound
		}
		return refreshRating(ctx, tx, appID)
	})
}

func refreshRating(ctx context.Context, db dbtx, appID string) error {
	query := `
		UPDATE apps SET
			rating_avg = COALESCE((SELECT AVG(rating)::float8 FROM reviews WHERE app_id = $1), 0),
			rating_count = (SELECT COUNT(*) FROM reviews WHERE app_id = $1)
		WHERE id = $1
	`
	if _, err := db.Exec(ctx, query, appID); err != nil {
		return fmt.Errorf("failed to refresh rating: %w", err)
	}
	return nil
}

// ListReviews returns a page of reviews for an app, newest first.
func (r *Repository) ListReviews(ctx context.Context, appID, cursor string, limit int) ([]*model.Review, string, error) {
	cur, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT v.id, v.app_id, v.user_id, u.name, v.rating, v.title, v.body, v.created_at, v.updated_at
		FROM reviews v JOIN users u ON u.id = v.user_id
		WHERE v.app_id = $1
	`
	args := []any{appID}
	if cur != nil {
		query += ` AND (v.updated_at, v.id) < ($2, $3)`
		args = append(args, cur.At, cur.ID)
	}
	query += fmt.Sprintf(` ORDER BY v.updated_at DESC, v.id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*model.Review
	for rows.Next() {
		var v model.Review
		if err := rows.Scan(&v.ID, &v.AppID, &v.UserID, &v.UserName, &v.Rating, &v.Title, &v.Body, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, "", fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating reviews: %w", err)
	}

	var next string
	if len(reviews) > limit {
		reviews = reviews[:limit]
		last := reviews[len(reviews)-1]
		next = encodeCursor(&PaginationCursor{ID: last.ID, At: last.UpdatedAt})
	}
	return reviews, next, nil
}
