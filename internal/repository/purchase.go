package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

// Common errors for purchase repository operations.
var (
	ErrPurchaseNotFound = errors.New("purchase not found")
	ErrAlreadyPurchased = errors.New("app already purchased")
)

const purchaseColumns = `p.id, p.app_id, p.user_id, p.developer_id, p.provider, p.provider_ref,
	p.amount_cents, p.currency, p.fee_cents, p.status, p.payout_id, p.created_at, p.completed_at,
	a.slug, a.name`

const purchaseFrom = ` FROM purchases p JOIN apps a ON a.id = p.app_id `

// CreatePurchase inserts a pending purchase.
func (r *Repository) CreatePurchase(ctx context.Context, p *model.Purchase) error {
	query := `
		INSERT INTO purchases (id, app_id, user_id, developer_id, provider, provider_ref,
			amount_cents, currency, fee_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.AppID,
		p.UserID,
		p.DeveloperID,
		p.Provider,
		p.ProviderRef,
		p.AmountCents,
		p.Currency,
		p.FeeCents,
		p.Status,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

// SetPurchaseProviderRef records the provider's session or transaction reference.
func (r *Repository) SetPurchaseProviderRef(ctx context.Context, id, ref string) error {
	result, err := r.pool.Exec(ctx, `UPDATE purchases SET provider_ref = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("failed to set provider ref: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

// GetPurchaseByID retrieves a purchase by ID.
func (r *Repository) GetPurchaseByID(ctx context.Context, id string) (*model.Purchase, error) {
	return scanPurchase(r.pool.QueryRow(ctx, `SELECT `+purchaseColumns+purchaseFrom+`WHERE p.id = $1`, id))
}

// CompletePurchase moves a pending purchase to completed. It reports false when
// the purchase was not pending, which makes repeated webhooks harmless.
func (r *Repository) CompletePurchase(ctx context.Context, id, providerRef string) (bool, error) {
	query := `
		UPDATE purchases
		SET status = 'completed', completed_at = $3,
			provider_ref = CASE WHEN $2 = '' THEN provider_ref ELSE $2 END
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.pool.Exec(ctx, query, id, providerRef, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return false, ErrAlreadyPurchased
		}
		return false, fmt.Errorf("failed to complete purchase: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// FailPurchase marks a pending purchase as failed.
func (r *Repository) FailPurchase(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE purchases SET status = 'failed' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to fail purchase: %w", err)
	}
	return nil
}

// HasCompletedPurchase reports whether a user owns an app.
func (r *Repository) HasCompletedPurchase(ctx context.Context, appID, userID string) (bool, error) {
	var owned bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM purchases WHERE app_id = $1 AND user_id = $2 AND status = 'completed')`,
		appID, userID,
	).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return owned, nil
}

// ListLibrary returns a user's completed purchases, newest first.
func (r *Repository) ListLibrary(ctx context.Context, userID string) ([]*model.Purchase, error) {
	query := `SELECT ` + purchaseColumns + purchaseFrom +
		`WHERE p.user_id = $1 AND p.status = 'completed' ORDER BY p.completed_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list library: %w", err)
	}
	defer rows.Close()

	var purchases []*model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// CountPurchases returns the number of purchases in a status.
func (r *Repository) CountPurchases(ctx context.Context, status model.PurchaseStatus) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count purchases: %w", err)
	}
	return n, nil
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	var p model.Purchase
	err := row.Scan(
		&p.ID,
		&p.AppID,
		&p.UserID,
		&p.DeveloperID,
		&p.Provider,
		&p.ProviderRef,
		&p.AmountCents,
		&p.Currency,
		&p.FeeCents,
		&p.Status,
		&p.PayoutID,
		&p.CreatedAt,
		&p.CompletedAt,
		&p.AppSlug,
		&p.AppName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to scan purchase: %w", err)
	}
	return &p, nil
}
