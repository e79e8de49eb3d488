package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

// Common errors for developer repository operations.
var (
	ErrDeveloperNotFound = errors.New("developer not found")
	ErrDeveloperExists   = errors.New("developer profile already exists")
)

const developerColumns = `id, user_id, slug, display_name, website, support_email,
	payout_provider, stripe_account_id, flutterwave_beneficiary_id, mpesa_phone,
	payouts_enabled, created_at, updated_at`

// CreateDeveloper inserts a developer profile and promotes the owning user.
func (r *Repository) CreateDeveloper(ctx context.Context, dev *model.Developer) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO developers (id, user_id, slug, display_name, website, support_email, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err := tx.Exec(ctx, query,
			dev.ID,
			dev.UserID,
			dev.Slug,
			dev.DisplayName,
			dev.Website,
			dev.SupportEmail,
			dev.CreatedAt,
			dev.UpdatedAt,
		)
		if err != nil {
			if constraint, ok := uniqueViolation(err); ok {
				if strings.Contains(constraint, "slug") {
					return ErrSlugExists
				}
				return ErrDeveloperExists
			}
			return fmt.Errorf("failed to create developer: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE users SET role = $2 WHERE id = $1 AND role = $3`,
			dev.UserID, model.RoleDeveloper, model.RoleUser,
		)
		if err != nil {
			return fmt.Errorf("failed to promote user: %w", err)
		}
		return nil
	})
}

// GetDeveloperByID retrieves a developer profile by ID.
func (r *Repository) GetDeveloperByID(ctx context.Context, id string) (*model.Developer, error) {
	query := `SELECT ` + developerColumns + ` FROM developers WHERE id = $1`
	return scanDeveloper(r.pool.QueryRow(ctx, query, id))
}

// GetDeveloperByUserID retrieves the profile owned by a user.
func (r *Repository) GetDeveloperByUserID(ctx context.Context, userID string) (*model.Developer, error) {
	query := `SELECT ` + developerColumns + ` FROM developers WHERE user_id = $1`
	return scanDeveloper(r.pool.QueryRow(ctx, query, userID))
}

// UpdateDeveloper updates the public profile fields.
func (r *Repository) UpdateDeveloper(ctx context.Context, dev *model.Developer) error {
	query := `
		UPDATE developers
		SET display_name = $2, website = $3, support_email = $4, updated_at = $5
		WHERE id = $1
	`
	dev.UpdatedAt = time.Now().UTC()
	result, err := r.pool.Exec(ctx, query, dev.ID, dev.DisplayName, dev.Website, dev.SupportEmail, dev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update developer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDeveloperNotFound
	}
	return nil
}

// UpdateDeveloperPayout stores the payout destination returned by a provider.
func (r *Repository) UpdateDeveloperPayout(ctx context.Context, dev *model.Developer) error {
	query := `
		UPDATE developers
		SET payout_provider = $2, stripe_account_id = $3, flutterwave_beneficiary_id = $4,
			mpesa_phone = $5, payouts_enabled = $6, updated_at = $7
		WHERE id = $1
	`
	dev.UpdatedAt = time.Now().UTC()
	result, err := r.pool.Exec(ctx, query,
		dev.ID,
		dev.PayoutProvider,
		dev.StripeAccountID,
		dev.FlutterwaveBeneficiaryID,
		dev.MpesaPhone,
		dev.PayoutsEnabled,
		dev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update developer payout: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrDeveloperNotFound
	}
	return nil
}

// DeveloperSlugExists reports whether a developer slug is taken.
func (r *Repository) DeveloperSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM developers WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check developer slug: %w", err)
	}
	return exists, nil
}

func scanDeveloper(row pgx.Row) (*model.Developer, error) {
	var d model.Developer
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Slug,
		&d.DisplayName,
		&d.Website,
		&d.SupportEmail,
		&d.PayoutProvider,
		&d.StripeAccountID,
		&d.FlutterwaveBeneficiaryID,
		&d.MpesaPhone,
		&d.PayoutsEnabled,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeveloperNotFound
		}
		return nil, fmt.Errorf("failed to scan developer: %w", err)
	}
	return &d, nil
}
