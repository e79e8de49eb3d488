package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

// UnpaidBalances groups completed purchases without a payout by developer and
// currency. Only developers with payouts enabled are included.
func (r *Repository) UnpaidBalances(ctx context.Context) ([]*model.PayoutBatch, error) {
	query := `
		SELECT ` + prefixed("d.", developerColumns) + `,
			p.currency, SUM(p.amount_cents - p.fee_cents)::bigint, array_agg(p.id ORDER BY p.id)
		FROM purchases p JOIN developers d ON d.id = p.developer_id
		WHERE p.status = 'completed' AND p.payout_id IS NULL AND d.payouts_enabled
		GROUP BY d.id, p.currency
		ORDER BY d.id, p.currency
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpaid balances: %w", err)
	}
	defer rows.Close()

	var batches []*model.PayoutBatch
	for rows.Next() {
		var d model.Developer
		var b model.PayoutBatch
		err := rows.Scan(
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
			&b.Currency,
			&b.AmountCents,
			&b.PurchaseIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unpaid balance: %w", err)
		}
		b.Developer = &d
		batches = append(batches, &b)
	}
	return batches, rows.Err()
}

// CreatePayout inserts a pending payout.
func (r *Repository) CreatePayout(ctx context.Context, p *model.Payout) error {
	query := `
		INSERT INTO payouts (id, developer_id, provider, amount_cents, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query, p.ID, p.DeveloperID, p.Provider, p.AmountCents, p.Currency, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

// MarkPayoutPaid records the provider reference and links the paid purchases.
func (r *Repository) MarkPayoutPaid(ctx context.Context, payoutID, providerRef string, purchaseIDs []string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE payouts SET status = 'paid', provider_ref = $2, updated_at = $3 WHERE id = $1`,
			payoutID, providerRef, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to mark payout paid: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE purchases SET payout_id = $1 WHERE id = ANY($2) AND payout_id IS NULL`,
			payoutID, purchaseIDs,
		)
		if err != nil {
			return fmt.Errorf("failed to link purchases to payout: %w", err)
		}
		return nil
	})
}

// MarkPayoutFailed stores the provider's failure message.
func (r *Repository) MarkPayoutFailed(ctx context.Context, payoutID, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE payouts SET status = 'failed', failure_reason = $2, updated_at = $3 WHERE id = $1`,
		payoutID, reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark payout failed: %w", err)
	}
	return nil
}

// ListPayoutsByDeveloper returns a developer's payouts, newest first.
func (r *Repository) ListPayoutsByDeveloper(ctx context.Context, developerID string) ([]*model.Payout, error) {
	query := `
		SELECT id, developer_id, provider, amount_cents, currency, status, provider_ref,
			failure_reason, created_at, updated_at
		FROM payouts WHERE developer_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, developerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*model.Payout
	for rows.Next() {
		var p model.Payout
		err := rows.Scan(&p.ID, &p.DeveloperID, &p.Provider, &p.AmountCents, &p.Currency,
			&p.Status, &p.ProviderRef, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, &p)
	}
	return payouts, rows.Err()
}

// PendingPayoutTotal returns the unpaid developer share across all currencies,
// keyed by currency.
func (r *Repository) PendingPayoutTotal(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT currency, SUM(amount_cents - fee_cents)::bigint FROM purchases
		WHERE status = 'completed' AND payout_id IS NULL GROUP BY currency`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum pending payouts: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var currency string
		var sum int64
		if err := rows.Scan(&currency, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan pending payout: %w", err)
		}
		totals[currency] = sum
	}
	return totals, rows.Err()
}
