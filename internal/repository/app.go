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

// Common errors for app repository operations.
var (
	ErrAppNotFound   = errors.New("app not found")
	ErrSlugExists    = errors.New("slug already exists")
	ErrPackageExists = errors.New("package name already exists")
	ErrDraftNotFound = errors.New("draft not found")
	ErrStatusChanged = errors.New("app status changed concurrently")
)

// Catalog sort orders.
const (
	SortNew     = "new"
	SortPopular = "popular"
	SortRating  = "rating"
	SortPrice   = "price"
)

// AppFilter narrows storefront listings.
type AppFilter struct {
	Query    string
	Category string
	Sort     string
}

const appColumns = `a.id, a.developer_id, a.slug, a.package_name, a.name, a.summary, a.description,
	a.category, a.tags, a.price_cents, a.currency, a.icon_url, a.screenshots, a.status,
	a.review_notes, a.rating_avg, a.rating_count, a.downloads, a.published_at,
	a.created_at, a.updated_at, d.display_name`

const appFrom = ` FROM apps a JOIN developers d ON d.id = a.developer_id `

// CreateApp inserts an app together with its initial draft.
func (r *Repository) CreateApp(ctx context.Context, app *model.App, draft *model.AppDraft) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO apps (id, developer_id, slug, package_name, name, summary, description, category,
				tags, price_cents, currency, icon_url, screenshots, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`
		_, err := tx.Exec(ctx, query,
			app.ID,
			app.DeveloperID,
			app.Slug,
			app.PackageName,
			app.Name,
			app.Summary,
			app.Description,
			app.Category,
			nonNil(app.Tags),
			app.PriceCents,
			app.Currency,
			app.IconURL,
			nonNil(app.Screenshots),
			app.Status,
			app.CreatedAt,
			app.UpdatedAt,
		)
		if err != nil {
			if constraint, ok := uniqueViolation(err); ok {
				if strings.Contains(constraint, "package") {
					return ErrPackageExists
				}
				return ErrSlugExists
			}
			return fmt.Errorf("failed to create app: %w", err)
		}

		return upsertDraft(ctx, tx, draft)
	})
}

// SlugExists reports whether an app slug is taken.
func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM apps WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug existence: %w", err)
	}
	return exists, nil
}

// GetAppByID retrieves an app by its ID regardless of status.
func (r *Repository) GetAppByID(ctx context.Context, id string) (*model.App, error) {
	return scanApp(r.pool.QueryRow(ctx, `SELECT `+appColumns+appFrom+`WHERE a.id = $1`, id))
}

// GetAppBySlug retrieves an app by its slug regardless of status.
func (r *Repository) GetAppBySlug(ctx context.Context, slug string) (*model.App, error) {
	return scanApp(r.pool.QueryRow(ctx, `SELECT `+appColumns+appFrom+`WHERE a.slug = $1`, slug))
}

// ListAppsByDeveloper returns every app owned by a developer, newest first.
func (r *Repository) ListAppsByDeveloper(ctx context.Context, developerID string) ([]*model.App, error) {
	query := `SELECT ` + appColumns + appFrom + `WHERE a.developer_id = $1 ORDER BY a.created_at DESC`
	return r.queryApps(ctx, query, developerID)
}

// ListPublishedApps returns a page of storefront apps. The "new" order pages by
// keyset on published_at; the ranked orders page by offset.
func (r *Repository) ListPublishedApps(ctx context.Context, filter AppFilter, cursor string, limit int) ([]*model.App, string, error) {
	cur, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + appColumns + appFrom + `WHERE a.status = 'PUBLISHED'`)
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Category != "" {
		fmt.Fprintf(&b, " AND a.category = %s", arg(filter.Category))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := arg("%" + escapeLike(q) + "%")
		tag := arg(strings.ToLower(q))
		fmt.Fprintf(&b, " AND (a.name ILIKE %[1]s OR a.summary ILIKE %[1]s OR %[2]s = ANY(a.tags))", pattern, tag)
	}

	offset := 0
	switch filter.Sort {
	case SortPopular:
		b.WriteString(" ORDER BY a.downloads DESC, a.id DESC")
	case SortRating:
		b.WriteString(" ORDER BY a.rating_avg DESC, a.rating_count DESC, a.id DESC")
	case SortPrice:
		b.WriteString(" ORDER BY a.price_cents ASC, a.id ASC")
	default:
		if cur != nil && cur.ID != "" {
			fmt.Fprintf(&b, " AND (a.published_at, a.id) < (%s, %s)", arg(cur.At), arg(cur.ID))
		}
		b.WriteString(" ORDER BY a.published_at DESC, a.id DESC")
	}
	if filter.Sort == SortPopular || filter.Sort == SortRating || filter.Sort == SortPrice {
		if cur != nil {
			offset = cur.Offset
		}
		fmt.Fprintf(&b, " OFFSET %s", arg(offset))
	}
	fmt.Fprintf(&b, " LIMIT %s", arg(limit+1))

	apps, err := r.queryApps(ctx, b.String(), args...)
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(apps) > limit {
		apps = apps[:limit]
		last := apps[len(apps)-1]
		switch filter.Sort {
		case SortPopular, SortRating, SortPrice:
			next = encodeCursor(&PaginationCursor{Offset: offset + limit})
		default:
			var at time.Time
			if last.PublishedAt != nil {
				at = *last.PublishedAt
			}
			next = encodeCursor(&PaginationCursor{ID: last.ID, At: at})
		}
	}
	return apps, next, nil
}

// ListAppsByStatus returns the moderation queue for a status, oldest change first.
func (r *Repository) ListAppsByStatus(ctx context.Context, status model.AppStatus, cursor string, limit int) ([]*model.App, string, error) {
	cur, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	query := `SELECT ` + appColumns + appFrom + `WHERE a.status = $1`
	args := []any{status}
	if cur != nil {
		query += ` AND (a.updated_at, a.id) > ($2, $3)`
		args = append(args, cur.At, cur.ID)
	}
	query += fmt.Sprintf(` ORDER BY a.updated_at ASC, a.id ASC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	apps, err := r.queryApps(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}

	var next string
	if len(apps) > limit {
		apps = apps[:limit]
		last := apps[len(apps)-1]
		next = encodeCursor(&PaginationCursor{ID: last.ID, At: last.UpdatedAt})
	}
	return apps, next, nil
}

// GetDraft retrieves the pending edits of an app.
func (r *Repository) GetDraft(ctx context.Context, appID string) (*model.AppDraft, error) {
	query := `
		SELECT app_id, name, summary, description, category, tags, price_cents, currency,
			icon_url, screenshots, submitted_at, updated_at
		FROM app_drafts WHERE app_id = $1
	`
	var d model.AppDraft
	err := r.pool.QueryRow(ctx, query, appID).Scan(
		&d.AppID,
		&d.Name,
		&d.Summary,
		&d.Description,
		&d.Category,
		&d.Tags,
		&d.PriceCents,
		&d.Currency,
		&d.IconURL,
		&d.Screenshots,
		&d.SubmittedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &d, nil
}

// UpdateDraft stores the developer's edits.
func (r *Repository) UpdateDraft(ctx context.Context, draft *model.AppDraft) error {
	return upsertDraft(ctx, r.pool, draft)
}

func upsertDraft(ctx context.Context, db dbtx, d *model.AppDraft) error {
	query := `
		INSERT INTO app_drafts (app_id, name, summary, description, category, tags, price_cents,
			currency, icon_url, screenshots, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (app_id) DO UPDATE SET
			name = EXCLUDED.name,
			summary = EXCLUDED.summary,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			price_cents = EXCLUDED.price_cents,
			currency = EXCLUDED.currency,
			icon_url = EXCLUDED.icon_url,
			screenshots = EXCLUDED.screenshots,
			submitted_at = EXCLUDED.submitted_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := db.Exec(ctx, query,
		d.AppID,
		d.Name,
		d.Summary,
		d.Description,
		d.Category,
		nonNil(d.Tags),
		d.PriceCents,
		d.Currency,
		d.IconURL,
		nonNil(d.Screenshots),
		d.SubmittedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// ApplyTransition persists a status change guarded by the expected prior
// status, writes the public fields of app and records the moderation event.
// When submittedAt is set the draft is stamped as submitted.
func (r *Repository) ApplyTransition(ctx context.Context, app *model.App, from model.AppStatus, event *model.ModerationEvent, submittedAt *time.Time) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE apps
			SET status = $3, review_notes = $4, published_at = $5, updated_at = $6,
				name = $7, summary = $8, description = $9, category = $10, tags = $11,
				price_cents = $12, currency = $13, icon_url = $14, screenshots = $15
			WHERE id = $1 AND status = $2
		`
		result, err := tx.Exec(ctx, query,
			app.ID,
			from,
			app.Status,
			app.ReviewNotes,
			app.PublishedAt,
			app.UpdatedAt,
			app.Name,
			app.Summary,
			app.Description,
			app.Category,
			nonNil(app.Tags),
			app.PriceCents,
			app.Currency,
			app.IconURL,
			nonNil(app.Screenshots),
		)
		if err != nil {
			return fmt.Errorf("failed to update app status: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrStatusChanged
		}

		if submittedAt != nil {
			_, err := tx.Exec(ctx, `UPDATE app_drafts SET submitted_at = $2 WHERE app_id = $1`, app.ID, *submittedAt)
			if err != nil {
				return fmt.Errorf("failed to stamp draft: %w", err)
			}
		}

		return insertModerationEvent(ctx, tx, event)
	})
}

func insertModerationEvent(ctx context.Context, db dbtx, e *model.ModerationEvent) error {
	query := `
		INSERT INTO moderation_events (id, app_id, actor_id, action, from_status, to_status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := db.Exec(ctx, query, e.ID, e.AppID, e.ActorID, e.Action, e.FromStatus, e.ToStatus, e.Notes, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record moderation event: %w", err)
	}
	return nil
}

// ListModerationEvents returns an app's status history, oldest first.
func (r *Repository) ListModerationEvents(ctx context.Context, appID string) ([]*model.ModerationEvent, error) {
	query := `
		SELECT id, app_id, actor_id, action, from_status, to_status, notes, created_at
		FROM moderation_events WHERE app_id = $1 ORDER BY created_at ASC, id ASC
	`
	rows, err := r.pool.Query(ctx, query, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moderation events: %w", err)
	}
	defer rows.Close()

	var events []*model.ModerationEvent
	for rows.Next() {
		var e model.ModerationEvent
		if err := rows.Scan(&e.ID, &e.AppID, &e.ActorID, &e.Action, &e.FromStatus, &e.ToStatus, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan moderation event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CountAppsByStatus returns how many apps sit in each status.
func (r *Repository) CountAppsByStatus(ctx context.Context) ([]model.StatusCount, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM apps GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count apps: %w", err)
	}
	defer rows.Close()

	var counts []model.StatusCount
	for rows.Next() {
		var c model.StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// CountPublishedByCategory returns the number of listed apps per category.
func (r *Repository) CountPublishedByCategory(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT category, COUNT(*) FROM apps WHERE status = 'PUBLISHED' GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category string
		var n int64
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

// IncrementDownloads bumps the download counter of an app.
func (r *Repository) IncrementDownloads(ctx context.Context, appID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE apps SET downloads = downloads + 1 WHERE id = $1`, appID)
	if err != nil {
		return fmt.Errorf("failed to increment downloads: %w", err)
	}
	return nil
}

func (r *Repository) queryApps(ctx context.Context, query string, args ...any) ([]*model.App, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query apps: %w", err)
	}
	defer rows.Close()

	var apps []*model.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating apps: %w", err)
	}
	return apps, nil
}

func scanApp(row pgx.Row) (*model.App, error) {
	var a model.App
	err := row.Scan(
		&a.ID,
		&a.DeveloperID,
		&a.Slug,
		&a.PackageName,
		&a.Name,
		&a.Summary,
		&a.Description,
		&a.Category,
		&a.Tags,
		&a.PriceCents,
		&a.Currency,
		&a.IconURL,
		&a.Screenshots,
		&a.Status,
		&a.ReviewNotes,
		&a.RatingAvg,
		&a.RatingCount,
		&a.Downloads,
		&a.PublishedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.DeveloperName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppNotFound
		}
		return nil, fmt.Errorf("failed to scan app: %w", err)
	}
	return &a, nil
}

// escapeLike escapes LIKE metacharacters in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// nonNil keeps NOT NULL array columns from receiving SQL NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
