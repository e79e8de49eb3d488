package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/model"
)

// Common errors for release repository operations.
var (
	ErrReleaseNotFound      = errors.New("release not found")
	ErrVersionNotIncreasing = errors.New("version code must exceed the channel's latest release")
)

const releaseColumns = `r.id, r.app_id, r.channel, r.version_name, r.version_code, r.notes, r.artifact_id, r.created_at,
	f.id, f.app_id, f.url, f.size_bytes, f.sha256, f.created_at`

const releaseFrom = ` FROM releases r JOIN artifacts f ON f.id = r.artifact_id `

// CreateRelease stores the artifact and the release that points at it. The
// app row is locked so concurrent uploads to one channel serialize.
func (r *Repository) CreateRelease(ctx context.Context, artifact *model.Artifact, release *model.Release) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var appID string
		err := tx.QueryRow(ctx, `SELECT id FROM apps WHERE id = $1 FOR UPDATE`, release.AppID).Scan(&appID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAppNotFound
			}
			return fmt.Errorf("failed to lock app: %w", err)
		}

		var latest int64
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version_code), 0) FROM releases WHERE app_id = $1 AND channel = $2`,
			release.AppID, release.Channel,
		).Scan(&latest)
		if err != nil {
			return fmt.Errorf("failed to read latest version: %w", err)
		}
		if release.VersionCode <= latest {
			return ErrVersionNotIncreasing
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO artifacts (id, app_id, url, size_bytes, sha256, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			artifact.ID, artifact.AppID, artifact.URL, artifact.SizeBytes, artifact.SHA256, artifact.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create artifact: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO releases (id, app_id, channel, version_name, version_code, notes, artifact_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			release.ID,
			release.AppID,
			release.Channel,
			release.VersionName,
			release.VersionCode,
			release.Notes,
			artifact.ID,
			release.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrVersionNotIncreasing
			}
			return fmt.Errorf("failed to create release: %w", err)
		}
		release.ArtifactID = artifact.ID
		release.Artifact = artifact
		return nil
	})
}

// GetRelease retrieves a release with its artifact.
func (r *Repository) GetRelease(ctx context.Context, id string) (*model.Release, error) {
	return scanRelease(r.pool.QueryRow(ctx, `SELECT `+releaseColumns+releaseFrom+`WHERE r.id = $1`, id))
}

// LatestRelease returns the highest version on a channel.
func (r *Repository) LatestRelease(ctx context.Context, appID string, channel model.Channel) (*model.Release, error) {
	query := `SELECT ` + releaseColumns + releaseFrom +
		`WHERE r.app_id = $1 AND r.channel = $2 ORDER BY r.version_code DESC LIMIT 1`
	return scanRelease(r.pool.QueryRow(ctx, query, appID, channel))
}

// ListReleases returns an app's releases, newest version first. An empty
// channel lists every channel.
func (r *Repository) ListReleases(ctx context.Context, appID string, channel model.Channel) ([]*model.Release, error) {
	query := `SELECT ` + releaseColumns + releaseFrom + `WHERE r.app_id = $1`
	args := []any{appID}
	if channel != "" {
		query += ` AND r.channel = $2`
		args = append(args, channel)
	}
	query += ` ORDER BY r.channel, r.version_code DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list releases: %w", err)
	}
	defer rows.Close()

	var releases []*model.Release
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releases, rows.Err()
}

// CountReleases returns how many releases an app has across channels.
func (r *Repository) CountReleases(ctx context.Context, appID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM releases WHERE app_id = $1`, appID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count releases: %w", err)
	}
	return n, nil
}

// DeleteRelease removes a release. The artifact record is kept.
func (r *Repository) DeleteRelease(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM releases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete release: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrReleaseNotFound
	}
	return nil
}

func scanRelease(row pgx.Row) (*model.Release, error) {
	var rel model.Release
	var f model.Artifact
	err := row.Scan(
		&rel.ID,
		&rel.AppID,
		&rel.Channel,
		&rel.VersionName,
		&rel.VersionCode,
		&rel.Notes,
		&rel.ArtifactID,
		&rel.CreatedAt,
		&f.ID,
		&f.AppID,
		&f.URL,
		&f.SizeBytes,
		&f.SHA256,
		&f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReleaseNotFound
		}
		return nil, fmt.Errorf("failed to scan release: %w", err)
	}
	rel.Artifact = &f
	return &rel, nil
}
