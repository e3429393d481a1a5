package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/otafleet/otafleet/internal/models"
)

var ErrNotFound = errors.New("not found")

// ErrDuplicateRelease is returned when a release with the same device class
// and version already exists in the catalog.
var ErrDuplicateRelease = errors.New("release already exists for device class and version")

type PostgresReleaseRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresReleaseRepository(pool *pgxpool.Pool) *PostgresReleaseRepository {
	return &PostgresReleaseRepository{pool: pool}
}

func (r *PostgresReleaseRepository) Insert(ctx context.Context, release *models.Release) error {
	query := `INSERT INTO releases (version, device_class, notes, blob_key, checksum)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, uploaded_at`

	err := r.pool.QueryRow(ctx, query,
		release.Version,
		release.DeviceClass,
		release.Notes,
		release.BlobKey,
		release.Checksum,
	).Scan(&release.ID, &release.UploadedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateRelease
	}
	if err != nil {
		return fmt.Errorf("failed to insert release: %w", err)
	}
	return nil
}

func (r *PostgresReleaseRepository) GetByID(ctx context.Context, id int64) (*models.Release, error) {
	query := `SELECT id, version, device_class, notes, blob_key, checksum, uploaded_at
	          FROM releases
	          WHERE id = $1`

	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresReleaseRepository) GetByVersion(ctx context.Context, deviceClass, version string) (*models.Release, error) {
	// When legacy duplicates exist for the pair, the newest row wins.
	query := `SELECT id, version, device_class, notes, blob_key, checksum, uploaded_at
	          FROM releases
	          WHERE device_class = $1 AND version = $2
	          ORDER BY uploaded_at DESC, id DESC
	          LIMIT 1`

	return r.scanOne(r.pool.QueryRow(ctx, query, deviceClass, version))
}

// LatestFor returns the most recently uploaded release for a device class.
// Ties on the timestamp resolve to the highest insertion id.
func (r *PostgresReleaseRepository) LatestFor(ctx context.Context, deviceClass string) (*models.Release, error) {
	query := `SELECT id, version, device_class, notes, blob_key, checksum, uploaded_at
	          FROM releases
	          WHERE device_class = $1
	          ORDER BY uploaded_at DESC, id DESC
	          LIMIT 1`

	return r.scanOne(r.pool.QueryRow(ctx, query, deviceClass))
}

func (r *PostgresReleaseRepository) ListAll(ctx context.Context) ([]*models.Release, error) {
	query := `SELECT id, version, device_class, notes, blob_key, checksum, uploaded_at
	          FROM releases
	          ORDER BY uploaded_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query releases: %w", err)
	}
	defer rows.Close()

	var releases []*models.Release
	for rows.Next() {
		var release models.Release
		err := rows.Scan(
			&release.ID,
			&release.Version,
			&release.DeviceClass,
			&release.Notes,
			&release.BlobKey,
			&release.Checksum,
			&release.UploadedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan release: %w", err)
		}
		releases = append(releases, &release)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating releases: %w", err)
	}

	return releases, nil
}

// DeleteByID removes the catalog row and reports whether it existed.
func (r *PostgresReleaseRepository) DeleteByID(ctx context.Context, id int64) (bool, error) {
	query := `DELETE FROM releases WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete release: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *PostgresReleaseRepository) scanOne(row pgx.Row) (*models.Release, error) {
	var release models.Release
	err := row.Scan(
		&release.ID,
		&release.Version,
		&release.DeviceClass,
		&release.Notes,
		&release.BlobKey,
		&release.Checksum,
		&release.UploadedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan release: %w", err)
	}
	return &release, nil
}
