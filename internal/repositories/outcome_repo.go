package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/otafleet/otafleet/internal/models"
)

type PostgresOutcomeRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOutcomeRepository(pool *pgxpool.Pool) *PostgresOutcomeRepository {
	return &PostgresOutcomeRepository{pool: pool}
}

// Append writes one outcome row. The log is append-only and never
// deduplicated: a device retrying a post produces a second row.
func (r *PostgresOutcomeRepository) Append(ctx context.Context, outcome *models.UpdateOutcome) error {
	query := `INSERT INTO update_outcomes (device_id, status, version, error_message, latency_ms)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		outcome.DeviceID,
		outcome.Status,
		outcome.Version,
		outcome.ErrorMessage,
		outcome.LatencyMs,
	).Scan(&outcome.ID, &outcome.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append outcome: %w", err)
	}
	return nil
}

func (r *PostgresOutcomeRepository) ListRecent(ctx context.Context, limit int) ([]*models.UpdateOutcome, error) {
	query := `SELECT id, device_id, status, version, error_message, latency_ms, created_at
	          FROM update_outcomes
	          ORDER BY id DESC
	          LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*models.UpdateOutcome
	for rows.Next() {
		var outcome models.UpdateOutcome
		err := rows.Scan(
			&outcome.ID,
			&outcome.DeviceID,
			&outcome.Status,
			&outcome.Version,
			&outcome.ErrorMessage,
			&outcome.LatencyMs,
			&outcome.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, &outcome)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return outcomes, nil
}
