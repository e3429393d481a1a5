package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/otafleet/otafleet/internal/models"
)

type PostgresDeviceStateRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresDeviceStateRepository(pool *pgxpool.Pool) *PostgresDeviceStateRepository {
	return &PostgresDeviceStateRepository{pool: pool}
}

// Upsert records a heartbeat. Last write wins: an existing row's status,
// firmware version and last_seen are replaced unconditionally, so at most one
// row exists per device id even under concurrent heartbeats.
func (r *PostgresDeviceStateRepository) Upsert(ctx context.Context, state *models.DeviceState) error {
	query := `INSERT INTO device_states (device_id, status, firmware_version, last_seen)
	          VALUES ($1, $2, $3, NOW())
	          ON CONFLICT (device_id) DO UPDATE
	          SET status = EXCLUDED.status,
	              firmware_version = EXCLUDED.firmware_version,
	              last_seen = NOW()
	          RETURNING last_seen`

	err := r.pool.QueryRow(ctx, query,
		state.DeviceID,
		state.Status,
		state.FirmwareVersion,
	).Scan(&state.LastSeen)

	if err != nil {
		return fmt.Errorf("failed to upsert device state: %w", err)
	}
	return nil
}

func (r *PostgresDeviceStateRepository) GetByDeviceID(ctx context.Context, deviceID string) (*models.DeviceState, error) {
	query := `SELECT device_id, status, firmware_version, last_seen
	          FROM device_states
	          WHERE device_id = $1`

	var state models.DeviceState
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(
		&state.DeviceID,
		&state.Status,
		&state.FirmwareVersion,
		&state.LastSeen,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device state: %w", err)
	}
	return &state, nil
}

func (r *PostgresDeviceStateRepository) ListAll(ctx context.Context) ([]*models.DeviceState, error) {
	query := `SELECT device_id, status, firmware_version, last_seen
	          FROM device_states
	          ORDER BY last_seen DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query device states: %w", err)
	}
	defer rows.Close()

	var states []*models.DeviceState
	for rows.Next() {
		var state models.DeviceState
		err := rows.Scan(
			&state.DeviceID,
			&state.Status,
			&state.FirmwareVersion,
			&state.LastSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device state: %w", err)
		}
		states = append(states, &state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device states: %w", err)
	}

	return states, nil
}
