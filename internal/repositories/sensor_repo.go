package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/otafleet/otafleet/internal/models"
)

type PostgresSensorRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSensorRepository(pool *pgxpool.Pool) *PostgresSensorRepository {
	return &PostgresSensorRepository{pool: pool}
}

// Append writes one reading. Humidity and light stay NULL when the device did
// not report them; absence is never stored as zero.
func (r *PostgresSensorRepository) Append(ctx context.Context, reading *models.SensorReading) error {
	query := `INSERT INTO sensor_readings (device_id, temperature, humidity, light)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		reading.DeviceID,
		reading.Temperature,
		reading.Humidity,
		reading.Light,
	).Scan(&reading.ID, &reading.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append sensor reading: %w", err)
	}
	return nil
}

// ListRecent returns readings most recent first. An empty deviceID means
// fleet-wide.
func (r *PostgresSensorRepository) ListRecent(ctx context.Context, deviceID string, limit, offset int) ([]*models.SensorReading, error) {
	query := `SELECT id, device_id, temperature, humidity, light, created_at
	          FROM sensor_readings
	          WHERE ($1 = '' OR device_id = $1)
	          ORDER BY id DESC
	          LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, deviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.SensorReading
	for rows.Next() {
		var reading models.SensorReading
		err := rows.Scan(
			&reading.ID,
			&reading.DeviceID,
			&reading.Temperature,
			&reading.Humidity,
			&reading.Light,
			&reading.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sensor reading: %w", err)
		}
		readings = append(readings, &reading)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sensor readings: %w", err)
	}

	return readings, nil
}
