package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS releases (
		id BIGSERIAL PRIMARY KEY,
		version TEXT NOT NULL,
		device_class TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		blob_key TEXT NOT NULL,
		checksum TEXT,
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (device_class, version)
	)`,
	`CREATE TABLE IF NOT EXISTS device_states (
		device_id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT '',
		firmware_version TEXT NOT NULL DEFAULT '',
		last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS update_outcomes (
		id BIGSERIAL PRIMARY KEY,
		device_id TEXT NOT NULL,
		status TEXT NOT NULL,
		version TEXT NOT NULL,
		error_message TEXT,
		latency_ms BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sensor_readings (
		id BIGSERIAL PRIMARY KEY,
		device_id TEXT NOT NULL,
		temperature DOUBLE PRECISION NOT NULL,
		humidity DOUBLE PRECISION,
		light DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_releases_class_uploaded
		ON releases (device_class, uploaded_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_sensor_readings_device
		ON sensor_readings (device_id, id DESC)`,
}

// EnsureSchema creates the tables if they do not exist. Statements are
// idempotent so startup can run this unconditionally.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
