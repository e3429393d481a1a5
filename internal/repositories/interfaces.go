package repositories

import (
	"context"

	"github.com/otafleet/otafleet/internal/models"
)

type ReleaseRepository interface {
	Insert(ctx context.Context, release *models.Release) error
	GetByID(ctx context.Context, id int64) (*models.Release, error)
	GetByVersion(ctx context.Context, deviceClass, version string) (*models.Release, error)
	LatestFor(ctx context.Context, deviceClass string) (*models.Release, error)
	ListAll(ctx context.Context) ([]*models.Release, error)
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

type DeviceStateRepository interface {
	Upsert(ctx context.Context, state *models.DeviceState) error
	GetByDeviceID(ctx context.Context, deviceID string) (*models.DeviceState, error)
	ListAll(ctx context.Context) ([]*models.DeviceState, error)
}

type OutcomeRepository interface {
	Append(ctx context.Context, outcome *models.UpdateOutcome) error
	ListRecent(ctx context.Context, limit int) ([]*models.UpdateOutcome, error)
}

type SensorRepository interface {
	Append(ctx context.Context, reading *models.SensorReading) error
	ListRecent(ctx context.Context, deviceID string, limit, offset int) ([]*models.SensorReading, error)
}

type PresenceRepository interface {
	SetPresence(ctx context.Context, presence *models.Presence) error
	GetBulkPresence(ctx context.Context, deviceIDs []string) (map[string]models.Presence, error)
}
