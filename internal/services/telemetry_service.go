package services

import (
	"context"
	"log"

	"github.com/otafleet/otafleet/internal/models"
	"github.com/otafleet/otafleet/internal/repositories"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type TelemetryService struct {
	states   repositories.DeviceStateRepository
	outcomes repositories.OutcomeRepository
	sensors  repositories.SensorRepository
	presence repositories.PresenceRepository
}

type HeartbeatRequest struct {
	DeviceID        string `json:"device_id"`
	Status          string `json:"status"`
	FirmwareVersion string `json:"firmware_version"`
}

type OutcomeRequest struct {
	DeviceID     string  `json:"device_id"`
	Status       string  `json:"status"`
	Version      string  `json:"version"`
	ErrorMessage *string `json:"error_message"`
	LatencyMs    *int64  `json:"latency_ms"`
}

type SensorRequest struct {
	DeviceID    string   `json:"device_id"`
	Temperature *float64 `json:"temp"`
	Humidity    *float64 `json:"humidity"`
	Light       *float64 `json:"light"`
}

// DeviceStatus is a device's latest heartbeat merged with its liveness as
// seen by the presence cache.
type DeviceStatus struct {
	models.DeviceState
	Online bool `json:"online"`
}

func NewTelemetryService(
	states repositories.DeviceStateRepository,
	outcomes repositories.OutcomeRepository,
	sensors repositories.SensorRepository,
	presence repositories.PresenceRepository,
) *TelemetryService {
	return &TelemetryService{
		states:   states,
		outcomes: outcomes,
		sensors:  sensors,
		presence: presence,
	}
}

// RecordHeartbeat upserts the device's latest state. Replaying an identical
// heartbeat leaves exactly one row. The presence cache write is advisory and
// never fails the heartbeat.
func (s *TelemetryService) RecordHeartbeat(ctx context.Context, req HeartbeatRequest) (*models.DeviceState, error) {
	if req.DeviceID == "" {
		return nil, validationError("device_id is required")
	}

	state := &models.DeviceState{
		DeviceID:        req.DeviceID,
		Status:          req.Status,
		FirmwareVersion: req.FirmwareVersion,
	}
	if err := s.states.Upsert(ctx, state); err != nil {
		return nil, err
	}

	presence := &models.Presence{
		DeviceID: req.DeviceID,
		Status:   string(models.StatusOnline),
	}
	if err := s.presence.SetPresence(ctx, presence); err != nil {
		log.Printf("failed to update presence for %s: %v", req.DeviceID, err)
	}

	return state, nil
}

// RecordOutcome appends one update-outcome row. The log is never
// deduplicated; retried posts produce duplicate rows by design.
func (s *TelemetryService) RecordOutcome(ctx context.Context, req OutcomeRequest) (*models.UpdateOutcome, error) {
	if req.DeviceID == "" || req.Status == "" || req.Version == "" {
		return nil, validationError("device_id, status and version are required")
	}
	if req.Status != models.OutcomeSuccess && req.Status != models.OutcomeFailed {
		return nil, validationError("status must be %s or %s", models.OutcomeSuccess, models.OutcomeFailed)
	}

	outcome := &models.UpdateOutcome{
		DeviceID:     req.DeviceID,
		Status:       req.Status,
		Version:      NormalizeVersion(req.Version),
		ErrorMessage: req.ErrorMessage,
		LatencyMs:    req.LatencyMs,
	}
	if err := s.outcomes.Append(ctx, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *TelemetryService) RecordSensorReading(ctx context.Context, req SensorRequest) (*models.SensorReading, error) {
	if req.DeviceID == "" {
		return nil, validationError("device_id is required")
	}
	if req.Temperature == nil {
		return nil, validationError("temp is required")
	}

	reading := &models.SensorReading{
		DeviceID:    req.DeviceID,
		Temperature: *req.Temperature,
		Humidity:    req.Humidity,
		Light:       req.Light,
	}
	if err := s.sensors.Append(ctx, reading); err != nil {
		return nil, err
	}
	return reading, nil
}

// ListDeviceStatuses returns the latest heartbeat per device, most recent
// first, with liveness filled in from the presence cache.
func (s *TelemetryService) ListDeviceStatuses(ctx context.Context) ([]DeviceStatus, error) {
	states, err := s.states.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	deviceIDs := make([]string, len(states))
	for i, state := range states {
		deviceIDs[i] = state.DeviceID
	}

	presenceMap, err := s.presence.GetBulkPresence(ctx, deviceIDs)
	if err != nil {
		// Presence is advisory; report everything offline rather than fail.
		log.Printf("failed to read bulk presence: %v", err)
		presenceMap = map[string]models.Presence{}
	}

	statuses := make([]DeviceStatus, len(states))
	for i, state := range states {
		presence, ok := presenceMap[state.DeviceID]
		statuses[i] = DeviceStatus{
			DeviceState: *state,
			Online:      ok && presence.Status == string(models.StatusOnline),
		}
	}
	return statuses, nil
}

func (s *TelemetryService) ListOutcomes(ctx context.Context, limit int) ([]*models.UpdateOutcome, error) {
	return s.outcomes.ListRecent(ctx, clampLimit(limit))
}

func (s *TelemetryService) ListSensorReadings(ctx context.Context, deviceID string, limit, offset int) ([]*models.SensorReading, error) {
	if offset < 0 {
		offset = 0
	}
	return s.sensors.ListRecent(ctx, deviceID, clampLimit(limit), offset)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
