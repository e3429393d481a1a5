package models

import (
	"time"
)

type UpdateOutcome struct {
	ID           int64     `json:"id"`
	DeviceID     string    `json:"device_id"`
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	LatencyMs    *int64    `json:"latency_ms,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	OutcomeSuccess = "update_success"
	OutcomeFailed  = "update_failed"
)
