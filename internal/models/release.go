package models

import (
	"time"
)

type Release struct {
	ID          int64     `json:"id"`
	Version     string    `json:"version"`
	DeviceClass string    `json:"device_class"`
	Notes       string    `json:"notes"`
	BlobKey     string    `json:"blob_key"`
	Checksum    *string   `json:"checksum,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
