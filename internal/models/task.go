package models

import (
	"time"

	"github.com/google/uuid"
)

// PhotoTask is the message published to NATS for worker routing.
type PhotoTask struct {
	TaskID      uuid.UUID `json:"task_id"`
	OwnerID     string    `json:"owner_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	AssetKey    string    `json:"asset_key"` // MinIO object key of the uploaded original
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Materialization is the per-person collection placement outcome of one routing call.
type Materialization struct {
	PersonID     uuid.UUID  `json:"person_id"`
	CollectionID string     `json:"collection_id"`
	Status       LinkStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
}

// RoutedEvent is published after a photo has been routed.
type RoutedEvent struct {
	OwnerID          string            `json:"owner_id"`
	PhotoID          uuid.UUID         `json:"photo_id"`
	Filename         string            `json:"filename"`
	FacesDetected    int               `json:"faces_detected"`
	PersonIDs        []uuid.UUID       `json:"person_ids"`
	CreatedPersonIDs []uuid.UUID       `json:"created_person_ids,omitempty"`
	Materializations []Materialization `json:"materializations,omitempty"`
	ExtractionError  string            `json:"extraction_error,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}
