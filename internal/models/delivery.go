package models

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryRecord is written once per send attempt and never updated.
type DeliveryRecord struct {
	ID         uuid.UUID      `json:"id" db:"id"`
	OwnerID    string         `json:"owner_id" db:"owner_id"`
	PersonID   *uuid.UUID     `json:"person_id,omitempty" db:"person_id"`
	PersonName string         `json:"person_name,omitempty" db:"-"`
	Recipient  string         `json:"recipient" db:"recipient"`
	PhotoCount int            `json:"photo_count" db:"photo_count"`
	Status     DeliveryStatus `json:"status" db:"status"`
	Message    string         `json:"message,omitempty" db:"message"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// Stats is the per-owner dashboard summary.
type Stats struct {
	TotalPhotos     int     `json:"total_photos"`
	TotalPersons    int     `json:"total_persons"`
	TotalDeliveries int     `json:"total_deliveries"`
	RecentPhotos    []Photo `json:"recent_photos"`
}
