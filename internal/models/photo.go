package models

import (
	"time"

	"github.com/google/uuid"
)

type Photo struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OwnerID     string    `json:"owner_id" db:"owner_id"`
	Filename    string    `json:"filename" db:"filename"`
	AssetKey    string    `json:"asset_key" db:"asset_key"` // object store key of the original
	ContentType string    `json:"content_type" db:"content_type"`
	Seq         int64     `json:"-" db:"seq"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type LinkStatus string

const (
	LinkPending      LinkStatus = "pending"
	LinkMaterialized LinkStatus = "materialized"
	LinkFailed       LinkStatus = "failed"
)

// PhotoPersonLink associates a photo with a person. At most one exists per pair;
// Status records whether the asset was placed into the person's collection.
type PhotoPersonLink struct {
	PhotoID   uuid.UUID  `json:"photo_id" db:"photo_id"`
	PersonID  uuid.UUID  `json:"person_id" db:"person_id"`
	Status    LinkStatus `json:"status" db:"status"`
	Error     string     `json:"error,omitempty" db:"error"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// PersonPhoto is a photo as seen from one person's collection.
type PersonPhoto struct {
	Photo
	PersonID uuid.UUID  `json:"person_id"`
	Status   LinkStatus `json:"status"`
}
