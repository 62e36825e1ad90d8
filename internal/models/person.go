package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPersonName is the display name given to persons created from an unmatched face.
const DefaultPersonName = "Unknown"

type Person struct {
	ID           uuid.UUID `json:"id" db:"id"`
	OwnerID      string    `json:"owner_id" db:"owner_id"`
	Name         string    `json:"name" db:"name"`
	CollectionID string    `json:"collection_id" db:"collection_id"`
	// Embedding is the representative face embedding. Nil for manually created folders.
	Embedding []float32 `json:"-" db:"embedding"`
	// Seq is a monotonically increasing creation sequence used for ordering and tie-breaks.
	Seq       int64     `json:"-" db:"seq"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsFolder reports whether the person was created by hand rather than from a face.
func (p *Person) IsFolder() bool {
	return len(p.Embedding) == 0
}

// PersonSummary is a person plus the number of photos linked to it.
type PersonSummary struct {
	Person
	PhotoCount int `json:"photo_count"`
}
