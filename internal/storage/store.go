package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/models"
)

// ErrNotFound is returned when a record does not exist for the requesting owner.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary. Every read is scoped by owner; a record
// belonging to another owner is reported as ErrNotFound.
type Store interface {
	CreatePerson(ctx context.Context, p *models.Person) error
	GetPerson(ctx context.Context, ownerID string, id uuid.UUID) (*models.Person, error)
	// ListPersons returns the owner's persons in creation order.
	ListPersons(ctx context.Context, ownerID string) ([]models.Person, error)
	ListPersonSummaries(ctx context.Context, ownerID string) ([]models.PersonSummary, error)
	CollectionExists(ctx context.Context, ownerID, collectionID string) (bool, error)
	RenamePerson(ctx context.Context, ownerID string, id uuid.UUID, name string) error
	// DeletePerson removes the person with its links and returns the photos
	// that were left without any link and were deleted with it.
	DeletePerson(ctx context.Context, ownerID string, id uuid.UUID) ([]models.Photo, error)
	CountPersons(ctx context.Context, ownerID string) (int, error)
	SearchPersons(ctx context.Context, ownerID string, embedding []float32, threshold float64, limit int) ([]SearchMatch, error)

	CreatePhoto(ctx context.Context, p *models.Photo) error
	GetPhoto(ctx context.Context, ownerID string, id uuid.UUID) (*models.Photo, error)
	// ListPersonPhotos returns the photos linked to a person, oldest first.
	ListPersonPhotos(ctx context.Context, ownerID string, personID uuid.UUID) ([]models.PersonPhoto, error)
	RecentPhotos(ctx context.Context, ownerID string, limit int) ([]models.Photo, error)
	CountPhotos(ctx context.Context, ownerID string) (int, error)

	// AddLink inserts the (photo, person) pair if absent and reports whether it was created.
	AddLink(ctx context.Context, photoID, personID uuid.UUID) (bool, error)
	SetLinkStatus(ctx context.Context, photoID, personID uuid.UUID, status models.LinkStatus, errMsg string) error
	ListLinks(ctx context.Context, ownerID string, photoID uuid.UUID) ([]models.PhotoPersonLink, error)
	// RemoveLink deletes one link and, when the photo has no links left, the photo itself.
	RemoveLink(ctx context.Context, ownerID string, photoID, personID uuid.UUID) (photoDeleted bool, err error)

	CreateDelivery(ctx context.Context, d *models.DeliveryRecord) error
	// ListDeliveries returns the owner's delivery history, newest first.
	ListDeliveries(ctx context.Context, ownerID string) ([]models.DeliveryRecord, error)
	CountDeliveries(ctx context.Context, ownerID string) (int, error)

	Ping(ctx context.Context) error
	Close()
}

type SearchMatch struct {
	PersonID uuid.UUID `json:"person_id"`
	Name     string    `json:"name"`
	Score    float64   `json:"score"`
}
