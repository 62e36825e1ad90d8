// Package registry owns the per-owner set of persons: faces discovered by the
// routing engine and folders created by hand.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/collection"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/storage"
)

var (
	// ErrNotFound is storage.ErrNotFound so callers can match either.
	ErrNotFound    = storage.ErrNotFound
	ErrInvalidName = errors.New("invalid name")
	ErrNoEmbedding = errors.New("person requires an embedding")
)

const maxCollectionAttempts = 5

type Registry struct {
	store   storage.Store
	objects storage.ObjectStore
}

// New creates a registry. objects may be nil, in which case deleting a person
// leaves its stored assets in place.
func New(store storage.Store, objects storage.ObjectStore) *Registry {
	return &Registry{store: store, objects: objects}
}

// CreatePerson registers a new face identity named "Unknown".
func (r *Registry) CreatePerson(ctx context.Context, ownerID string, embedding []float32) (*models.Person, error) {
	if len(embedding) == 0 {
		return nil, ErrNoEmbedding
	}

	for attempt := 0; attempt < maxCollectionAttempts; attempt++ {
		id := uuid.New()
		collectionID := "person_" + strings.ReplaceAll(id.String(), "-", "")[:8]
		exists, err := r.store.CollectionExists(ctx, ownerID, collectionID)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		p := &models.Person{
			ID:           id,
			OwnerID:      ownerID,
			Name:         models.DefaultPersonName,
			CollectionID: collectionID,
			Embedding:    append([]float32(nil), embedding...),
		}
		if err := r.store.CreatePerson(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("create person: no free collection id after %d attempts", maxCollectionAttempts)
}

// CreateFolder registers a manual folder: a person without an embedding that
// the matcher never selects.
func (r *Registry) CreateFolder(ctx context.Context, ownerID, displayName string) (*models.Person, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrInvalidName
	}

	slug := Slugify(displayName)
	collectionID := slug
	for attempt := 0; ; attempt++ {
		exists, err := r.store.CollectionExists(ctx, ownerID, collectionID)
		if err != nil {
			return nil, err
		}
		if !exists {
			break
		}
		if attempt == maxCollectionAttempts {
			return nil, fmt.Errorf("create folder %q: no free collection id", displayName)
		}
		collectionID = slug + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	}

	p := &models.Person{
		OwnerID:      ownerID,
		Name:         displayName,
		CollectionID: collectionID,
	}
	if err := r.store.CreatePerson(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Rename changes the display name. The collection id never changes.
func (r *Registry) Rename(ctx context.Context, ownerID string, personID uuid.UUID, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ErrInvalidName
	}
	return r.store.RenamePerson(ctx, ownerID, personID, newName)
}

// List returns the owner's persons in creation order.
func (r *Registry) List(ctx context.Context, ownerID string) ([]models.Person, error) {
	return r.store.ListPersons(ctx, ownerID)
}

// Summaries lists the owner's persons with their photo counts.
func (r *Registry) Summaries(ctx context.Context, ownerID string) ([]models.PersonSummary, error) {
	return r.store.ListPersonSummaries(ctx, ownerID)
}

// Get returns one of the owner's persons or storage.ErrNotFound.
func (r *Registry) Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.Person, error) {
	return r.store.GetPerson(ctx, ownerID, id)
}

// GetByName returns the earliest person whose name equals name under Unicode
// case folding, or nil when there is none.
func (r *Registry) GetByName(ctx context.Context, ownerID, name string) (*models.Person, error) {
	want := FoldName(name)
	if want == "" {
		return nil, nil
	}
	persons, err := r.store.ListPersons(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range persons {
		if FoldName(persons[i].Name) == want {
			return &persons[i], nil
		}
	}
	return nil, nil
}

// Count reports how many persons the owner has.
func (r *Registry) Count(ctx context.Context, ownerID string) (int, error) {
	return r.store.CountPersons(ctx, ownerID)
}

// Delete removes a person, its links, the photos that were only linked to it,
// and the stored objects of its collection and of those photos.
func (r *Registry) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	person, err := r.store.GetPerson(ctx, ownerID, id)
	if err != nil {
		return err
	}
	orphans, err := r.store.DeletePerson(ctx, ownerID, id)
	if err != nil {
		return err
	}
	slog.Info("deleted person", "owner", ownerID, "person_id", id,
		"collection", person.CollectionID, "orphaned_photos", len(orphans))

	if r.objects == nil {
		return nil
	}
	keys, err := r.objects.ListObjects(ctx, collection.Prefix(ownerID, person.CollectionID))
	if err != nil {
		slog.Warn("list collection objects", "collection", person.CollectionID, "error", err)
	}
	for _, ph := range orphans {
		keys = append(keys, ph.AssetKey)
	}
	if err := r.objects.DeleteObjects(ctx, keys); err != nil {
		slog.Warn("delete collection objects", "collection", person.CollectionID, "error", err)
	}
	return nil
}
