package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/collection"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/storage"
)

var ErrSamePerson = errors.New("source and target person are the same")

// Unlink takes a photo out of one person's collection. When no person links
// to the photo afterwards the photo and its original are deleted as well.
func (e *Engine) Unlink(ctx context.Context, ownerID string, photoID, personID uuid.UUID) (photoDeleted bool, err error) {
	unlock, err := e.locker.Lock(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("lock owner %s: %w", ownerID, err)
	}
	defer unlock()

	photo, err := e.store.GetPhoto(ctx, ownerID, photoID)
	if err != nil {
		return false, err
	}
	person, err := e.registry.Get(ctx, ownerID, personID)
	if err != nil {
		return false, err
	}

	photoDeleted, err = e.store.RemoveLink(ctx, ownerID, photoID, personID)
	if err != nil {
		return false, err
	}

	if err := e.materializer.Remove(ctx, ownerID, person.CollectionID, collection.ObjectName(photo)); err != nil {
		slog.Warn("remove photo from collection", "photo_id", photoID, "person_id", personID, "error", err)
	}
	if photoDeleted {
		if err := e.objects.DeleteObjects(ctx, []string{photo.AssetKey}); err != nil {
			slog.Warn("delete original", "photo_id", photoID, "key", photo.AssetKey, "error", err)
		}
	}

	slog.Info("photo unlinked", "owner", ownerID, "photo_id", photoID, "person_id", personID, "photo_deleted", photoDeleted)
	return photoDeleted, nil
}

// Relink adds photoID to the target person's collection. Unless keep is set
// the photo is then taken out of the source person's collection, which makes
// it a move instead of a copy. The photo must currently be linked to fromID.
func (e *Engine) Relink(ctx context.Context, ownerID string, photoID, fromID, toID uuid.UUID, keep bool) (models.Materialization, error) {
	if fromID == toID {
		return models.Materialization{}, ErrSamePerson
	}

	unlock, err := e.locker.Lock(ctx, ownerID)
	if err != nil {
		return models.Materialization{}, fmt.Errorf("lock owner %s: %w", ownerID, err)
	}
	defer unlock()

	photo, err := e.store.GetPhoto(ctx, ownerID, photoID)
	if err != nil {
		return models.Materialization{}, err
	}
	source, err := e.registry.Get(ctx, ownerID, fromID)
	if err != nil {
		return models.Materialization{}, err
	}
	target, err := e.registry.Get(ctx, ownerID, toID)
	if err != nil {
		return models.Materialization{}, err
	}

	links, err := e.store.ListLinks(ctx, ownerID, photoID)
	if err != nil {
		return models.Materialization{}, err
	}
	linked := false
	for _, l := range links {
		if l.PersonID == fromID {
			linked = true
			break
		}
	}
	if !linked {
		return models.Materialization{}, fmt.Errorf("photo %s is not in person %s: %w", photoID, fromID, storage.ErrNotFound)
	}

	if _, err := e.store.AddLink(ctx, photoID, toID); err != nil {
		return models.Materialization{}, fmt.Errorf("link target person: %w", err)
	}
	m := e.materialize(ctx, photo, target.ID, target.CollectionID)

	if !keep {
		if _, err := e.store.RemoveLink(ctx, ownerID, photoID, fromID); err != nil {
			return m, fmt.Errorf("unlink source person: %w", err)
		}
		if err := e.materializer.Remove(ctx, ownerID, source.CollectionID, collection.ObjectName(photo)); err != nil {
			slog.Warn("remove photo from collection", "photo_id", photoID, "person_id", fromID, "error", err)
		}
	}

	slog.Info("photo relinked", "owner", ownerID, "photo_id", photoID, "from", fromID, "to", toID, "copy", keep)
	return m, nil
}
