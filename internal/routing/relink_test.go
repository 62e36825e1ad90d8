package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/collection"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/storage"
)

func (h *harness) hasObject(t *testing.T, owner string, photoID uuid.UUID, personID uuid.UUID) bool {
	t.Helper()
	ctx := context.Background()
	photo, err := h.store.GetPhoto(ctx, owner, photoID)
	if err != nil {
		t.Fatalf("GetPhoto() error = %v", err)
	}
	person, err := h.store.GetPerson(ctx, owner, personID)
	if err != nil {
		t.Fatalf("GetPerson() error = %v", err)
	}
	_, err = h.objects.GetObject(ctx, collection.Key(owner, person.CollectionID, collection.ObjectName(photo)))
	return err == nil
}

func TestRelinkMoveAndCopy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOpts{})
	h.extractor.embeddings = [][]float32{unit(0)}
	res := h.route(t, "alice")
	source := res.PersonIDs[0]

	folder, err := h.registry.CreateFolder(ctx, "alice", "Holidays")
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}

	m, err := h.engine.Relink(ctx, "alice", res.PhotoID, source, folder.ID, true)
	if err != nil {
		t.Fatalf("Relink(copy) error = %v", err)
	}
	if m.Status != models.LinkMaterialized || m.CollectionID != folder.CollectionID {
		t.Errorf("materialization = %+v", m)
	}
	if got := len(h.links(t, "alice", res.PhotoID)); got != 2 {
		t.Fatalf("links after copy = %d, want 2", got)
	}
	if !h.hasObject(t, "alice", res.PhotoID, source) || !h.hasObject(t, "alice", res.PhotoID, folder.ID) {
		t.Error("copy should leave the photo in both collections")
	}

	other, err := h.registry.CreateFolder(ctx, "alice", "Archive")
	if err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	if _, err := h.engine.Relink(ctx, "alice", res.PhotoID, source, other.ID, false); err != nil {
		t.Fatalf("Relink(move) error = %v", err)
	}
	links := h.links(t, "alice", res.PhotoID)
	if len(links) != 2 {
		t.Fatalf("links after move = %d, want 2", len(links))
	}
	for _, l := range links {
		if l.PersonID == source {
			t.Error("move should unlink the source person")
		}
	}
	if h.hasObject(t, "alice", res.PhotoID, source) {
		t.Error("move should remove the photo from the source collection")
	}
	if !h.hasObject(t, "alice", res.PhotoID, other.ID) {
		t.Error("move should place the photo in the target collection")
	}
}

func TestRelinkValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOpts{})
	h.extractor.embeddings = [][]float32{unit(0)}
	res := h.route(t, "alice")
	source := res.PersonIDs[0]
	folder, _ := h.registry.CreateFolder(ctx, "alice", "Holidays")
	bobs, _ := h.registry.CreateFolder(ctx, "bob", "Holidays")

	if _, err := h.engine.Relink(ctx, "alice", res.PhotoID, source, source, false); !errors.Is(err, ErrSamePerson) {
		t.Errorf("same person error = %v, want ErrSamePerson", err)
	}
	if _, err := h.engine.Relink(ctx, "alice", res.PhotoID, source, bobs.ID, false); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("foreign target error = %v, want ErrNotFound", err)
	}
	if _, err := h.engine.Relink(ctx, "alice", res.PhotoID, folder.ID, source, false); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unlinked source error = %v, want ErrNotFound", err)
	}
	if _, err := h.engine.Relink(ctx, "bob", res.PhotoID, source, bobs.ID, false); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("foreign photo error = %v, want ErrNotFound", err)
	}
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, harnessOpts{})
	h.extractor.embeddings = [][]float32{unit(0), unit(2)}
	res := h.route(t, "alice")
	if len(res.PersonIDs) != 2 {
		t.Fatalf("PersonIDs = %v, want 2", res.PersonIDs)
	}
	photo, _ := h.store.GetPhoto(ctx, "alice", res.PhotoID)

	deleted, err := h.engine.Unlink(ctx, "alice", res.PhotoID, res.PersonIDs[0])
	if err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if deleted {
		t.Error("photo still linked to one person should survive")
	}
	if h.hasObject(t, "alice", res.PhotoID, res.PersonIDs[0]) {
		t.Error("collection object should be removed")
	}

	deleted, err = h.engine.Unlink(ctx, "alice", res.PhotoID, res.PersonIDs[1])
	if err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if !deleted {
		t.Error("photo without links should be deleted")
	}
	if _, err := h.store.GetPhoto(ctx, "alice", res.PhotoID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetPhoto() error = %v, want ErrNotFound", err)
	}
	if _, err := h.objects.GetObject(ctx, photo.AssetKey); err == nil {
		t.Error("original should be deleted with the photo")
	}

	if _, err := h.engine.Unlink(ctx, "bob", res.PhotoID, res.PersonIDs[1]); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Unlink(other owner) error = %v, want ErrNotFound", err)
	}
}
