package collection

import (
	"context"
	"errors"
	"testing"

	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/storage"
)

// flakyObjects fails the first n copies.
type flakyObjects struct {
	*storage.MemoryObjectStore
	failures int
	calls    int
}

func (f *flakyObjects) CopyObject(ctx context.Context, src, dst string) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	return f.MemoryObjectStore.CopyObject(ctx, src, dst)
}

func TestPlaceCopiesIntoCollection(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMemoryObjectStore()
	objects.PutObject(ctx, "originals/o/abc_beach.jpg", []byte("img"), "image/jpeg")

	m := NewMaterializer(objects, config.CollectionConfig{MaxAttempts: 3})
	if err := m.Place(ctx, "originals/o/abc_beach.jpg", "o", "person_1234abcd", "abc_beach.jpg"); err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	data, err := objects.GetObject(ctx, "collections/o/person_1234abcd/abc_beach.jpg")
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if string(data) != "img" {
		t.Errorf("data = %q, want img", data)
	}
}

func TestPlaceRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	objects := &flakyObjects{MemoryObjectStore: storage.NewMemoryObjectStore(), failures: 2}
	objects.PutObject(ctx, "src", []byte("x"), "")

	m := NewMaterializer(objects, config.CollectionConfig{MaxAttempts: 3})
	if err := m.Place(ctx, "src", "o", "c", "x.jpg"); err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if objects.calls != 3 {
		t.Errorf("calls = %d, want 3", objects.calls)
	}
}

func TestPlaceReturnsStorageError(t *testing.T) {
	ctx := context.Background()
	objects := &flakyObjects{MemoryObjectStore: storage.NewMemoryObjectStore(), failures: 10}

	m := NewMaterializer(objects, config.CollectionConfig{MaxAttempts: 2})
	err := m.Place(ctx, "src", "o", "c", "x.jpg")

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("Place() error = %v, want *StorageError", err)
	}
	if !errors.Is(err, ErrStorage) {
		t.Error("error should match ErrStorage")
	}
	if se.Attempts != 2 || se.CollectionID != "c" {
		t.Errorf("StorageError = %+v", se)
	}
}

func TestObjectName(t *testing.T) {
	p := &models.Photo{AssetKey: "originals/o/0f3a_beach.jpg", Filename: "beach.jpg"}
	if got := ObjectName(p); got != "0f3a_beach.jpg" {
		t.Errorf("ObjectName() = %q", got)
	}
	if got := Key("o", "family", "a.jpg"); got != "collections/o/family/a.jpg" {
		t.Errorf("Key() = %q", got)
	}
}
