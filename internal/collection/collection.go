// Package collection places photo originals into per-person collections in the object store.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/storage"
)

var ErrStorage = errors.New("collection storage failure")

// StorageError reports a collection write that failed after all retries.
type StorageError struct {
	Op           string
	CollectionID string
	Key          string
	Attempts     int
	Err          error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s in %s after %d attempt(s): %v", e.Op, e.Key, e.CollectionID, e.Attempts, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Prefix is the object-store prefix holding one collection.
func Prefix(ownerID, collectionID string) string {
	return fmt.Sprintf("collections/%s/%s/", ownerID, collectionID)
}

// Key is the object key of one photo inside a collection.
func Key(ownerID, collectionID, name string) string {
	return Prefix(ownerID, collectionID) + name
}

// ObjectName is the name a photo gets inside every collection it is placed in.
// It reuses the unique base name of the original so two uploads with the same
// filename never collide.
func ObjectName(p *models.Photo) string {
	return path.Base(p.AssetKey)
}

type Materializer struct {
	objects     storage.ObjectStore
	maxAttempts int
	backoff     time.Duration
}

func NewMaterializer(objects storage.ObjectStore, cfg config.CollectionConfig) *Materializer {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Materializer{objects: objects, maxAttempts: attempts, backoff: cfg.RetryBackoff}
}

// Place copies the original at assetKey into the collection. Transient failures
// are retried with linear backoff; the final failure is a *StorageError.
func (m *Materializer) Place(ctx context.Context, assetKey, ownerID, collectionID, name string) error {
	dst := Key(ownerID, collectionID, name)
	return m.retry(ctx, "place", collectionID, dst, func() error {
		return m.objects.CopyObject(ctx, assetKey, dst)
	})
}

// Remove deletes one photo from a collection.
func (m *Materializer) Remove(ctx context.Context, ownerID, collectionID, name string) error {
	key := Key(ownerID, collectionID, name)
	return m.retry(ctx, "remove", collectionID, key, func() error {
		return m.objects.DeleteObjects(ctx, []string{key})
	})
}

func (m *Materializer) retry(ctx context.Context, op, collectionID, key string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == m.maxAttempts {
			break
		}
		slog.Warn("collection write failed (retrying...)", "op", op, "key", key, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return &StorageError{Op: op, CollectionID: collectionID, Key: key, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(time.Duration(attempt) * m.backoff):
		}
	}
	return &StorageError{Op: op, CollectionID: collectionID, Key: key, Attempts: m.maxAttempts, Err: err}
}
