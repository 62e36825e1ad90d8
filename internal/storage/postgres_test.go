//go:build integration

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/your-org/facesort/internal/models"
)

func setupTestContainer(t *testing.T) (*PostgresStore, string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, "", func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())
	store, err := NewPostgresStoreFromURL(dbURL, 5)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to connect: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return store, dbURL, func() {
		store.Close()
		_ = container.Terminate(ctx)
	}
}

func TestPostgresStore(t *testing.T) {
	store, dbURL, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	t.Run("MigrateIsIdempotent", func(t *testing.T) {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("second Migrate() error = %v", err)
		}
	})

	t.Run("PersonRoundTrip", func(t *testing.T) {
		p := newPerson(t, store, "alice", "person_rt", []float32{0.6, 0.8})
		got, err := store.GetPerson(ctx, "alice", p.ID)
		if err != nil {
			t.Fatalf("GetPerson() error = %v", err)
		}
		if len(got.Embedding) != 2 || got.Seq != p.Seq {
			t.Errorf("GetPerson() = %+v", got)
		}
		if _, err := store.GetPerson(ctx, "bob", p.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("cross-owner GetPerson() error = %v", err)
		}

		folder := newPerson(t, store, "alice", "holidays", nil)
		got, _ = store.GetPerson(ctx, "alice", folder.ID)
		if !got.IsFolder() {
			t.Error("folder should have no embedding")
		}
	})

	t.Run("LinksAndOrphans", func(t *testing.T) {
		a := newPerson(t, store, "carol", "a", []float32{1, 0})
		b := newPerson(t, store, "carol", "b", []float32{0, 1})
		solo := newPhoto(t, store, "carol", "solo.jpg")
		shared := newPhoto(t, store, "carol", "shared.jpg")
		if created, err := store.AddLink(ctx, solo.ID, a.ID); err != nil || !created {
			t.Fatalf("AddLink() = %v, %v", created, err)
		}
		if created, _ := store.AddLink(ctx, solo.ID, a.ID); created {
			t.Error("duplicate AddLink() should not create")
		}
		store.AddLink(ctx, shared.ID, a.ID)
		store.AddLink(ctx, shared.ID, b.ID)

		orphans, err := store.DeletePerson(ctx, "carol", a.ID)
		if err != nil {
			t.Fatalf("DeletePerson() error = %v", err)
		}
		if len(orphans) != 1 || orphans[0].ID != solo.ID {
			t.Errorf("orphans = %+v", orphans)
		}
		links, _ := store.ListLinks(ctx, "carol", shared.ID)
		if len(links) != 1 || links[0].PersonID != b.ID {
			t.Errorf("ListLinks() = %+v", links)
		}
	})

	t.Run("SearchPersons", func(t *testing.T) {
		near := newPerson(t, store, "dave", "near", []float32{1, 0.05, 0})
		newPerson(t, store, "dave", "far", []float32{0, 0, 1})
		matches, err := store.SearchPersons(ctx, "dave", []float32{1, 0, 0}, 0.7, 5)
		if err != nil {
			t.Fatalf("SearchPersons() error = %v", err)
		}
		if len(matches) != 1 || matches[0].PersonID != near.ID {
			t.Errorf("SearchPersons() = %+v", matches)
		}
	})

	t.Run("DeliveriesNewestFirst", func(t *testing.T) {
		p := newPerson(t, store, "erin", "e", nil)
		pid := p.ID
		for _, status := range []models.DeliveryStatus{models.DeliverySent, models.DeliveryFailed} {
			if err := store.CreateDelivery(ctx, &models.DeliveryRecord{
				OwnerID: "erin", PersonID: &pid, Recipient: "r@example.com", Status: status,
			}); err != nil {
				t.Fatalf("CreateDelivery() error = %v", err)
			}
			time.Sleep(5 * time.Millisecond)
		}
		out, _ := store.ListDeliveries(ctx, "erin")
		if len(out) != 2 || out[0].Status != models.DeliveryFailed || out[0].PersonName != models.DefaultPersonName {
			t.Errorf("ListDeliveries() = %+v", out)
		}
	})

	t.Run("AdvisoryLockSerializes", func(t *testing.T) {
		locker := store.Locker()
		var (
			mu      sync.Mutex
			active  int
			overlap bool
			wg      sync.WaitGroup
		)
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(ctx, "owner-x")
				if err != nil {
					t.Errorf("Lock() error = %v", err)
					return
				}
				mu.Lock()
				active++
				if active > 1 {
					overlap = true
				}
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()
		if overlap {
			t.Error("advisory lock allowed concurrent holders")
		}
	})

	t.Run("AdvisoryLockWaitersDoNotStarvePool", func(t *testing.T) {
		small, err := NewPostgresStoreFromURL(dbURL, 2)
		if err != nil {
			t.Fatalf("NewPostgresStoreFromURL() error = %v", err)
		}
		defer small.Close()
		locker := small.Locker()

		lockCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		var wg sync.WaitGroup
		errs := make(chan error, 3)
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(lockCtx, "owner-pool")
				if err != nil {
					errs <- fmt.Errorf("lock: %w", err)
					return
				}
				defer unlock()
				if _, err := small.CountPersons(lockCtx, "owner-pool"); err != nil {
					errs <- fmt.Errorf("query under lock: %w", err)
				}
				time.Sleep(20 * time.Millisecond)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}
	})
}
