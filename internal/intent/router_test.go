package intent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/your-org/facesort/internal/delivery"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/registry"
	"github.com/your-org/facesort/internal/storage"
)

type fakeDeliverer struct {
	calls []delivery.Delivery
	err   error
}

func (f *fakeDeliverer) Send(_ context.Context, d delivery.Delivery) (delivery.Result, error) {
	f.calls = append(f.calls, d)
	if f.err != nil {
		return delivery.Result{Attached: len(d.Photos)}, f.err
	}
	return delivery.Result{Attached: len(d.Photos), Message: "queued"}, nil
}

type harness struct {
	store     *storage.MemoryStore
	registry  *registry.Registry
	deliverer *fakeDeliverer
	router    *Router
}

func newHarness() *harness {
	store := storage.NewMemoryStore()
	reg := registry.New(store, nil)
	d := &fakeDeliverer{}
	return &harness{store: store, registry: reg, deliverer: d, router: NewRouter(reg, store, d)}
}

func (h *harness) person(t *testing.T, owner, name string, photos int) *models.Person {
	t.Helper()
	ctx := context.Background()
	p, err := h.registry.CreatePerson(ctx, owner, []float32{1, 0})
	if err != nil {
		t.Fatalf("CreatePerson() error = %v", err)
	}
	if name != p.Name {
		if err := h.registry.Rename(ctx, owner, p.ID, name); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}
		p.Name = name
	}
	for i := range photos {
		ph := &models.Photo{
			OwnerID:     owner,
			Filename:    fmt.Sprintf("%s_%d.jpg", name, i),
			AssetKey:    fmt.Sprintf("originals/%s/%s_%d.jpg", owner, name, i),
			ContentType: "image/jpeg",
		}
		if err := h.store.CreatePhoto(ctx, ph); err != nil {
			t.Fatalf("CreatePhoto() error = %v", err)
		}
		if _, err := h.store.AddLink(ctx, ph.ID, p.ID); err != nil {
			t.Fatalf("AddLink() error = %v", err)
		}
	}
	return p
}

func TestDispatchListPhotos(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	dad := h.person(t, "alice", "Dad", 3)

	resp, err := h.router.Dispatch(ctx, "alice", ListPhotos{PersonName: "dad"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Status != StatusOK || resp.Action != ActionListPhotos {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Person.ID != dad.ID {
		t.Errorf("Person = %v, want %v", resp.Person.ID, dad.ID)
	}
	if len(resp.Photos) != 3 {
		t.Fatalf("len(Photos) = %d, want 3", len(resp.Photos))
	}
	for i, ph := range resp.Photos {
		if want := fmt.Sprintf("Dad_%d.jpg", i); ph.Filename != want {
			t.Errorf("Photos[%d] = %s, want %s", i, ph.Filename, want)
		}
	}
}

func TestDispatchOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	bobsDad := h.person(t, "bob", "Dad", 2)

	resp, err := h.router.Dispatch(ctx, "alice", ListPhotos{PersonName: "Dad"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Status != StatusNotFound {
		t.Errorf("Status = %s, want not_found", resp.Status)
	}

	resp, err = h.router.Dispatch(ctx, "alice", RenamePerson{OldName: "Dad", NewName: "Stolen"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Status != StatusNotFound {
		t.Errorf("Status = %s, want not_found", resp.Status)
	}
	got, err := h.store.GetPerson(ctx, "bob", bobsDad.ID)
	if err != nil {
		t.Fatalf("GetPerson() error = %v", err)
	}
	if got.Name != "Dad" {
		t.Errorf("bob's person renamed to %q", got.Name)
	}
}

func TestDispatchRenameUnknownNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.person(t, "alice", "Mom", 1)

	resp, err := h.router.Dispatch(ctx, "alice", RenamePerson{OldName: "Unknown", NewName: "Grandma"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Status != StatusNotFound {
		t.Errorf("Status = %s, want not_found", resp.Status)
	}

	persons, _ := h.registry.List(ctx, "alice")
	if len(persons) != 1 || persons[0].Name != "Mom" {
		t.Errorf("persons mutated: %+v", persons)
	}
}

func TestDispatchRename(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	p := h.person(t, "alice", models.DefaultPersonName, 1)

	resp, err := h.router.Dispatch(ctx, "alice", RenamePerson{OldName: "unknown", NewName: "Grandma"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Status != StatusOK || resp.Person.Name != "Grandma" {
		t.Fatalf("response = %+v", resp)
	}
	got, _ := h.store.GetPerson(ctx, "alice", p.ID)
	if got.Name != "Grandma" {
		t.Errorf("Name = %q, want Grandma", got.Name)
	}

	resp, err = h.router.Dispatch(ctx, "alice", RenamePerson{OldName: "Grandma", NewName: "  "})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Status != StatusInvalid {
		t.Errorf("Status = %s, want invalid", resp.Status)
	}
}

func TestDispatchSendZeroPhotos(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	dad := h.person(t, "alice", "Dad", 0)

	resp, err := h.router.Dispatch(ctx, "alice", SendPhotos{PersonName: "Dad", Recipient: "x@y.com"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Status != StatusOK {
		t.Fatalf("Status = %s, want ok", resp.Status)
	}
	if len(h.deliverer.calls) != 1 {
		t.Fatalf("deliveries attempted = %d, want 1", len(h.deliverer.calls))
	}
	if call := h.deliverer.calls[0]; call.Recipient != "x@y.com" || call.PersonName != "Dad" || len(call.Photos) != 0 {
		t.Errorf("delivery = %+v", call)
	}

	records, err := h.store.ListDeliveries(ctx, "alice")
	if err != nil {
		t.Fatalf("ListDeliveries() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.PhotoCount != 0 || rec.Status != models.DeliverySent || rec.PersonID == nil || *rec.PersonID != dad.ID {
		t.Errorf("record = %+v", rec)
	}
}

func TestDispatchSendPhotos(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.person(t, "alice", "Dad", 2)

	resp, err := h.router.Dispatch(ctx, "alice", SendPhotos{PersonName: "Dad", Recipient: "x@y.com", Message: "enjoy"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Delivery == nil || resp.Delivery.PhotoCount != 2 {
		t.Fatalf("Delivery = %+v", resp.Delivery)
	}
	call := h.deliverer.calls[0]
	if call.Message != "enjoy" || len(call.Photos) != 2 || call.Photos[0].AssetKey != "originals/alice/Dad_0.jpg" {
		t.Errorf("delivery = %+v", call)
	}
}

func TestDispatchSendFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.person(t, "alice", "Dad", 1)
	h.deliverer.err = fmt.Errorf("%w: relay refused", delivery.ErrDelivery)

	resp, err := h.router.Dispatch(ctx, "alice", SendPhotos{PersonName: "Dad", Recipient: "x@y.com"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", resp.Status)
	}

	records, _ := h.store.ListDeliveries(ctx, "alice")
	if len(records) != 1 || records[0].Status != models.DeliveryFailed {
		t.Fatalf("records = %+v", records)
	}
	if records[0].Message == "" {
		t.Error("failed record should carry the error message")
	}

	h.deliverer.err = fmt.Errorf("%w: nope", delivery.ErrInvalidRecipient)
	resp, _ = h.router.Dispatch(ctx, "alice", SendPhotos{PersonName: "Dad", Recipient: "nope"})
	if resp.Status != StatusInvalid {
		t.Errorf("Status = %s, want invalid", resp.Status)
	}
}

func TestDispatchSendUnknownPersonNoAttempt(t *testing.T) {
	ctx := context.Background()
	h := newHarness()

	resp, err := h.router.Dispatch(ctx, "alice", SendPhotos{PersonName: "Dad", Recipient: "x@y.com"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Status != StatusNotFound || len(h.deliverer.calls) != 0 {
		t.Errorf("Status = %s, attempts = %d", resp.Status, len(h.deliverer.calls))
	}
	if n, _ := h.store.CountDeliveries(ctx, "alice"); n != 0 {
		t.Errorf("CountDeliveries() = %d, want 0", n)
	}
}

func TestDispatchCountAndList(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.person(t, "alice", "Dad", 2)
	h.person(t, "alice", "Mom", 1)
	h.person(t, "bob", "Dad", 1)

	resp, err := h.router.Dispatch(ctx, "alice", CountPersons{})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Count == nil || *resp.Count != 2 {
		t.Errorf("Count = %v, want 2", resp.Count)
	}

	resp, err = h.router.Dispatch(ctx, "alice", ListPersons{})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(resp.Persons) != 2 || resp.Persons[0].Name != "Dad" || resp.Persons[0].PhotoCount != 2 {
		t.Errorf("Persons = %+v", resp.Persons)
	}
}

func TestDispatchUnknown(t *testing.T) {
	h := newHarness()
	h.person(t, "alice", "Dad", 1)

	resp, err := h.router.Dispatch(context.Background(), "alice", Unknown{Reply: "I can only help with photos."})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.Status != StatusUnsupported || resp.Action != ActionUnknown || resp.Message != "I can only help with photos." {
		t.Errorf("response = %+v", resp)
	}
	if len(h.deliverer.calls) != 0 {
		t.Error("unknown intent must not deliver")
	}
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	grandma := h.person(t, "alice", "Grandma Jiřina", 0)
	dad := h.person(t, "alice", "Dad", 0)
	h.person(t, "alice", "dad", 0)

	tests := []struct {
		name string
		want *models.Person
	}{
		{"DAD", dad},
		{"grandma", grandma},
		{"Grandma Jirina", grandma},
		{"Grandma Jirna", grandma},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.router.resolve(ctx, "alice", tt.name)
			if err != nil {
				t.Fatalf("resolve() error = %v", err)
			}
			if got.ID != tt.want.ID {
				t.Errorf("resolve(%q) = %s, want %s", tt.name, got.Name, tt.want.Name)
			}
		})
	}

	for _, name := range []string{"", "Zebediah"} {
		if _, err := h.router.resolve(ctx, "alice", name); !errors.Is(err, registry.ErrNotFound) {
			t.Errorf("resolve(%q) error = %v, want ErrNotFound", name, err)
		}
	}
}
