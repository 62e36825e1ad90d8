package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/your-org/facesort/internal/delivery"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/registry"
	"github.com/your-org/facesort/internal/storage"
)

type Status string

const (
	StatusOK          Status = "ok"
	StatusNotFound    Status = "not_found"
	StatusUnsupported Status = "unsupported"
	StatusInvalid     Status = "invalid"
	StatusFailed      Status = "failed"
)

// Response is the structured result of a dispatched intent. Status carries
// user-facing outcomes; infrastructure failures are returned as errors instead.
type Response struct {
	Action   Action                 `json:"action"`
	Status   Status                 `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Person   *models.Person         `json:"person,omitempty"`
	Photos   []models.PersonPhoto   `json:"photos,omitempty"`
	Persons  []models.PersonSummary `json:"persons,omitempty"`
	Count    *int                   `json:"count,omitempty"`
	Delivery *models.DeliveryRecord `json:"delivery,omitempty"`
}

type Deliverer interface {
	Send(ctx context.Context, d delivery.Delivery) (delivery.Result, error)
}

type Router struct {
	registry  *registry.Registry
	store     storage.Store
	deliverer Deliverer
}

func NewRouter(reg *registry.Registry, store storage.Store, deliverer Deliverer) *Router {
	return &Router{registry: reg, store: store, deliverer: deliverer}
}

// Dispatch executes in against ownerID's persons only.
func (r *Router) Dispatch(ctx context.Context, ownerID string, in Intent) (*Response, error) {
	var (
		resp *Response
		err  error
	)
	switch v := in.(type) {
	case ListPhotos:
		resp, err = r.listPhotos(ctx, ownerID, v)
	case RenamePerson:
		resp, err = r.rename(ctx, ownerID, v)
	case SendPhotos:
		resp, err = r.send(ctx, ownerID, v)
	case CountPersons:
		resp, err = r.count(ctx, ownerID)
	case ListPersons:
		resp, err = r.listPersons(ctx, ownerID)
	case Unknown:
		resp = &Response{Status: StatusUnsupported, Message: v.Reply}
	case nil:
		resp = &Response{Status: StatusUnsupported}
	default:
		return nil, fmt.Errorf("unhandled intent %T", in)
	}
	if err != nil {
		observability.IntentsDispatched.WithLabelValues(string(actionOf(in)), "error").Inc()
		return nil, err
	}

	resp.Action = actionOf(in)
	observability.IntentsDispatched.WithLabelValues(string(resp.Action), string(resp.Status)).Inc()
	return resp, nil
}

func actionOf(in Intent) Action {
	if in == nil {
		return ActionUnknown
	}
	return in.Action()
}

// lookup resolves name and maps a miss onto a not_found response.
func (r *Router) lookup(ctx context.Context, ownerID, name string) (*models.Person, *Response, error) {
	p, err := r.resolve(ctx, ownerID, name)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, &Response{Status: StatusNotFound, Message: fmt.Sprintf("no person named %q", name)}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve person: %w", err)
	}
	return p, nil, nil
}

func (r *Router) listPhotos(ctx context.Context, ownerID string, in ListPhotos) (*Response, error) {
	person, miss, err := r.lookup(ctx, ownerID, in.PersonName)
	if person == nil {
		return miss, err
	}

	photos, err := r.store.ListPersonPhotos(ctx, ownerID, person.ID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return &Response{
		Status:  StatusOK,
		Message: fmt.Sprintf("%s: %d photo(s)", person.Name, len(photos)),
		Person:  person,
		Photos:  photos,
	}, nil
}

func (r *Router) rename(ctx context.Context, ownerID string, in RenamePerson) (*Response, error) {
	person, miss, err := r.lookup(ctx, ownerID, in.OldName)
	if person == nil {
		return miss, err
	}

	err = r.registry.Rename(ctx, ownerID, person.ID, in.NewName)
	switch {
	case errors.Is(err, registry.ErrInvalidName):
		return &Response{Status: StatusInvalid, Message: "new name must not be empty", Person: person}, nil
	case errors.Is(err, registry.ErrNotFound):
		return &Response{Status: StatusNotFound, Message: fmt.Sprintf("no person named %q", in.OldName)}, nil
	case err != nil:
		return nil, fmt.Errorf("rename person: %w", err)
	}

	slog.Info("person renamed via intent", "owner_id", ownerID, "person_id", person.ID, "from", person.Name, "to", in.NewName)
	old := person.Name
	renamed := *person
	renamed.Name = in.NewName
	return &Response{
		Status:  StatusOK,
		Message: fmt.Sprintf("renamed %q to %q", old, in.NewName),
		Person:  &renamed,
	}, nil
}

func (r *Router) send(ctx context.Context, ownerID string, in SendPhotos) (*Response, error) {
	person, miss, err := r.lookup(ctx, ownerID, in.PersonName)
	if person == nil {
		return miss, err
	}
	return r.SendPerson(ctx, ownerID, person, in.Recipient, in.Message)
}

// SendPerson hands the person's photos to the deliverer and records the
// attempt, failed or not. A person with no photos still gets a delivery with
// zero attachments.
func (r *Router) SendPerson(ctx context.Context, ownerID string, person *models.Person, recipient, message string) (*Response, error) {
	photos, err := r.store.ListPersonPhotos(ctx, ownerID, person.ID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	refs := make([]delivery.PhotoRef, 0, len(photos))
	for _, ph := range photos {
		refs = append(refs, delivery.PhotoRef{Filename: ph.Filename, AssetKey: ph.AssetKey, ContentType: ph.ContentType})
	}

	result, sendErr := r.deliverer.Send(ctx, delivery.Delivery{
		Recipient:  recipient,
		PersonName: person.Name,
		Message:    message,
		Photos:     refs,
	})

	record := &models.DeliveryRecord{
		OwnerID:    ownerID,
		PersonID:   &person.ID,
		PersonName: person.Name,
		Recipient:  recipient,
		PhotoCount: result.Attached,
		Status:     models.DeliverySent,
		Message:    result.Message,
	}
	resp := &Response{
		Action:  ActionSendPhotos,
		Status:  StatusOK,
		Message: fmt.Sprintf("sent %d photo(s) of %s to %s", result.Attached, person.Name, recipient),
		Person:  person,
	}
	if sendErr != nil {
		record.Status = models.DeliveryFailed
		record.Message = sendErr.Error()
		resp.Status = StatusFailed
		resp.Message = sendErr.Error()
		if errors.Is(sendErr, delivery.ErrInvalidRecipient) {
			resp.Status = StatusInvalid
		}
		slog.Warn("photo delivery failed", "owner_id", ownerID, "person_id", person.ID, "error", sendErr)
	}

	if err := r.store.CreateDelivery(ctx, record); err != nil {
		return nil, fmt.Errorf("record delivery: %w", err)
	}
	observability.Deliveries.WithLabelValues(string(record.Status)).Inc()
	resp.Delivery = record
	return resp, nil
}

func (r *Router) count(ctx context.Context, ownerID string) (*Response, error) {
	n, err := r.registry.Count(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count persons: %w", err)
	}
	return &Response{Status: StatusOK, Message: fmt.Sprintf("%d person(s)", n), Count: &n}, nil
}

func (r *Router) listPersons(ctx context.Context, ownerID string) (*Response, error) {
	persons, err := r.registry.Summaries(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	n := len(persons)
	return &Response{Status: StatusOK, Message: fmt.Sprintf("%d folder(s)", n), Persons: persons, Count: &n}, nil
}
