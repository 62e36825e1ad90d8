package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facesort/internal/models"
)

// fakeMsg records the acknowledgement calls made on a fetched message.
type fakeMsg struct {
	jetstream.Msg
	data []byte

	mu         sync.Mutex
	inProgress int
	acked      bool
	naked      bool
	termed     bool
}

func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Subject() string { return "photos.alice" }

func (m *fakeMsg) InProgress() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inProgress++
	return nil
}

func (m *fakeMsg) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = true
	return nil
}

func (m *fakeMsg) NakWithDelay(time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.naked = true
	return nil
}

func (m *fakeMsg) Term() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.termed = true
	return nil
}

func (m *fakeMsg) progressCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inProgress
}

func taskMsg(t *testing.T) *fakeMsg {
	t.Helper()
	data, err := json.Marshal(models.PhotoTask{
		TaskID:   uuid.New(),
		OwnerID:  "alice",
		Filename: "a.jpg",
		AssetKey: "originals/alice/x_a.jpg",
	})
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	return &fakeMsg{data: data}
}

func TestProcessPhotoExtendsDeadlineWhileRouting(t *testing.T) {
	msg := taskMsg(t)
	handler := func(ctx context.Context, task models.PhotoTask) error {
		time.Sleep(80 * time.Millisecond)
		return nil
	}

	processPhoto(context.Background(), 0, msg, handler, 10*time.Millisecond)

	got := msg.progressCount()
	if got < 2 {
		t.Errorf("InProgress called %d times, want at least 2", got)
	}
	if !msg.acked || msg.naked || msg.termed {
		t.Errorf("acked=%v naked=%v termed=%v, want ack only", msg.acked, msg.naked, msg.termed)
	}

	time.Sleep(40 * time.Millisecond)
	if after := msg.progressCount(); after != got {
		t.Errorf("InProgress called after completion: %d -> %d", got, after)
	}
}

func TestProcessPhotoHandlerErrorNaks(t *testing.T) {
	msg := taskMsg(t)
	handler := func(ctx context.Context, task models.PhotoTask) error {
		return errors.New("store down")
	}

	processPhoto(context.Background(), 0, msg, handler, time.Minute)

	if !msg.naked || msg.acked {
		t.Errorf("acked=%v naked=%v, want nak", msg.acked, msg.naked)
	}
}

func TestProcessPhotoTerminatesUndecodable(t *testing.T) {
	msg := &fakeMsg{data: []byte(`{"owner_id":"alice"}`)}
	called := false
	handler := func(ctx context.Context, task models.PhotoTask) error {
		called = true
		return nil
	}

	processPhoto(context.Background(), 0, msg, handler, time.Minute)

	if called {
		t.Error("handler called for a task without asset_key")
	}
	if !msg.termed || msg.acked || msg.naked {
		t.Errorf("acked=%v naked=%v termed=%v, want term", msg.acked, msg.naked, msg.termed)
	}
}
