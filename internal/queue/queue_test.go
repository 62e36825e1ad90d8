package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/models"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		base, owner, want string
	}{
		{PhotosSubjectBase, "alice", "photos.alice"},
		{EventsSubjectBase, "alice@example.com", "events.alice@example_com"},
		{PhotosSubjectBase, "a.*>b c", "photos.a___b_c"},
		{PhotosSubjectBase, "", "photos._"},
	}
	for _, tt := range tests {
		if got := Subject(tt.base, tt.owner); got != tt.want {
			t.Errorf("Subject(%q, %q) = %q, want %q", tt.base, tt.owner, got, tt.want)
		}
	}
}

func TestConsumerName(t *testing.T) {
	if got := ConsumerName("api-events", "host.local"); got != "api-events-host_local" {
		t.Errorf("ConsumerName() = %q", got)
	}
}

func TestDecodePhotoTask(t *testing.T) {
	task := models.PhotoTask{
		TaskID:      uuid.New(),
		OwnerID:     "alice",
		Filename:    "beach.jpg",
		ContentType: "image/jpeg",
		AssetKey:    "originals/alice/x_beach.jpg",
		EnqueuedAt:  time.Now().UTC().Truncate(time.Second),
	}
	data, _ := json.Marshal(task)

	got, err := DecodePhotoTask(data)
	if err != nil {
		t.Fatalf("DecodePhotoTask() error = %v", err)
	}
	if got.TaskID != task.TaskID || got.OwnerID != task.OwnerID || got.AssetKey != task.AssetKey || !got.EnqueuedAt.Equal(task.EnqueuedAt) {
		t.Errorf("DecodePhotoTask() = %+v, want %+v", got, task)
	}

	for _, body := range []string{`not json`, `{"owner_id":"alice"}`, `{"asset_key":"k"}`} {
		if _, err := DecodePhotoTask([]byte(body)); err == nil {
			t.Errorf("DecodePhotoTask(%s) expected error", body)
		}
	}
}

func TestStreamConfigs(t *testing.T) {
	cfgs := streamConfigs()
	if len(cfgs) != 2 {
		t.Fatalf("len(streamConfigs()) = %d, want 2", len(cfgs))
	}
	if cfgs[0].Name != PhotosStreamName || cfgs[0].Subjects[0] != "photos.>" {
		t.Errorf("photos stream = %+v", cfgs[0])
	}
	if cfgs[0].Duplicates == 0 {
		t.Error("photos stream must keep a duplicate window for message ids")
	}
	if cfgs[1].Name != EventsStreamName || cfgs[1].Subjects[0] != "events.>" {
		t.Errorf("events stream = %+v", cfgs[1])
	}
}
