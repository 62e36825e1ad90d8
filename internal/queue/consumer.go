package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facesort/internal/models"
)

type (
	PhotoHandler func(ctx context.Context, task models.PhotoTask) error
	EventHandler func(ctx context.Context, event models.RoutedEvent) error
)

const (
	photoMaxDeliver = 3
	photoAckWait    = 2 * time.Minute
	photoHeartbeat  = photoAckWait / 4
)

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// DecodePhotoTask parses and validates a PHOTOS message body.
func DecodePhotoTask(data []byte) (models.PhotoTask, error) {
	var task models.PhotoTask
	if err := json.Unmarshal(data, &task); err != nil {
		return task, fmt.Errorf("decode photo task: %w", err)
	}
	if task.OwnerID == "" || task.AssetKey == "" {
		return task, fmt.Errorf("decode photo task: owner_id and asset_key are required")
	}
	return task, nil
}

// ConsumePhotos starts consuming photo tasks from the PHOTOS stream.
// workerCount determines how many goroutines process messages concurrently.
// Each worker fetches a task only when it is idle, and reports the task as in
// progress while routing runs, so tasks queued behind the owner lock are not
// redelivered. Messages that cannot be decoded are terminated rather than
// redelivered.
func (c *Consumer) ConsumePhotos(ctx context.Context, consumerName string, handler PhotoHandler, workerCount int) error {
	stream, err := c.js.Stream(ctx, PhotosStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", PhotosStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       photoAckWait,
		MaxDeliver:    photoMaxDeliver,
		FilterSubject: PhotosSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				batch, err := cons.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					slog.Warn("fetch photos error", "worker", workerID, "error", err)
					time.Sleep(time.Second)
					continue
				}

				for msg := range batch.Messages() {
					processPhoto(ctx, workerID, msg, handler, photoHeartbeat)
				}
			}
		}(i)
	}

	slog.Info("photo consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

func processPhoto(ctx context.Context, workerID int, msg jetstream.Msg, handler PhotoHandler, heartbeat time.Duration) {
	task, err := DecodePhotoTask(msg.Data())
	if err != nil {
		slog.Error("drop photo task", "worker", workerID, "error", err, "subject", msg.Subject())
		_ = msg.Term()
		return
	}

	stop := keepInProgress(msg, heartbeat)
	err = handler(ctx, task)
	stop()

	if err != nil {
		slog.Error("route photo error", "worker", workerID, "error", err, "task_id", task.TaskID, "owner_id", task.OwnerID)
		_ = msg.NakWithDelay(5 * time.Second)
		return
	}
	_ = msg.Ack()
}

// keepInProgress resets the ack deadline of msg every interval until stop is
// called. stop returns once the heartbeat goroutine has exited.
func keepInProgress(msg jetstream.Msg, every time.Duration) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					slog.Warn("extend photo task deadline", "subject", msg.Subject(), "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// ConsumeEvents starts consuming routing events (for API to broadcast via WebSocket).
func (c *Consumer) ConsumeEvents(ctx context.Context, consumerName string, handler EventHandler) error {
	stream, err := c.js.Stream(ctx, EventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", EventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: EventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				var event models.RoutedEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					slog.Error("decode event error", "error", err)
					_ = msg.Term()
					continue
				}
				if err := handler(ctx, event); err != nil {
					slog.Error("process event error", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("event consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
