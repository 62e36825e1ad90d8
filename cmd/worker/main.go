package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facesort/internal/app"
	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/queue"
	"github.com/your-org/facesort/internal/routing"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facesort routing worker",
		"workers", cfg.Worker.Concurrency,
		"cpu_cores", runtime.NumCPU(),
	)

	if cfg.NATS.URL == "" {
		slog.Error("nats url is required for the worker")
		os.Exit(1)
	}
	if cfg.Database.Driver == "memory" {
		slog.Warn("worker is using the in-memory store; results are not visible to the API")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("init services", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	// Start consuming photo tasks
	err = consumer.ConsumePhotos(ctx, "routing-workers", func(ctx context.Context, task models.PhotoTask) error {
		res, err := services.Engine.RoutePhoto(ctx, task.OwnerID, routing.Asset{
			Filename:    task.Filename,
			ContentType: task.ContentType,
			AssetKey:    task.AssetKey,
		})
		if err != nil {
			return fmt.Errorf("route photo %s: %w", task.TaskID, err)
		}

		if err := producer.PublishEvent(ctx, res.Event(task.OwnerID, task.Filename)); err != nil {
			slog.Warn("publish routed event", "task_id", task.TaskID, "error", err)
		}
		slog.Debug("photo task done", "task_id", task.TaskID, "latency", time.Since(task.EnqueuedAt).String())
		return nil
	}, cfg.Worker.Concurrency)
	if err != nil {
		slog.Error("start photo consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	metricsAddr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
