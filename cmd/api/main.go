package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/your-org/facesort/internal/api"
	"github.com/your-org/facesort/internal/api/ws"
	"github.com/your-org/facesort/internal/app"
	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/delivery"
	"github.com/your-org/facesort/internal/intent"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/queue"
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

	slog.Info("starting facesort API service", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := app.Open(ctx, cfg)
	if err != nil {
		slog.Error("init services", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// NATS is optional for the API: without it uploads are routed inline only.
	var producer *queue.Producer
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}

		// Broadcast routing results from workers via WebSocket
		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		hostname, _ := os.Hostname()
		err = consumer.ConsumeEvents(ctx, queue.ConsumerName("api-events", hostname), func(_ context.Context, event models.RoutedEvent) error {
			hub.BroadcastRouted(event)
			return nil
		})
		if err != nil {
			slog.Warn("start event consumer", "error", err)
		}
	} else {
		slog.Warn("nats url not set, async uploads disabled")
	}

	mailer := delivery.NewMailer(cfg.SMTP, services.Objects)
	intents := intent.NewRouter(services.Registry, services.Store, mailer)

	routerCfg := api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		MatchThreshold: cfg.Routing.MatchThreshold,
		Store:          services.Store,
		Objects:        services.Objects,
		Registry:       services.Registry,
		Engine:         services.Engine,
		Extractor:      services.Extractor,
		Intents:        intents,
		Producer:       producer,
		Hub:            hub,
	}
	if cfg.LLM.APIKey != "" {
		routerCfg.Chat = intent.NewLLMExtractor(cfg.LLM, services.Registry)
	} else {
		slog.Warn("llm api key not set, chat disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
