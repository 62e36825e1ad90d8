// Command importer bulk-loads a directory of photos for one owner, either by
// queueing them for the routing workers or by routing them in-process.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/facesort/internal/app"
	"github.com/your-org/facesort/internal/auth"
	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/queue"
	"github.com/your-org/facesort/internal/routing"
	"github.com/your-org/facesort/internal/storage"
)

type photoFile struct {
	path        string
	contentType string
}

// importFunc handles one file and reports how many persons it created.
type importFunc func(ctx context.Context, f photoFile, data []byte) (int, error)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	owner := flag.String("owner", "", "owner id to import photos for (required)")
	dir := flag.String("dir", "", "directory to import (required)")
	inline := flag.Bool("inline", false, "route photos in-process instead of queueing them")
	concurrency := flag.Int("concurrency", 4, "number of files processed in parallel")
	flag.Parse()

	_ = godotenv.Load()

	if *dir == "" || !auth.ValidOwnerID(*owner) {
		fmt.Fprintln(os.Stderr, "usage: importer -owner <id> -dir <path> [-inline] [-concurrency n]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	files, err := collect(*dir)
	if err != nil {
		slog.Error("scan directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Println("No photos found.")
		return
	}

	var handle importFunc
	if *inline {
		services, err := app.Open(ctx, cfg)
		if err != nil {
			slog.Error("init services", "error", err)
			os.Exit(1)
		}
		defer services.Close()
		handle = routeInline(services.Engine, *owner)
	} else {
		h, closeFn, err := enqueuer(ctx, cfg, *owner)
		if err != nil {
			slog.Error("init queue", "error", err)
			os.Exit(1)
		}
		defer closeFn()
		handle = h
	}

	fmt.Printf("Photos to import: %d\n\n", len(files))

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Importing photos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var done, failed, created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*concurrency, 1))
	for _, f := range files {
		g.Go(func() error {
			defer bar.Add(1)
			data, err := os.ReadFile(f.path)
			if err != nil {
				failed.Add(1)
				slog.Debug("read photo", "path", f.path, "error", err)
				return nil
			}
			n, err := handle(gctx, f, data)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				slog.Debug("import photo", "path", f.path, "error", err)
				return nil
			}
			done.Add(1)
			created.Add(int64(n))
			return nil
		})
	}
	err = g.Wait()
	_ = bar.Finish()

	fmt.Printf("\n\nImported: %d  Failed: %d", done.Load(), failed.Load())
	if *inline {
		fmt.Printf("  New persons: %d", created.Load())
	}
	fmt.Println()
	if err != nil {
		slog.Error("import interrupted", "error", err)
		os.Exit(1)
	}
}

// collect returns every accepted photo under dir.
func collect(dir string) ([]photoFile, error) {
	var files []photoFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ct, ok := routing.ImageContentType(d.Name()); ok {
			files = append(files, photoFile{path: path, contentType: ct})
		}
		return nil
	})
	return files, err
}

func routeInline(engine *routing.Engine, owner string) importFunc {
	return func(ctx context.Context, f photoFile, data []byte) (int, error) {
		res, err := engine.RoutePhoto(ctx, owner, routing.Asset{
			Filename:    filepath.Base(f.path),
			ContentType: f.contentType,
			Data:        data,
		})
		if err != nil {
			return 0, err
		}
		if res.ExtractionError != "" {
			slog.Debug("extraction failed", "path", f.path, "error", res.ExtractionError)
		}
		return len(res.CreatedPersonIDs), nil
	}
}

// enqueuer uploads originals to MinIO and publishes one task per photo.
func enqueuer(ctx context.Context, cfg *config.Config, owner string) (importFunc, func(), error) {
	if cfg.NATS.URL == "" || cfg.MinIO.Endpoint == "" {
		return nil, nil, fmt.Errorf("queued import needs nats.url and minio.endpoint (or use -inline)")
	}
	objects, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to minio: %w", err)
	}
	if err := objects.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := producer.EnsureStreams(ctx); err != nil {
		producer.Close()
		return nil, nil, err
	}

	handle := func(ctx context.Context, f photoFile, data []byte) (int, error) {
		name := filepath.Base(f.path)
		task := models.PhotoTask{
			TaskID:      uuid.New(),
			OwnerID:     owner,
			Filename:    name,
			ContentType: f.contentType,
			AssetKey:    routing.OriginalKey(owner, name),
			EnqueuedAt:  time.Now().UTC(),
		}
		if err := objects.PutObject(ctx, task.AssetKey, data, f.contentType); err != nil {
			return 0, err
		}
		return 0, producer.PublishPhoto(ctx, task)
	}
	return handle, producer.Close, nil
}
