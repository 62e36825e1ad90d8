// Package app wires the storage, vision and routing layers shared by the
// api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facesort/internal/collection"
	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/registry"
	"github.com/your-org/facesort/internal/routing"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
)

type Services struct {
	Store     storage.Store
	Objects   storage.ObjectStore
	Registry  *registry.Registry
	Extractor vision.Backend
	Engine    *routing.Engine

	closers []func()
}

// Open connects every backend named in cfg. On error, whatever was opened is
// closed again.
func Open(ctx context.Context, cfg *config.Config) (_ *Services, err error) {
	s := &Services{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	var locker routing.Locker
	switch cfg.Database.Driver {
	case "memory":
		slog.Warn("using in-memory store, data is lost on restart")
		s.Store = storage.NewMemoryStore()
	default:
		db, err := storage.NewPostgresStore(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		s.Store = db
		if cfg.Routing.Lock == "postgres" {
			locker = db.Locker()
		}
	}
	if cfg.Routing.Lock == "postgres" && locker == nil {
		return nil, errors.New("routing.lock=postgres requires database.driver=postgres")
	}

	if cfg.MinIO.Endpoint == "" {
		slog.Warn("minio endpoint not set, using in-memory object store")
		s.Objects = storage.NewMemoryObjectStore()
	} else {
		minioStore, err := storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("connect to minio: %w", err)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		s.Objects = minioStore
	}

	if cfg.Vision.Backend == "onnx" {
		ort.SetSharedLibraryPath(onnxLibPath())
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("init onnx runtime: %w", err)
		}
		s.closers = append(s.closers, func() { _ = ort.DestroyEnvironment() })
	}
	s.Extractor, err = vision.NewBackend(cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("init vision backend: %w", err)
	}
	s.closers = append(s.closers, s.Extractor.Close)

	s.Registry = registry.New(s.Store, s.Objects)
	s.Engine, err = routing.NewEngine(routing.Deps{
		Store:        s.Store,
		Objects:      s.Objects,
		Registry:     s.Registry,
		Extractor:    s.Extractor,
		Materializer: collection.NewMaterializer(s.Objects, cfg.Collection),
		Locker:       locker,
	}, cfg.Routing.MatchThreshold, cfg.Vision.ExtractTimeout)
	if err != nil {
		return nil, fmt.Errorf("init routing engine: %w", err)
	}

	slog.Info("services ready",
		"db", cfg.Database.Driver,
		"vision", cfg.Vision.Backend,
		"lock", cfg.Routing.Lock,
		"threshold", cfg.Routing.MatchThreshold,
	)
	return s, nil
}

// Close releases resources in reverse order of acquisition.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// onnxLibPath returns the ONNX Runtime shared library path
// based on the operating system.
func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
