package api

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facesort/internal/api/handlers"
	"github.com/your-org/facesort/internal/api/ws"
	"github.com/your-org/facesort/internal/auth"
	"github.com/your-org/facesort/internal/intent"
	"github.com/your-org/facesort/internal/queue"
	"github.com/your-org/facesort/internal/registry"
	"github.com/your-org/facesort/internal/routing"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
)

type RouterConfig struct {
	APIKey         string
	MaxUploadBytes int64
	MatchThreshold float64
	Store          storage.Store
	Objects        storage.ObjectStore
	Registry       *registry.Registry
	Engine         *routing.Engine
	Extractor      vision.Extractor
	Intents        *intent.Router
	// Chat may be nil when no language model is configured.
	Chat handlers.IntentExtractor
	// Producer may be nil; async uploads are then refused.
	Producer *queue.Producer
	Hub      *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	checks := map[string]handlers.Check{
		"store":   cfg.Store.Ping,
		"objects": cfg.Objects.Ping,
	}
	if cfg.Producer != nil {
		checks["nats"] = func(context.Context) error { return cfg.Producer.Ping() }
	}
	systemH := handlers.NewSystemHandler(checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey), auth.OwnerMiddleware())

	// WebSocket
	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Photos
	photoH := handlers.NewPhotoHandler(cfg.Engine, cfg.Store, cfg.Objects, cfg.MaxUploadBytes)
	if cfg.Producer != nil {
		photoH.Publisher = cfg.Producer
	}
	if cfg.Hub != nil {
		photoH.OnRouted = cfg.Hub.BroadcastRouted
	}
	v1.POST("/photos", photoH.Upload)
	v1.GET("/photos/:id", photoH.Get)
	v1.GET("/photos/:id/file", photoH.File)

	// Persons & folders
	personH := handlers.NewPersonHandler(cfg.Registry, cfg.Store, cfg.Engine, cfg.Intents)
	v1.GET("/persons", personH.List)
	v1.POST("/persons", personH.Create)
	v1.GET("/persons/:id", personH.Get)
	v1.PATCH("/persons/:id", personH.Rename)
	v1.DELETE("/persons/:id", personH.Delete)
	v1.GET("/persons/:id/photos", personH.Photos)
	v1.DELETE("/persons/:id/photos/:photoId", personH.RemovePhoto)
	v1.POST("/persons/:id/photos/:photoId/move", personH.MovePhoto)
	v1.POST("/persons/:id/send", personH.Send)

	searchH := handlers.NewSearchHandler(cfg.Extractor, cfg.Store, cfg.MatchThreshold)
	v1.POST("/search", searchH.Search)

	// Chat
	chatH := handlers.NewChatHandler(cfg.Intents, cfg.Chat)
	v1.POST("/chat", chatH.Chat)
	v1.POST("/intents", chatH.Intent)

	statsH := handlers.NewStatsHandler(cfg.Store)
	v1.GET("/stats", statsH.Stats)
	v1.GET("/deliveries", statsH.Deliveries)

	return r
}
