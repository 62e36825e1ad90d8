package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/facesort/internal/auth"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/storage"
)

const recentPhotos = 8

type StatsHandler struct {
	store storage.Store
}

func NewStatsHandler(store storage.Store) *StatsHandler {
	return &StatsHandler{store: store}
}

// Stats returns the dashboard summary. The queries run concurrently.
func (h *StatsHandler) Stats(c *gin.Context) {
	owner := auth.OwnerID(c)
	g, ctx := errgroup.WithContext(c.Request.Context())

	var stats models.Stats
	g.Go(func() (err error) {
		stats.TotalPhotos, err = h.store.CountPhotos(ctx, owner)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalPersons, err = h.store.CountPersons(ctx, owner)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalDeliveries, err = h.store.CountDeliveries(ctx, owner)
		return err
	})
	g.Go(func() (err error) {
		stats.RecentPhotos, err = h.store.RecentPhotos(ctx, owner, recentPhotos)
		return err
	})
	if err := g.Wait(); err != nil {
		respondError(c, err)
		return
	}
	if stats.RecentPhotos == nil {
		stats.RecentPhotos = []models.Photo{}
	}
	c.JSON(http.StatusOK, stats)
}

// Deliveries lists the owner's delivery history, newest first.
func (h *StatsHandler) Deliveries(c *gin.Context) {
	records, err := h.store.ListDeliveries(c.Request.Context(), auth.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []models.DeliveryRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": records, "total": len(records)})
}
