package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facesort/internal/auth"
	"github.com/your-org/facesort/internal/intent"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/registry"
	"github.com/your-org/facesort/internal/routing"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/pkg/dto"
)

type PersonHandler struct {
	registry *registry.Registry
	store    storage.Store
	engine   *routing.Engine
	intents  *intent.Router
}

func NewPersonHandler(reg *registry.Registry, store storage.Store, engine *routing.Engine, intents *intent.Router) *PersonHandler {
	return &PersonHandler{registry: reg, store: store, engine: engine, intents: intents}
}

func personResponse(p models.PersonSummary) dto.PersonResponse {
	return dto.PersonResponse{
		ID:           p.ID,
		Name:         p.Name,
		CollectionID: p.CollectionID,
		IsFolder:     p.IsFolder(),
		PhotoCount:   p.PhotoCount,
		CreatedAt:    formatTime(p.CreatedAt),
	}
}

func (h *PersonHandler) List(c *gin.Context) {
	persons, err := h.registry.Summaries(c.Request.Context(), auth.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.PersonResponse, 0, len(persons))
	for _, p := range persons {
		resp = append(resp, personResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"persons": resp, "total": len(resp)})
}

// Create makes a manual folder: a person without a face embedding.
func (h *PersonHandler) Create(c *gin.Context) {
	var req dto.CreateFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.registry.CreateFolder(c.Request.Context(), auth.OwnerID(c), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, personResponse(models.PersonSummary{Person: *p}))
}

func (h *PersonHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	owner := auth.OwnerID(c)

	p, err := h.registry.Get(c.Request.Context(), owner, id)
	if err != nil {
		respondError(c, err)
		return
	}
	photos, err := h.store.ListPersonPhotos(c.Request.Context(), owner, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, personResponse(models.PersonSummary{Person: *p, PhotoCount: len(photos)}))
}

func (h *PersonHandler) Rename(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.RenamePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.registry.Rename(c.Request.Context(), auth.OwnerID(c), id, req.Name); err != nil {
		respondError(c, err)
		return
	}
	h.Get(c)
}

func (h *PersonHandler) Delete(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	if err := h.registry.Delete(c.Request.Context(), auth.OwnerID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Photos lists the person's photos, oldest first.
func (h *PersonHandler) Photos(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	owner := auth.OwnerID(c)

	if _, err := h.registry.Get(c.Request.Context(), owner, id); err != nil {
		respondError(c, err)
		return
	}
	photos, err := h.store.ListPersonPhotos(c.Request.Context(), owner, id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.PhotoResponse, 0, len(photos))
	for _, p := range photos {
		item := photoResponse(&p.Photo)
		item.Persons = []dto.PhotoPersonRef{{PersonID: p.PersonID, Status: string(p.Status)}}
		resp = append(resp, item)
	}
	c.JSON(http.StatusOK, gin.H{"photos": resp, "total": len(resp)})
}

// RemovePhoto takes a photo out of the person's collection.
func (h *PersonHandler) RemovePhoto(c *gin.Context) {
	personID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	photoID, ok := paramUUID(c, "photoId")
	if !ok {
		return
	}

	deleted, err := h.engine.Unlink(c.Request.Context(), auth.OwnerID(c), photoID, personID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed", "photo_deleted": deleted})
}

// MovePhoto moves or copies a photo into another person's collection.
func (h *PersonHandler) MovePhoto(c *gin.Context) {
	personID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	photoID, ok := paramUUID(c, "photoId")
	if !ok {
		return
	}
	var req dto.MovePhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.engine.Relink(c.Request.Context(), auth.OwnerID(c), photoID, personID, req.TargetPersonID, req.Copy)
	if err != nil {
		respondError(c, err)
		return
	}
	status := "moved"
	if req.Copy {
		status = "copied"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "materialization": m})
}

// Send emails the person's photos and records the delivery.
func (h *PersonHandler) Send(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req dto.SendPhotosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner := auth.OwnerID(c)

	p, err := h.registry.Get(c.Request.Context(), owner, id)
	if err != nil {
		respondError(c, err)
		return
	}
	resp, err := h.intents.SendPerson(c.Request.Context(), owner, p, req.Recipient, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(intentStatus(resp.Status), resp)
}
