package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facesort/internal/auth"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
	"github.com/your-org/facesort/pkg/dto"
)

const searchLimit = 5

type SearchHandler struct {
	extractor vision.Extractor
	store     storage.Store
	threshold float64
}

func NewSearchHandler(extractor vision.Extractor, store storage.Store, threshold float64) *SearchHandler {
	return &SearchHandler{extractor: extractor, store: store, threshold: threshold}
}

// Search finds the owner's persons most similar to each face of an uploaded
// image. Nothing is stored.
func (h *SearchHandler) Search(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	embeddings, err := h.extractor.Extract(c.Request.Context(), imageData)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, vision.ErrNoImage) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": "failed to extract faces: " + err.Error()})
		return
	}

	owner := auth.OwnerID(c)
	results := make([]dto.SearchResult, 0, len(embeddings))
	for i, emb := range embeddings {
		matches, err := h.store.SearchPersons(c.Request.Context(), owner, emb, h.threshold, searchLimit)
		if err != nil {
			respondError(c, err)
			return
		}
		for _, m := range matches {
			results = append(results, dto.SearchResult{PersonID: m.PersonID, Name: m.Name, Score: m.Score, Face: i})
		}
	}

	c.JSON(http.StatusOK, gin.H{"faces": len(embeddings), "results": results, "total": len(results)})
}
