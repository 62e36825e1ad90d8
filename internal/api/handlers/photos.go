package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/auth"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/routing"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/pkg/dto"
)

type PhotoRouter interface {
	RoutePhoto(ctx context.Context, ownerID string, asset routing.Asset) (*routing.Result, error)
}

type TaskPublisher interface {
	PublishPhoto(ctx context.Context, task models.PhotoTask) error
}

type PhotoHandler struct {
	router   PhotoRouter
	store    storage.Store
	objects  storage.ObjectStore
	maxBytes int64
	// Publisher enables ?async=true uploads. Nil means every upload is routed inline.
	Publisher TaskPublisher
	// OnRouted is called with the event of every photo routed inline.
	OnRouted func(models.RoutedEvent)
}

func NewPhotoHandler(router PhotoRouter, store storage.Store, objects storage.ObjectStore, maxBytes int64) *PhotoHandler {
	return &PhotoHandler{router: router, store: store, objects: objects, maxBytes: maxBytes}
}

// Upload accepts a multipart form with one or more files in the "photos"
// field. Files are routed inline, or queued for a worker when async is set.
func (h *PhotoHandler) Upload(c *gin.Context) {
	owner := auth.OwnerID(c)
	if h.maxBytes > 0 {
		if c.Request.ContentLength > h.maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("upload exceeds %d bytes", h.maxBytes)})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("upload exceeds %d bytes", h.maxBytes)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := slices.Concat(form.File["photos"], form.File["photos[]"])
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files in field photos"})
		return
	}

	async := false
	if v := c.Query("async"); v != "" {
		if async, err = strconv.ParseBool(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid async flag"})
			return
		}
	}
	if async && h.Publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async routing is not available"})
		return
	}

	resp := dto.UploadResponse{Items: make([]dto.UploadItem, 0, len(files))}
	failed, queued := 0, 0
	for _, fh := range files {
		item := h.handleFile(c.Request.Context(), owner, fh, async)
		switch item.Status {
		case "rejected":
			resp.Rejected++
		case "failed":
			failed++
		case "queued":
			queued++
			resp.Accepted++
		default:
			resp.Accepted++
		}
		resp.Items = append(resp.Items, item)
	}

	status := http.StatusOK
	switch {
	case resp.Accepted == 0 && failed > 0:
		status = http.StatusInternalServerError
	case resp.Accepted == 0:
		status = http.StatusBadRequest
	case queued > 0:
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

func (h *PhotoHandler) handleFile(ctx context.Context, owner string, fh *multipart.FileHeader, async bool) dto.UploadItem {
	name := filepath.Base(fh.Filename)
	item := dto.UploadItem{Filename: name}

	contentType, ok := routing.ImageContentType(name)
	if !ok {
		item.Status = "rejected"
		item.Error = "unsupported file type"
		return item
	}

	data, err := readFile(fh)
	if err != nil {
		item.Status = "rejected"
		item.Error = err.Error()
		return item
	}

	if async {
		task := models.PhotoTask{
			TaskID:      uuid.New(),
			OwnerID:     owner,
			Filename:    name,
			ContentType: contentType,
			AssetKey:    routing.OriginalKey(owner, name),
			EnqueuedAt:  time.Now().UTC(),
		}
		if err := h.objects.PutObject(ctx, task.AssetKey, data, contentType); err != nil {
			item.Status = "failed"
			item.Error = "store original: " + err.Error()
			return item
		}
		if err := h.Publisher.PublishPhoto(ctx, task); err != nil {
			item.Status = "failed"
			item.Error = err.Error()
			return item
		}
		item.Status = "queued"
		item.TaskID = &task.TaskID
		return item
	}

	res, err := h.router.RoutePhoto(ctx, owner, routing.Asset{Filename: name, ContentType: contentType, Data: data})
	if err != nil {
		item.Status = "failed"
		item.Error = err.Error()
		return item
	}
	if h.OnRouted != nil {
		h.OnRouted(res.Event(owner, name))
	}
	item.Status = "routed"
	item.Result = res
	return item
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	return data, nil
}

func (h *PhotoHandler) Get(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	owner := auth.OwnerID(c)

	photo, err := h.store.GetPhoto(c.Request.Context(), owner, id)
	if err != nil {
		respondError(c, err)
		return
	}
	links, err := h.store.ListLinks(c.Request.Context(), owner, id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := photoResponse(photo)
	for _, l := range links {
		resp.Persons = append(resp.Persons, dto.PhotoPersonRef{PersonID: l.PersonID, Status: string(l.Status), Error: l.Error})
	}
	c.JSON(http.StatusOK, resp)
}

// File streams the stored original.
func (h *PhotoHandler) File(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	photo, err := h.store.GetPhoto(c.Request.Context(), auth.OwnerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	data, err := h.objects.GetObject(c.Request.Context(), photo.AssetKey)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", photo.Filename))
	c.Data(http.StatusOK, photo.ContentType, data)
}

func photoResponse(p *models.Photo) dto.PhotoResponse {
	return dto.PhotoResponse{
		ID:          p.ID,
		Filename:    p.Filename,
		ContentType: p.ContentType,
		URL:         "/v1/photos/" + p.ID.String() + "/file",
		CreatedAt:   formatTime(p.CreatedAt),
	}
}
