// Package routing assigns each uploaded photo to the persons whose faces it contains.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/collection"
	"github.com/your-org/facesort/internal/match"
	"github.com/your-org/facesort/internal/models"
	"github.com/your-org/facesort/internal/observability"
	"github.com/your-org/facesort/internal/registry"
	"github.com/your-org/facesort/internal/storage"
	"github.com/your-org/facesort/internal/vision"
)

var (
	ErrExtraction        = errors.New("embedding extraction failed")
	ErrExtractionTimeout = errors.New("embedding extraction timed out")
)

// Materializer places stored originals into person collections and takes
// them out again.
type Materializer interface {
	Place(ctx context.Context, assetKey, ownerID, collectionID, name string) error
	Remove(ctx context.Context, ownerID, collectionID, name string) error
}

// Asset is one photo to route. When AssetKey is set the original is already in
// the object store and Data may be empty.
type Asset struct {
	Filename    string
	ContentType string
	Data        []byte
	AssetKey    string
}

// Result describes what happened to one photo. Only a failure to persist the
// photo itself is returned as an error; everything else is reported here.
type Result struct {
	PhotoID          uuid.UUID                `json:"photo_id"`
	PersonIDs        []uuid.UUID              `json:"person_ids"`
	CreatedPersonIDs []uuid.UUID              `json:"created_person_ids"`
	FacesDetected    int                      `json:"faces_detected"`
	Materializations []models.Materialization `json:"materializations"`
	ExtractionError  string                   `json:"extraction_error,omitempty"`
	FaceErrors       []string                 `json:"face_errors,omitempty"`
}

// Event converts the result into the message published to subscribers.
func (r *Result) Event(ownerID, filename string) models.RoutedEvent {
	return models.RoutedEvent{
		OwnerID:          ownerID,
		PhotoID:          r.PhotoID,
		Filename:         filename,
		FacesDetected:    r.FacesDetected,
		PersonIDs:        r.PersonIDs,
		CreatedPersonIDs: r.CreatedPersonIDs,
		Materializations: r.Materializations,
		ExtractionError:  r.ExtractionError,
		Timestamp:        time.Now().UTC(),
	}
}

type Deps struct {
	Store        storage.Store
	Objects      storage.ObjectStore
	Registry     *registry.Registry
	Extractor    vision.Extractor
	Materializer Materializer
	Locker       Locker
}

type Engine struct {
	store          storage.Store
	objects        storage.ObjectStore
	registry       *registry.Registry
	extractor      vision.Extractor
	materializer   Materializer
	locker         Locker
	matcher        *match.Matcher
	extractTimeout time.Duration
}

// NewEngine wires the routing engine. A zero extractTimeout disables the
// extraction deadline; a nil Locker defaults to an in-process KeyedMutex.
func NewEngine(deps Deps, threshold float64, extractTimeout time.Duration) (*Engine, error) {
	matcher, err := match.NewMatcher(threshold)
	if err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Objects == nil || deps.Registry == nil ||
		deps.Extractor == nil || deps.Materializer == nil {
		return nil, errors.New("routing: missing dependency")
	}
	locker := deps.Locker
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Engine{
		store:          deps.Store,
		objects:        deps.Objects,
		registry:       deps.Registry,
		extractor:      deps.Extractor,
		materializer:   deps.Materializer,
		locker:         locker,
		matcher:        matcher,
		extractTimeout: extractTimeout,
	}, nil
}

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ImageContentType reports the content type for an accepted photo file name.
func ImageContentType(filename string) (string, bool) {
	ct, ok := imageTypes[strings.ToLower(path.Ext(filename))]
	return ct, ok
}

// OriginalKey is the object key under which an uploaded original is stored.
func OriginalKey(ownerID, filename string) string {
	return fmt.Sprintf("originals/%s/%s_%s", ownerID, uuid.NewString(), path.Base(filename))
}

// RoutePhoto persists one photo, links it to every person whose face it
// contains (creating persons for unknown faces) and places it into each
// person's collection. Routing for one owner is serialized.
func (e *Engine) RoutePhoto(ctx context.Context, ownerID string, asset Asset) (*Result, error) {
	unlock, err := e.locker.Lock(ctx, ownerID)
	if err != nil {
		observability.PhotosRouted.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("lock owner %s: %w", ownerID, err)
	}
	defer unlock()

	photo, data, err := e.persist(ctx, ownerID, asset)
	if err != nil {
		observability.PhotosRouted.WithLabelValues("error").Inc()
		return nil, err
	}

	res := &Result{
		PhotoID:          photo.ID,
		PersonIDs:        []uuid.UUID{},
		CreatedPersonIDs: []uuid.UUID{},
		Materializations: []models.Materialization{},
	}

	start := time.Now()
	embeddings, err := e.extract(ctx, data)
	observability.StageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("extraction failed, photo left unassociated",
			"owner", ownerID, "photo_id", photo.ID, "error", err)
		res.ExtractionError = err.Error()
		observability.PhotosRouted.WithLabelValues("extraction_error").Inc()
		return res, nil
	}
	res.FacesDetected = len(embeddings)
	observability.FacesDetected.Add(float64(len(embeddings)))

	start = time.Now()
	collections := e.resolveFaces(ctx, ownerID, embeddings, res)
	observability.StageDuration.WithLabelValues("match").Observe(time.Since(start).Seconds())

	persons := res.PersonIDs
	res.PersonIDs = make([]uuid.UUID, 0, len(persons))
	for _, personID := range persons {
		if _, err := e.store.AddLink(ctx, photo.ID, personID); err != nil {
			res.FaceErrors = append(res.FaceErrors, fmt.Sprintf("link person %s: %v", personID, err))
			continue
		}
		res.PersonIDs = append(res.PersonIDs, personID)
	}

	start = time.Now()
	for _, personID := range res.PersonIDs {
		res.Materializations = append(res.Materializations,
			e.materialize(ctx, photo, personID, collections[personID]))
	}
	observability.StageDuration.WithLabelValues("materialize").Observe(time.Since(start).Seconds())

	observability.PhotosRouted.WithLabelValues(outcome(res)).Inc()
	slog.Info("photo routed",
		"owner", ownerID,
		"photo_id", photo.ID,
		"faces", res.FacesDetected,
		"persons", len(res.PersonIDs),
		"created", len(res.CreatedPersonIDs),
	)
	return res, nil
}

// persist stores the original (unless already stored) and writes the Photo
// record. It returns the image bytes for extraction.
func (e *Engine) persist(ctx context.Context, ownerID string, asset Asset) (*models.Photo, []byte, error) {
	start := time.Now()
	defer func() {
		observability.StageDuration.WithLabelValues("store").Observe(time.Since(start).Seconds())
	}()

	data := asset.Data
	key := asset.AssetKey
	switch {
	case key == "":
		key = OriginalKey(ownerID, asset.Filename)
		if err := e.objects.PutObject(ctx, key, data, asset.ContentType); err != nil {
			return nil, nil, fmt.Errorf("store original: %w", err)
		}
	case len(data) == 0:
		var err error
		if data, err = e.objects.GetObject(ctx, key); err != nil {
			return nil, nil, fmt.Errorf("load original: %w", err)
		}
	}

	photo := &models.Photo{
		OwnerID:     ownerID,
		Filename:    asset.Filename,
		AssetKey:    key,
		ContentType: asset.ContentType,
	}
	if err := e.store.CreatePhoto(ctx, photo); err != nil {
		return nil, nil, fmt.Errorf("persist photo: %w", err)
	}
	return photo, data, nil
}

// extract runs the extractor under the configured deadline.
func (e *Engine) extract(ctx context.Context, data []byte) ([][]float32, error) {
	if e.extractTimeout <= 0 {
		embeddings, err := e.extractor.Extract(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		return embeddings, nil
	}

	extractCtx, cancel := context.WithTimeout(ctx, e.extractTimeout)
	defer cancel()

	type extraction struct {
		embeddings [][]float32
		err        error
	}
	done := make(chan extraction, 1)
	go func() {
		embeddings, err := e.extractor.Extract(extractCtx, data)
		done <- extraction{embeddings, err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			return out.embeddings, nil
		}
		if errors.Is(extractCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrExtractionTimeout, e.extractTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrExtraction, out.err)
	case <-extractCtx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtraction, ctx.Err())
		}
		return nil, fmt.Errorf("%w after %s", ErrExtractionTimeout, e.extractTimeout)
	}
}

// resolveFaces maps each embedding to an existing or new person, in face
// order. Distinct person ids are appended to res.PersonIDs in first-seen order.
// The returned map holds each person's collection id.
func (e *Engine) resolveFaces(ctx context.Context, ownerID string, embeddings [][]float32, res *Result) map[uuid.UUID]string {
	collections := make(map[uuid.UUID]string)

	for i, emb := range embeddings {
		if len(emb) == 0 {
			continue
		}

		// The roster is reloaded per face so persons created for earlier
		// faces of this photo are candidates for later ones.
		roster, err := e.registry.List(ctx, ownerID)
		if err != nil {
			res.FaceErrors = append(res.FaceErrors, fmt.Sprintf("face %d: load roster: %v", i, err))
			continue
		}
		candidates := make([]match.Candidate, 0, len(roster))
		for _, p := range roster {
			candidates = append(candidates, match.Candidate{PersonID: p.ID, Seq: p.Seq, Embedding: p.Embedding})
			collections[p.ID] = p.CollectionID
		}

		var personID uuid.UUID
		if m := e.matcher.Match(emb, candidates); m.Matched {
			personID = m.PersonID
			observability.FacesMatched.Inc()
			slog.Debug("face matched", "owner", ownerID, "face", i, "person_id", personID, "score", m.Score)
		} else {
			p, err := e.registry.CreatePerson(ctx, ownerID, emb)
			if err != nil {
				res.FaceErrors = append(res.FaceErrors, fmt.Sprintf("face %d: create person: %v", i, err))
				continue
			}
			personID = p.ID
			collections[p.ID] = p.CollectionID
			res.CreatedPersonIDs = append(res.CreatedPersonIDs, p.ID)
			observability.PersonsCreated.Inc()
			slog.Info("created person for unmatched face", "owner", ownerID, "person_id", p.ID, "best_score", m.Score)
		}

		if !slices.Contains(res.PersonIDs, personID) {
			res.PersonIDs = append(res.PersonIDs, personID)
		}
	}
	return collections
}

func (e *Engine) materialize(ctx context.Context, photo *models.Photo, personID uuid.UUID, collectionID string) models.Materialization {
	m := models.Materialization{PersonID: personID, CollectionID: collectionID, Status: models.LinkMaterialized}

	if err := e.materializer.Place(ctx, photo.AssetKey, photo.OwnerID, collectionID, collection.ObjectName(photo)); err != nil {
		m.Status = models.LinkFailed
		m.Error = err.Error()
		observability.MaterializeFailures.Inc()
		slog.Error("materialize photo", "photo_id", photo.ID, "person_id", personID, "error", err)
	}

	if err := e.store.SetLinkStatus(ctx, photo.ID, personID, m.Status, m.Error); err != nil {
		slog.Warn("record materialization status", "photo_id", photo.ID, "person_id", personID, "error", err)
	}
	return m
}

func outcome(res *Result) string {
	switch {
	case len(res.FaceErrors) > 0:
		return "partial"
	case res.FacesDetected == 0:
		return "no_faces"
	}
	for _, m := range res.Materializations {
		if m.Status != models.LinkMaterialized {
			return "partial"
		}
	}
	return "ok"
}
