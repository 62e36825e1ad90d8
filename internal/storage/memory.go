package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facesort/internal/match"
	"github.com/your-org/facesort/internal/models"
)

type linkKey struct {
	photoID  uuid.UUID
	personID uuid.UUID
}

// MemoryStore keeps all records in process memory. It backs the "memory"
// database driver and the package tests of everything above storage.
type MemoryStore struct {
	mu         sync.RWMutex
	seq        int64
	persons    map[uuid.UUID]*models.Person
	photos     map[uuid.UUID]*models.Photo
	links      map[linkKey]*models.PhotoPersonLink
	deliveries []models.DeliveryRecord
	now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		persons: make(map[uuid.UUID]*models.Person),
		photos:  make(map[uuid.UUID]*models.Photo),
		links:   make(map[linkKey]*models.PhotoPersonLink),
		now:     time.Now,
	}
}

func (s *MemoryStore) nextSeq() int64 {
	s.seq++
	return s.seq
}

func clonePerson(p *models.Person) models.Person {
	out := *p
	if p.Embedding != nil {
		out.Embedding = append([]float32(nil), p.Embedding...)
	}
	return out
}

// --- Persons ---

func (s *MemoryStore) CreatePerson(_ context.Context, p *models.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	for _, existing := range s.persons {
		if existing.OwnerID == p.OwnerID && existing.CollectionID == p.CollectionID {
			return fmt.Errorf("create person: collection %q already exists", p.CollectionID)
		}
	}
	now := s.now()
	p.Seq = s.nextSeq()
	p.CreatedAt = now
	p.UpdatedAt = now
	stored := clonePerson(p)
	s.persons[p.ID] = &stored
	return nil
}

func (s *MemoryStore) GetPerson(_ context.Context, ownerID string, id uuid.UUID) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.persons[id]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	out := clonePerson(p)
	return &out, nil
}

func (s *MemoryStore) ownerPersons(ownerID string) []*models.Person {
	var out []*models.Person
	for _, p := range s.persons {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *MemoryStore) ListPersons(_ context.Context, ownerID string) ([]models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var persons []models.Person
	for _, p := range s.ownerPersons(ownerID) {
		persons = append(persons, clonePerson(p))
	}
	return persons, nil
}

func (s *MemoryStore) ListPersonSummaries(_ context.Context, ownerID string) ([]models.PersonSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[uuid.UUID]int)
	for k := range s.links {
		counts[k.personID]++
	}
	var out []models.PersonSummary
	for _, p := range s.ownerPersons(ownerID) {
		summary := models.PersonSummary{Person: clonePerson(p), PhotoCount: counts[p.ID]}
		summary.Embedding = nil
		out = append(out, summary)
	}
	return out, nil
}

func (s *MemoryStore) CollectionExists(_ context.Context, ownerID, collectionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.persons {
		if p.OwnerID == ownerID && p.CollectionID == collectionID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) RenamePerson(_ context.Context, ownerID string, id uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.persons[id]
	if !ok || p.OwnerID != ownerID {
		return ErrNotFound
	}
	p.Name = name
	p.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) DeletePerson(_ context.Context, ownerID string, id uuid.UUID) ([]models.Photo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.persons[id]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	delete(s.persons, id)

	var linked []uuid.UUID
	for k := range s.links {
		if k.personID == id {
			linked = append(linked, k.photoID)
			delete(s.links, k)
		}
	}
	for i := range s.deliveries {
		if d := s.deliveries[i].PersonID; d != nil && *d == id {
			s.deliveries[i].PersonID = nil
		}
	}

	var orphans []models.Photo
	for _, photoID := range linked {
		if s.photoLinkedLocked(photoID) {
			continue
		}
		if ph, ok := s.photos[photoID]; ok {
			orphans = append(orphans, *ph)
			delete(s.photos, photoID)
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].Seq < orphans[j].Seq })
	return orphans, nil
}

func (s *MemoryStore) photoLinkedLocked(photoID uuid.UUID) bool {
	for k := range s.links {
		if k.photoID == photoID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CountPersons(_ context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ownerPersons(ownerID)), nil
}

func (s *MemoryStore) SearchPersons(_ context.Context, ownerID string, embedding []float32, threshold float64, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []SearchMatch
	for _, p := range s.ownerPersons(ownerID) {
		if len(p.Embedding) == 0 {
			continue
		}
		score := match.CosineSimilarity(embedding, p.Embedding)
		if score >= threshold {
			matches = append(matches, SearchMatch{PersonID: p.ID, Name: p.Name, Score: score})
		}
	}
	// Candidates are already in seq order, so a stable sort keeps the earliest first on ties.
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// --- Photos ---

func (s *MemoryStore) CreatePhoto(_ context.Context, p *models.Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Seq = s.nextSeq()
	p.CreatedAt = s.now()
	stored := *p
	s.photos[p.ID] = &stored
	return nil
}

func (s *MemoryStore) GetPhoto(_ context.Context, ownerID string, id uuid.UUID) (*models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.photos[id]
	if !ok || p.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *MemoryStore) ListPersonPhotos(_ context.Context, ownerID string, personID uuid.UUID) ([]models.PersonPhoto, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	person, ok := s.persons[personID]
	if !ok || person.OwnerID != ownerID {
		return nil, nil
	}
	var out []models.PersonPhoto
	for k, l := range s.links {
		if k.personID != personID {
			continue
		}
		ph, ok := s.photos[k.photoID]
		if !ok || ph.OwnerID != ownerID {
			continue
		}
		out = append(out, models.PersonPhoto{Photo: *ph, PersonID: personID, Status: l.Status})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) RecentPhotos(_ context.Context, ownerID string, limit int) ([]models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Photo
	for _, p := range s.photos {
		if p.OwnerID == ownerID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountPhotos(_ context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, p := range s.photos {
		if p.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// --- Links ---

func (s *MemoryStore) AddLink(_ context.Context, photoID, personID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.photos[photoID]; !ok {
		return false, fmt.Errorf("add link: photo %s: %w", photoID, ErrNotFound)
	}
	if _, ok := s.persons[personID]; !ok {
		return false, fmt.Errorf("add link: person %s: %w", personID, ErrNotFound)
	}
	key := linkKey{photoID: photoID, personID: personID}
	if _, exists := s.links[key]; exists {
		return false, nil
	}
	s.links[key] = &models.PhotoPersonLink{
		PhotoID:   photoID,
		PersonID:  personID,
		Status:    models.LinkPending,
		CreatedAt: s.now(),
	}
	return true, nil
}

func (s *MemoryStore) SetLinkStatus(_ context.Context, photoID, personID uuid.UUID, status models.LinkStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[linkKey{photoID: photoID, personID: personID}]
	if !ok {
		return ErrNotFound
	}
	l.Status = status
	l.Error = errMsg
	return nil
}

func (s *MemoryStore) ListLinks(_ context.Context, ownerID string, photoID uuid.UUID) ([]models.PhotoPersonLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ph, ok := s.photos[photoID]
	if !ok || ph.OwnerID != ownerID {
		return nil, nil
	}
	var out []models.PhotoPersonLink
	for k, l := range s.links {
		if k.photoID == photoID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.persons[out[i].PersonID].Seq < s.persons[out[j].PersonID].Seq
	})
	return out, nil
}

func (s *MemoryStore) RemoveLink(_ context.Context, ownerID string, photoID, personID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ph, ok := s.photos[photoID]
	if !ok || ph.OwnerID != ownerID {
		return false, ErrNotFound
	}
	key := linkKey{photoID: photoID, personID: personID}
	if _, ok := s.links[key]; !ok {
		return false, ErrNotFound
	}
	delete(s.links, key)

	if s.photoLinkedLocked(photoID) {
		return false, nil
	}
	delete(s.photos, photoID)
	return true, nil
}

// --- Deliveries ---

func (s *MemoryStore) CreateDelivery(_ context.Context, d *models.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = s.now()
	stored := *d
	stored.PersonName = ""
	s.deliveries = append(s.deliveries, stored)
	return nil
}

func (s *MemoryStore) ListDeliveries(_ context.Context, ownerID string) ([]models.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.DeliveryRecord
	for i := len(s.deliveries) - 1; i >= 0; i-- {
		d := s.deliveries[i]
		if d.OwnerID != ownerID {
			continue
		}
		if d.PersonID != nil {
			if p, ok := s.persons[*d.PersonID]; ok {
				d.PersonName = p.Name
			}
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *MemoryStore) CountDeliveries(_ context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, d := range s.deliveries {
		if d.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}
