package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facesort/internal/config"
	"github.com/your-org/facesort/internal/models"
)

// lockPoolConns caps the connections held by advisory locks, waiters included.
const lockPoolConns = 8

type PostgresStore struct {
	pool *pgxpool.Pool
	// locks backs AdvisoryLocker. Callers waiting for a lock hold one of its
	// connections, never one the locked work needs from pool.
	locks *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	return newPostgresStore(poolCfg)
}

// NewPostgresStoreFromURL connects using a full connection string.
func NewPostgresStoreFromURL(url string, maxConns int32) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = maxConns
	return newPostgresStore(poolCfg)
}

func newPostgresStore(poolCfg *pgxpool.Config) (*PostgresStore, error) {
	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	lockCfg := poolCfg.Copy()
	lockCfg.MaxConns = lockPoolConns
	lockCfg.MinConns = 0
	locks, err := pgxpool.NewWithConfig(context.Background(), lockCfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create lock pool: %w", err)
	}

	return &PostgresStore{pool: pool, locks: locks}, nil
}

func (s *PostgresStore) Close() {
	s.locks.Close()
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Locker returns an owner lock backed by Postgres advisory locks.
func (s *PostgresStore) Locker() *AdvisoryLocker {
	return &AdvisoryLocker{pool: s.locks}
}

// --- Persons ---

const personColumns = `id, seq, owner_id, name, collection_id, embedding, created_at, updated_at`

func scanPerson(row pgx.Row) (*models.Person, error) {
	var (
		p   models.Person
		vec *pgvector.Vector
	)
	if err := row.Scan(&p.ID, &p.Seq, &p.OwnerID, &p.Name, &p.CollectionID, &vec, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if vec != nil {
		p.Embedding = vec.Slice()
	}
	return &p, nil
}

func (s *PostgresStore) CreatePerson(ctx context.Context, p *models.Person) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	var vec *pgvector.Vector
	if len(p.Embedding) > 0 {
		v := pgvector.NewVector(p.Embedding)
		vec = &v
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO persons (id, owner_id, name, collection_id, embedding)
		 VALUES ($1, $2, $3, $4, $5) RETURNING seq, created_at, updated_at`,
		p.ID, p.OwnerID, p.Name, p.CollectionID, vec,
	).Scan(&p.Seq, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, ownerID string, id uuid.UUID) (*models.Person, error) {
	p, err := scanPerson(s.pool.QueryRow(ctx,
		`SELECT `+personColumns+` FROM persons WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context, ownerID string) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+personColumns+` FROM persons WHERE owner_id = $1 ORDER BY seq`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, *p)
	}
	return persons, rows.Err()
}

func (s *PostgresStore) ListPersonSummaries(ctx context.Context, ownerID string) ([]models.PersonSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.seq, p.owner_id, p.name, p.collection_id, p.created_at, p.updated_at,
		        COUNT(pp.photo_id)
		 FROM persons p
		 LEFT JOIN photo_persons pp ON pp.person_id = p.id
		 WHERE p.owner_id = $1
		 GROUP BY p.id
		 ORDER BY p.seq`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list person summaries: %w", err)
	}
	defer rows.Close()

	var out []models.PersonSummary
	for rows.Next() {
		var ps models.PersonSummary
		if err := rows.Scan(&ps.ID, &ps.Seq, &ps.OwnerID, &ps.Name, &ps.CollectionID,
			&ps.CreatedAt, &ps.UpdatedAt, &ps.PhotoCount); err != nil {
			return nil, fmt.Errorf("scan person summary: %w", err)
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CollectionExists(ctx context.Context, ownerID, collectionID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM persons WHERE owner_id = $1 AND collection_id = $2)`,
		ownerID, collectionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check collection: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) RenamePerson(ctx context.Context, ownerID string, id uuid.UUID, name string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE persons SET name = $1, updated_at = NOW() WHERE id = $2 AND owner_id = $3`,
		name, id, ownerID)
	if err != nil {
		return fmt.Errorf("rename person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePerson(ctx context.Context, ownerID string, id uuid.UUID) ([]models.Photo, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin delete person: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var linked []uuid.UUID
	rows, err := tx.Query(ctx,
		`SELECT pp.photo_id FROM photo_persons pp
		 JOIN persons p ON p.id = pp.person_id
		 WHERE pp.person_id = $1 AND p.owner_id = $2`, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list person links: %w", err)
	}
	for rows.Next() {
		var photoID uuid.UUID
		if err := rows.Scan(&photoID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan person link: %w", err)
		}
		linked = append(linked, photoID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list person links: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM persons WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	// Links cascaded with the person; drop its photos that no longer belong anywhere.
	var orphans []models.Photo
	if len(linked) > 0 {
		rows, err = tx.Query(ctx,
			`DELETE FROM photos ph
			 WHERE ph.id = ANY($1)
			   AND NOT EXISTS (SELECT 1 FROM photo_persons pp WHERE pp.photo_id = ph.id)
			 RETURNING id, seq, owner_id, filename, asset_key, content_type, created_at`, linked)
		if err != nil {
			return nil, fmt.Errorf("delete orphan photos: %w", err)
		}
		orphans, err = scanPhotos(rows)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit delete person: %w", err)
	}
	return orphans, nil
}

func (s *PostgresStore) CountPersons(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM persons WHERE owner_id = $1`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count persons: %w", err)
	}
	return n, nil
}

// SearchPersons finds the owner's persons closest to an embedding.
func (s *PostgresStore) SearchPersons(ctx context.Context, ownerID string, embedding []float32, threshold float64, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, 1 - (embedding <=> $1) AS score
		FROM persons
		WHERE owner_id = $2
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1, seq
		LIMIT $4`,
		vec, ownerID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search persons: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.PersonID, &m.Name, &m.Score); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// --- Photos ---

func scanPhotos(rows pgx.Rows) ([]models.Photo, error) {
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.Seq, &p.OwnerID, &p.Filename, &p.AssetKey, &p.ContentType, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func (s *PostgresStore) CreatePhoto(ctx context.Context, p *models.Photo) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO photos (id, owner_id, filename, asset_key, content_type)
		 VALUES ($1, $2, $3, $4, $5) RETURNING seq, created_at`,
		p.ID, p.OwnerID, p.Filename, p.AssetKey, p.ContentType,
	).Scan(&p.Seq, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create photo: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPhoto(ctx context.Context, ownerID string, id uuid.UUID) (*models.Photo, error) {
	var p models.Photo
	err := s.pool.QueryRow(ctx,
		`SELECT id, seq, owner_id, filename, asset_key, content_type, created_at
		 FROM photos WHERE id = $1 AND owner_id = $2`, id, ownerID,
	).Scan(&p.ID, &p.Seq, &p.OwnerID, &p.Filename, &p.AssetKey, &p.ContentType, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListPersonPhotos(ctx context.Context, ownerID string, personID uuid.UUID) ([]models.PersonPhoto, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ph.id, ph.seq, ph.owner_id, ph.filename, ph.asset_key, ph.content_type, ph.created_at, pp.status
		 FROM photo_persons pp
		 JOIN photos ph ON ph.id = pp.photo_id
		 JOIN persons p ON p.id = pp.person_id
		 WHERE pp.person_id = $1 AND p.owner_id = $2 AND ph.owner_id = $2
		 ORDER BY ph.seq`, personID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list person photos: %w", err)
	}
	defer rows.Close()

	var photos []models.PersonPhoto
	for rows.Next() {
		pp := models.PersonPhoto{PersonID: personID}
		if err := rows.Scan(&pp.ID, &pp.Seq, &pp.OwnerID, &pp.Filename, &pp.AssetKey,
			&pp.ContentType, &pp.CreatedAt, &pp.Status); err != nil {
			return nil, fmt.Errorf("scan person photo: %w", err)
		}
		photos = append(photos, pp)
	}
	return photos, rows.Err()
}

func (s *PostgresStore) RecentPhotos(ctx context.Context, ownerID string, limit int) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, seq, owner_id, filename, asset_key, content_type, created_at
		 FROM photos WHERE owner_id = $1 ORDER BY seq DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent photos: %w", err)
	}
	return scanPhotos(rows)
}

func (s *PostgresStore) CountPhotos(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM photos WHERE owner_id = $1`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count photos: %w", err)
	}
	return n, nil
}

// --- Links ---

func (s *PostgresStore) AddLink(ctx context.Context, photoID, personID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO photo_persons (photo_id, person_id, status) VALUES ($1, $2, $3)
		 ON CONFLICT (photo_id, person_id) DO NOTHING`,
		photoID, personID, models.LinkPending)
	if err != nil {
		return false, fmt.Errorf("add link: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SetLinkStatus(ctx context.Context, photoID, personID uuid.UUID, status models.LinkStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE photo_persons SET status = $1, error = $2 WHERE photo_id = $3 AND person_id = $4`,
		status, errMsg, photoID, personID)
	if err != nil {
		return fmt.Errorf("set link status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListLinks(ctx context.Context, ownerID string, photoID uuid.UUID) ([]models.PhotoPersonLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pp.photo_id, pp.person_id, pp.status, pp.error, pp.created_at
		 FROM photo_persons pp
		 JOIN photos ph ON ph.id = pp.photo_id
		 JOIN persons p ON p.id = pp.person_id
		 WHERE pp.photo_id = $1 AND ph.owner_id = $2
		 ORDER BY p.seq`, photoID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var links []models.PhotoPersonLink
	for rows.Next() {
		var l models.PhotoPersonLink
		if err := rows.Scan(&l.PhotoID, &l.PersonID, &l.Status, &l.Error, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *PostgresStore) RemoveLink(ctx context.Context, ownerID string, photoID, personID uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin remove link: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`DELETE FROM photo_persons pp
		 USING photos ph
		 WHERE pp.photo_id = ph.id AND ph.owner_id = $1
		   AND pp.photo_id = $2 AND pp.person_id = $3`,
		ownerID, photoID, personID)
	if err != nil {
		return false, fmt.Errorf("remove link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, ErrNotFound
	}

	tag, err = tx.Exec(ctx,
		`DELETE FROM photos ph
		 WHERE ph.id = $1 AND NOT EXISTS (SELECT 1 FROM photo_persons pp WHERE pp.photo_id = ph.id)`,
		photoID)
	if err != nil {
		return false, fmt.Errorf("delete unlinked photo: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit remove link: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// --- Deliveries ---

func (s *PostgresStore) CreateDelivery(ctx context.Context, d *models.DeliveryRecord) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO deliveries (id, owner_id, person_id, recipient, photo_count, status, message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		d.ID, d.OwnerID, d.PersonID, d.Recipient, d.PhotoCount, d.Status, d.Message,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, ownerID string) ([]models.DeliveryRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT d.id, d.owner_id, d.person_id, COALESCE(p.name, ''), d.recipient,
		        d.photo_count, d.status, d.message, d.created_at
		 FROM deliveries d
		 LEFT JOIN persons p ON p.id = d.person_id
		 WHERE d.owner_id = $1
		 ORDER BY d.created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []models.DeliveryRecord
	for rows.Next() {
		var d models.DeliveryRecord
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.PersonID, &d.PersonName, &d.Recipient,
			&d.PhotoCount, &d.Status, &d.Message, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountDeliveries(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deliveries WHERE owner_id = $1`, ownerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return n, nil
}
