package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrLengthMismatch     = errors.New("ids, documents and embeddings differ in length")
	ErrDimensionMismatch  = errors.New("embedding dimension does not match collection")
)

// Store provides manual-SQL access to embedding collections.
type Store struct {
	DB       *DB
	distance string
}

func New(db *DB, opts ...Option) *Store {
	options := StoreOptions{Distance: DistanceL2}
	for _, opt := range opts {
		opt(&options)
	}
	return &Store{DB: db, distance: options.Distance}
}

func (s *Store) ensureDB() (*sqlx.DB, error) {
	if s == nil || s.DB == nil || s.DB.DB == nil {
		return nil, fmt.Errorf("nil db")
	}
	return s.DB.DB, nil
}

func (s *Store) Ping(ctx context.Context) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Collection is a named set of embedded documents sharing one metric.
type Collection struct {
	Name           string    `db:"name" json:"name"`
	EmbeddingModel string    `db:"embedding_model" json:"embedding_model"`
	Distance       string    `db:"distance" json:"distance"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`

	store *Store
}

// Record is one stored document. Embedding is nil unless requested.
type Record struct {
	ID        string
	Document  string
	Embedding []float32
}

// Match is a query result, nearest first.
type Match struct {
	ID       string
	Document string
	Distance float64
}

// GetOrCreateCollection returns the named collection, creating it with the
// store's distance when missing. An existing collection keeps its settings.
func (s *Store) GetOrCreateCollection(ctx context.Context, name, model string) (*Collection, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	if _, err := distanceFor(s.distance); err != nil {
		return nil, err
	}
	stmt := s.DB.Rebind("INSERT INTO collections(name, embedding_model, distance, created_at) VALUES(?, ?, ?, ?) ON CONFLICT(name) DO NOTHING")
	if _, err := db.ExecContext(ctx, stmt, name, model, s.distance, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	return s.GetCollection(ctx, name)
}

func (s *Store) GetCollection(ctx context.Context, name string) (*Collection, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}
	var c Collection
	stmt := s.DB.Rebind("SELECT name, embedding_model, distance, created_at FROM collections WHERE name = ?")
	if err := db.GetContext(ctx, &c, stmt, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
		}
		return nil, err
	}
	c.store = s
	return &c, nil
}

// DeleteCollection removes a collection and its records.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, s.DB.Rebind("DELETE FROM records WHERE collection = ?"), name); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, s.DB.Rebind("DELETE FROM collections WHERE name = ?"), name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return tx.Commit()
}

// Add inserts records. Ids already present are left untouched. documents
// may be nil; otherwise it must match ids in length like embeddings.
func (c *Collection) Add(ctx context.Context, ids, documents []string, embeddings [][]float32) error {
	if len(ids) != len(embeddings) || (documents != nil && len(documents) != len(ids)) {
		return ErrLengthMismatch
	}
	if len(ids) == 0 {
		return nil
	}
	dim, err := c.dimension(ctx)
	if err != nil {
		return err
	}
	for i, e := range embeddings {
		if dim == 0 {
			dim = len(e)
		}
		if len(e) == 0 || len(e) != dim {
			return fmt.Errorf("%w: record %s has %d, want %d", ErrDimensionMismatch, ids[i], len(e), dim)
		}
	}

	s := c.store
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt := s.DB.Rebind(`INSERT INTO records(collection, id, document, embedding, dimension, created_at)
		VALUES(?, ?, ?, ?, ?, ?) ON CONFLICT(collection, id) DO NOTHING`)
	now := time.Now().UTC()
	for i, id := range ids {
		raw, err := json.Marshal(embeddings[i])
		if err != nil {
			return err
		}
		doc := ""
		if documents != nil {
			doc = documents[i]
		}
		if _, err := tx.ExecContext(ctx, stmt, c.Name, id, doc, string(raw), len(embeddings[i]), now); err != nil {
			return fmt.Errorf("add %s to %s: %w", id, c.Name, err)
		}
	}
	return tx.Commit()
}

// dimension is 0 for an empty collection.
func (c *Collection) dimension(ctx context.Context) (int, error) {
	db, err := c.store.ensureDB()
	if err != nil {
		return 0, err
	}
	var dim int
	stmt := c.store.DB.Rebind("SELECT dimension FROM records WHERE collection = ? AND dimension > 0 LIMIT 1")
	if err := db.GetContext(ctx, &dim, stmt, c.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return dim, nil
}

type recordRow struct {
	ID        string `db:"id"`
	Document  string `db:"document"`
	Embedding string `db:"embedding"`
}

func (r recordRow) record(withEmbedding bool) (Record, error) {
	rec := Record{ID: r.ID, Document: r.Document}
	if withEmbedding {
		if err := json.Unmarshal([]byte(r.Embedding), &rec.Embedding); err != nil {
			return Record{}, fmt.Errorf("decode embedding %s: %w", r.ID, err)
		}
	}
	return rec, nil
}

// Get returns the records among ids that exist, in the order of ids.
func (c *Collection) Get(ctx context.Context, ids []string, withEmbeddings bool) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db, err := c.store.ensureDB()
	if err != nil {
		return nil, err
	}
	cols := "id, document, '' AS embedding"
	if withEmbeddings {
		cols = "id, document, embedding"
	}
	query, args, err := sqlx.In("SELECT "+cols+" FROM records WHERE collection = ? AND id IN (?)", c.Name, ids)
	if err != nil {
		return nil, err
	}
	var rows []recordRow
	if err := db.SelectContext(ctx, &rows, c.store.DB.Rebind(query), args...); err != nil {
		return nil, err
	}
	byID := make(map[string]recordRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}

	out := make([]Record, 0, len(rows))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		rec, err := r.record(withEmbeddings)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	db, err := c.store.ensureDB()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.GetContext(ctx, &n, c.store.DB.Rebind("SELECT COUNT(*) FROM records WHERE collection = ?"), c.Name)
	return n, err
}

// Query returns up to n records nearest to embedding under the collection
// metric, ascending by distance and then id.
func (c *Collection) Query(ctx context.Context, embedding []float32, n int) ([]Match, error) {
	if n <= 0 {
		return nil, nil
	}
	dist, err := distanceFor(c.Distance)
	if err != nil {
		return nil, err
	}
	db, err := c.store.ensureDB()
	if err != nil {
		return nil, err
	}
	var rows []recordRow
	if err := db.SelectContext(ctx, &rows, c.store.DB.Rebind("SELECT id, document, embedding FROM records WHERE collection = ?"), c.Name); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		rec, err := r.record(true)
		if err != nil {
			return nil, err
		}
		if len(rec.Embedding) != len(embedding) {
			return nil, fmt.Errorf("%w: query has %d, record %s has %d", ErrDimensionMismatch, len(embedding), rec.ID, len(rec.Embedding))
		}
		matches = append(matches, Match{ID: rec.ID, Document: rec.Document, Distance: dist(embedding, rec.Embedding)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches, nil
}
