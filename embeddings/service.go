package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adonese/plstats/apperr"
	"github.com/adonese/plstats/schemas"
	"github.com/adonese/plstats/store"
	"github.com/adonese/plstats/wiki"
	"github.com/sirupsen/logrus"
)

// ArticleFetcher returns id -> article text for the urls it could fetch.
type ArticleFetcher interface {
	Fetch(ctx context.Context, urls []string) (map[string]string, error)
}

// URLData pairs a corpus URL with its stored embedding or document.
type URLData struct {
	URL       string
	Embedding []float32
	Document  string
}

// Service manages the per-provider embedding collections of the corpus.
type Service struct {
	Store     *store.Store
	Embedders map[EmbeddingType]Embedder
	Fetcher   ArticleFetcher
	Logger    *logrus.Logger

	// URLs is the corpus; wiki.URLs when empty.
	URLs      []string
	TopN      int
	BatchSize int
}

func (s *Service) urls() []string {
	if len(s.URLs) > 0 {
		return s.URLs
	}
	return wiki.URLs
}

func (s *Service) ids() []string {
	urls := s.urls()
	ids := make([]string, len(urls))
	for i, u := range urls {
		ids[i] = wiki.HashURL(u)
	}
	return ids
}

func (s *Service) mapping() map[string]string {
	m := make(map[string]string)
	for _, u := range s.urls() {
		m[wiki.HashURL(u)] = u
	}
	return m
}

func (s *Service) embedder(t EmbeddingType) (Embedder, error) {
	if _, err := CollectionName(t); err != nil {
		return nil, err
	}
	e, ok := s.Embedders[t]
	if !ok || e == nil {
		return nil, apperr.Newf(apperr.ErrUnavailable, fmt.Sprintf("no embedder configured for %s", t))
	}
	return e, nil
}

// Collection returns the collection of type t, creating it when missing.
func (s *Service) Collection(ctx context.Context, t EmbeddingType) (*store.Collection, error) {
	name, err := CollectionName(t)
	if err != nil {
		return nil, err
	}
	e, err := s.embedder(t)
	if err != nil {
		return nil, err
	}
	c, err := s.Store.GetOrCreateCollection(ctx, name, e.Model())
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return c, nil
}

// CheckURLsInCollection reports whether every corpus URL is stored in the
// collection of type t.
func (s *Service) CheckURLsInCollection(ctx context.Context, t EmbeddingType) (bool, error) {
	c, err := s.Collection(ctx, t)
	if err != nil {
		return false, err
	}
	ids := s.ids()
	recs, err := c.Get(ctx, ids, false)
	if err != nil {
		return false, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	return len(recs) == len(ids), nil
}

// RequireURLsInCollection fails with ErrEmbeddingNotFound unless the
// collection of type t is complete.
func (s *Service) RequireURLsInCollection(ctx context.Context, t EmbeddingType) error {
	ok, err := s.CheckURLsInCollection(ctx, t)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Newf(apperr.ErrEmbeddingNotFound, fmt.Sprintf("embedding type %s not found in collection", t))
	}
	return nil
}

// CreateEmbeddings fetches the corpus and stores its embeddings in the
// collections of types, or of every provider when none are given. Articles that could not be fetched are skipped and
// reported in the returned error; a rerun fills the gaps.
func (s *Service) CreateEmbeddings(ctx context.Context, types ...EmbeddingType) error {
	if len(types) == 0 {
		types = Types
	}
	start := time.Now()
	fetched, fetchErr := s.Fetcher.Fetch(ctx, s.urls())
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if len(fetched) == 0 {
		if fetchErr == nil {
			fetchErr = errors.New("no articles fetched")
		}
		return apperr.Wrap(fetchErr, apperr.ErrUpstream, "")
	}

	var ids, docs []string
	for _, id := range s.ids() {
		if text, ok := fetched[id]; ok {
			ids = append(ids, id)
			docs = append(docs, text)
		}
	}

	for _, t := range types {
		if err := s.addDocuments(ctx, t, ids, docs); err != nil {
			return err
		}
	}
	s.Logger.WithFields(logrus.Fields{
		"documents":   len(ids),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("embeddings created")

	if fetchErr != nil {
		return apperr.Wrap(fetchErr, apperr.ErrUpstream, fmt.Sprintf("%d of %d articles could not be fetched", len(s.urls())-len(ids), len(s.urls())))
	}
	return nil
}

// ResetCollections drops the collections of types so the next
// CreateEmbeddings rebuilds them, e.g. after a model change.
func (s *Service) ResetCollections(ctx context.Context, types ...EmbeddingType) error {
	if len(types) == 0 {
		types = Types
	}
	for _, t := range types {
		name, err := CollectionName(t)
		if err != nil {
			return err
		}
		if err := s.Store.DeleteCollection(ctx, name); err != nil && !errors.Is(err, store.ErrCollectionNotFound) {
			return apperr.Wrap(err, apperr.ErrDatabase, "")
		}
		s.Logger.WithField("collection", name).Info("collection reset")
	}
	return nil
}

func (s *Service) addDocuments(ctx context.Context, t EmbeddingType, ids, docs []string) error {
	c, err := s.Collection(ctx, t)
	if err != nil {
		return err
	}
	e, err := s.embedder(t)
	if err != nil {
		return err
	}
	existing, err := c.Get(ctx, ids, false)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	have := make(map[string]bool, len(existing))
	for _, r := range existing {
		have[r.ID] = true
	}
	var newIDs, newDocs []string
	for i, id := range ids {
		if !have[id] {
			newIDs = append(newIDs, id)
			newDocs = append(newDocs, docs[i])
		}
	}

	batch := s.BatchSize
	if batch <= 0 {
		batch = len(newIDs)
	}
	for lo := 0; lo < len(newIDs); lo += batch {
		hi := min(lo+batch, len(newIDs))
		vectors, err := e.Embed(ctx, newDocs[lo:hi])
		if err != nil {
			return fmt.Errorf("embed %s batch %d-%d: %w", t, lo, hi, err)
		}
		if err := c.Add(ctx, newIDs[lo:hi], newDocs[lo:hi], vectors); err != nil {
			return apperr.Wrap(err, apperr.ErrDatabase, "")
		}
	}
	s.Logger.WithFields(logrus.Fields{
		"collection": c.Name,
		"added":      len(newIDs),
		"skipped":    len(ids) - len(newIDs),
	}).Info("collection updated")
	return nil
}

// URLsData returns (url, embedding) or (url, document) pairs, in corpus
// order, for the corpus URLs present in the collection of type t.
func (s *Service) URLsData(ctx context.Context, dataType DataType, t EmbeddingType) ([]URLData, error) {
	if dataType != Embeddings && dataType != Documents {
		return nil, apperr.Newf(apperr.ErrBadRequest, fmt.Sprintf("data type %s not supported", dataType))
	}
	c, err := s.Collection(ctx, t)
	if err != nil {
		return nil, err
	}
	recs, err := c.Get(ctx, s.ids(), dataType == Embeddings)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrDatabase, "")
	}
	mapping := s.mapping()
	out := make([]URLData, len(recs))
	for i, r := range recs {
		out[i] = URLData{URL: mapping[r.ID]}
		if dataType == Embeddings {
			out[i].Embedding = r.Embedding
		} else {
			out[i].Document = r.Document
		}
	}
	return out, nil
}

// Top5 searches each collection with the title of every corpus article and
// returns the nearest articles per provider.
func (s *Service) Top5(ctx context.Context) ([]schemas.ChromaSearch, error) {
	for _, t := range Types {
		if err := s.RequireURLsInCollection(ctx, t); err != nil {
			return nil, err
		}
	}
	n := s.TopN
	if n <= 0 {
		n = 5
	}

	urls := s.urls()
	queries := make([]string, len(urls))
	for i, u := range urls {
		queries[i] = wiki.QueryText(u)
	}
	mapping := s.mapping()

	results := make(map[EmbeddingType][][]string, len(Types))
	for _, t := range Types {
		e, err := s.embedder(t)
		if err != nil {
			return nil, err
		}
		c, err := s.Collection(ctx, t)
		if err != nil {
			return nil, err
		}
		vectors, err := e.Embed(ctx, queries)
		if err != nil {
			return nil, fmt.Errorf("embed %s queries: %w", t, err)
		}
		perURL := make([][]string, len(urls))
		for i, v := range vectors {
			matches, err := c.Query(ctx, v, n)
			if err != nil {
				return nil, apperr.Wrap(err, apperr.ErrDatabase, "")
			}
			found := make([]string, 0, len(matches))
			for _, m := range matches {
				if u, ok := mapping[m.ID]; ok {
					found = append(found, u)
				}
			}
			perURL[i] = found
		}
		results[t] = perURL
	}

	out := make([]schemas.ChromaSearch, len(urls))
	for i, u := range urls {
		out[i] = schemas.ChromaSearch{
			URL:                    u,
			QueryText:              queries[i],
			OpenAITop5Results:      results[OpenAI][i],
			HuggingFaceTop5Results: results[HuggingFace][i],
		}
	}
	return out, nil
}
