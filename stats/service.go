// Package stats assembles the aggregated report served by GET /urls/get-stats.
package stats

import (
	"context"
	"errors"
	"time"

	"github.com/adonese/plstats/apperr"
	"github.com/adonese/plstats/embeddings"
	"github.com/adonese/plstats/nouns"
	"github.com/adonese/plstats/schemas"
	"github.com/adonese/plstats/similarity"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const CacheKey = "plstats:stats"

// Searcher runs the per-article nearest neighbour search.
type Searcher interface {
	Top5(ctx context.Context) ([]schemas.ChromaSearch, error)
}

var _ Searcher = (*embeddings.Service)(nil)

// Service builds the report from the vector collections and the CSV
// artefacts, optionally caching the encoded result in Redis.
type Service struct {
	Search           Searcher
	SimilaritiesPath string
	NounsPath        string
	Cache            *redis.Client
	CacheTTL         time.Duration
	Logger           *logrus.Logger
}

// Build computes the report without touching the cache.
func (s *Service) Build(ctx context.Context) (*schemas.FinalResponse, error) {
	top5, err := s.Search.Top5(ctx)
	if err != nil {
		return nil, err
	}
	sims, err := similarity.LoadFromCSV(s.SimilaritiesPath)
	if err != nil {
		return nil, err
	}
	freqs, err := nouns.GetFrequencies(s.NounsPath)
	if err != nil {
		return nil, err
	}
	return &schemas.FinalResponse{
		ChromaDBTop5: top5,
		Similarities: sims,
		Nouns:        freqs,
	}, nil
}

// Report returns the JSON encoded report and whether it came from the
// cache. refresh skips the cache lookup but still stores the new report.
func (s *Service) Report(ctx context.Context, refresh bool) ([]byte, bool, error) {
	if s.Cache != nil && !refresh {
		cached, err := s.Cache.Get(ctx, CacheKey).Bytes()
		switch {
		case err == nil:
			return cached, true, nil
		case !errors.Is(err, redis.Nil):
			s.Logger.WithError(err).Warn("stats cache read failed")
		}
	}

	report, err := s.Build(ctx)
	if err != nil {
		return nil, false, err
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, false, apperr.Wrap(err, apperr.ErrMarshal, "")
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, CacheKey, payload, s.CacheTTL).Err(); err != nil {
			s.Logger.WithError(err).Warn("stats cache write failed")
		}
	}
	return payload, false, nil
}

// Invalidate drops the cached report, after the batch commands rewrite the
// artefacts.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.Cache == nil {
		return nil
	}
	return s.Cache.Del(ctx, CacheKey).Err()
}
