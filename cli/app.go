package main

import (
	"context"
	"fmt"
	"time"

	"github.com/adonese/plstats/config"
	"github.com/adonese/plstats/embeddings"
	"github.com/adonese/plstats/nouns"
	"github.com/adonese/plstats/similarity"
	"github.com/adonese/plstats/stats"
	"github.com/adonese/plstats/store"
	"github.com/adonese/plstats/upstream"
	"github.com/adonese/plstats/wiki"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const migrateTimeout = 30 * time.Second

// application holds every service built from one configuration.
type application struct {
	cfg    config.Config
	logger *logrus.Logger

	db         *store.DB
	store      *store.Store
	cache      *redis.Client
	embeddings *embeddings.Service
	similarity *similarity.Service
	nouns      *nouns.Service
	stats      *stats.Service
}

func newApplication(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*application, error) {
	db, err := store.OpenFromConfig(cfg.DatabaseURL, cfg.DatabasePath, cfg.DatabaseDriver)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	migrateCtx, cancel := context.WithTimeout(ctx, migrateTimeout)
	defer cancel()
	if err := store.Migrate(migrateCtx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &application{
		cfg:    cfg,
		logger: logger,
		db:     db,
		store:  store.New(db, store.WithDistance(cfg.Distance)),
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("parse redis_url: %w", err)
		}
		a.cache = redis.NewClient(opts)
	}

	timeout := cfg.HTTPTimeout()
	a.embeddings = &embeddings.Service{
		Store: a.store,
		Embedders: map[embeddings.EmbeddingType]embeddings.Embedder{
			embeddings.OpenAI: &embeddings.OpenAIEmbedder{
				Client:  upstream.New("openai", timeout, cfg.UserAgent, logger),
				BaseURL: cfg.OpenAI.BaseURL,
				ModelID: cfg.OpenAI.Model,
				APIKey:  cfg.OpenAI.APIKey,
			},
			embeddings.HuggingFace: &embeddings.HuggingFaceEmbedder{
				Client:  upstream.New("huggingface", timeout, cfg.UserAgent, logger),
				BaseURL: cfg.HuggingFace.BaseURL,
				ModelID: cfg.HuggingFace.Model,
				APIKey:  cfg.HuggingFace.APIKey,
			},
		},
		Fetcher: &wiki.Fetcher{
			Client:      upstream.New("wikipedia", timeout, cfg.UserAgent, logger),
			Concurrency: cfg.FetchConcurrency,
			Logger:      logger,
		},
		Logger:    logger,
		TopN:      cfg.TopN,
		BatchSize: cfg.EmbedBatchSize,
	}
	a.similarity = &similarity.Service{
		Embeddings: a.embeddings,
		DataDir:    cfg.DataDir,
		Logger:     logger,
	}
	a.nouns = &nouns.Service{
		Embeddings:  a.embeddings,
		Stanza:      nouns.NewHTTPTagger(upstream.New("stanza", timeout, cfg.UserAgent, logger), cfg.Stanza),
		Spacy:       nouns.NewHTTPTagger(upstream.New("spacy", timeout, cfg.UserAgent, logger), cfg.Spacy),
		DataDir:     cfg.DataDir,
		Concurrency: cfg.NLPConcurrency,
		Logger:      logger,
	}
	a.stats = &stats.Service{
		Search:           a.embeddings,
		SimilaritiesPath: a.similarity.Path(),
		NounsPath:        a.nouns.Path(),
		Cache:            a.cache,
		CacheTTL:         cfg.StatsCacheTTL(),
		Logger:           logger,
	}
	return a, nil
}

// invalidateStats drops the cached report after a batch command rewrote
// one of its inputs.
func (a *application) invalidateStats(ctx context.Context) {
	if err := a.stats.Invalidate(ctx); err != nil {
		a.logger.WithError(err).Warn("stats cache invalidation failed")
	}
}

func (a *application) Close() error {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.WithError(err).Warn("redis close failed")
		}
	}
	return a.db.Close()
}

