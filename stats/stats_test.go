package stats

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adonese/plstats/apperr"
	gateway "github.com/adonese/plstats/apigateway"
	"github.com/adonese/plstats/csvfile"
	"github.com/adonese/plstats/schemas"
	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	kot  = "https://pl.wikipedia.org/wiki/Kot"
	pies = "https://pl.wikipedia.org/wiki/Pies"
)

type fakeSearch struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSearch) Top5(context.Context) ([]schemas.ChromaSearch, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []schemas.ChromaSearch{{
		URL:                    kot,
		QueryText:              "Kot",
		OpenAITop5Results:      []string{kot, pies},
		HuggingFaceTop5Results: []string{kot, pies},
	}}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func writeArtefacts(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, csvfile.Write(filepath.Join(dir, "similarities.csv"),
		[]string{"urls", "openai", "huggingface"},
		[][]string{{kot + " vs " + pies, "0.8123", "0.4567"}}))
	require.NoError(t, csvfile.Write(filepath.Join(dir, "nouns.csv"),
		[]string{"url", "noun", "stanza", "spacy"},
		[][]string{{kot, "kot", "2", "3"}, {kot, "ogon", "4", "0"}}))
}

func newTestApp(t *testing.T, search Searcher, cache *redis.Client, db Pinger) (*fiber.App, string) {
	t.Helper()
	dir := t.TempDir()
	logger := logrus.New()
	logger.Out = io.Discard
	h := &Handler{
		Service: &Service{
			Search:           search,
			SimilaritiesPath: filepath.Join(dir, "similarities.csv"),
			NounsPath:        filepath.Join(dir, "nouns.csv"),
			Cache:            cache,
			CacheTTL:         time.Minute,
			Logger:           logger,
		},
		DB: db,
	}
	app := fiber.New(fiber.Config{ErrorHandler: gateway.ErrorHandler})
	h.Register(app)
	return app, dir
}

func get(t *testing.T, app *fiber.App, target string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestGetStatsErrors(t *testing.T) {
	tests := []struct {
		name       string
		search     *fakeSearch
		artefacts  bool
		wantStatus int
		wantCode   string
	}{
		{
			name:       "embeddings missing",
			search:     &fakeSearch{err: apperr.Newf(apperr.ErrEmbeddingNotFound, "embedding type openai not found in collection")},
			artefacts:  true,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "embeddings_not_found",
		},
		{
			name:       "csv missing",
			search:     &fakeSearch{},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "stats_not_ready",
		},
		{
			name:       "provider down",
			search:     &fakeSearch{err: apperr.Wrap(errors.New("connection refused"), apperr.ErrUpstream, "")},
			artefacts:  true,
			wantStatus: http.StatusBadGateway,
			wantCode:   "upstream_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, dir := newTestApp(t, tt.search, nil, nil)
			if tt.artefacts {
				writeArtefacts(t, dir)
			}
			resp, body := get(t, app, "/urls/get-stats")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestReportRoutes(t *testing.T) {
	app, dir := newTestApp(t, &fakeSearch{}, nil, nil)
	writeArtefacts(t, dir)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/urls/get-stats", http.StatusOK},
		{"/get-stats", http.StatusNotFound},
		{"/healthz", http.StatusOK},
	}
	for _, tt := range tests {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
		require.NoError(t, err)
		assert.Equal(t, tt.wantStatus, resp.StatusCode, tt.path)
	}
}

func TestGetStats(t *testing.T) {
	search := &fakeSearch{}
	app, dir := newTestApp(t, search, nil, nil)
	writeArtefacts(t, dir)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/urls/get-stats", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fiber.MIMEApplicationJSON, resp.Header.Get(fiber.HeaderContentType))

	var got schemas.FinalResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, schemas.FinalResponse{
		ChromaDBTop5: []schemas.ChromaSearch{{
			URL:                    kot,
			QueryText:              "Kot",
			OpenAITop5Results:      []string{kot, pies},
			HuggingFaceTop5Results: []string{kot, pies},
		}},
		Similarities: []schemas.Similarity{{Urls: kot + " vs " + pies, OpenAI: 0.8123, HuggingFace: 0.4567}},
		Nouns: []schemas.Nouns{{URL: kot, Nouns: []schemas.Noun{
			{Noun: "ogon", Stanza: 4, Spacy: 0},
			{Noun: "kot", Stanza: 2, Spacy: 3},
		}}},
	}, got)

	_, raw := get(t, app, "/urls/get-stats")
	for _, key := range []string{"chromadb_top5", "similarities", "nouns"} {
		assert.Contains(t, raw, key)
	}
}

func TestGetStatsCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	search := &fakeSearch{}
	app, dir := newTestApp(t, search, cache, nil)
	writeArtefacts(t, dir)

	steps := []struct {
		target    string
		wantCache string
		wantCalls int32
	}{
		{"/urls/get-stats", "MISS", 1},
		{"/urls/get-stats", "HIT", 1},
		{"/urls/get-stats?refresh=true", "MISS", 2},
		{"/urls/get-stats", "HIT", 2},
	}
	for _, s := range steps {
		resp, _ := get(t, app, s.target)
		assert.Equal(t, http.StatusOK, resp.StatusCode, s.target)
		assert.Equal(t, s.wantCache, resp.Header.Get("X-Cache"), s.target)
		assert.Equal(t, s.wantCalls, search.calls.Load(), s.target)
	}
	assert.True(t, mr.Exists(CacheKey))
	assert.Greater(t, mr.TTL(CacheKey), time.Duration(0))

	svc := &Service{Cache: cache}
	require.NoError(t, svc.Invalidate(context.Background()))
	assert.False(t, mr.Exists(CacheKey))
}

func TestGetStatsCacheDown(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = cache.Close() })
	mr.Close()

	search := &fakeSearch{}
	app, dir := newTestApp(t, search, cache, nil)
	writeArtefacts(t, dir)

	resp, _ := get(t, app, "/urls/get-stats")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	resp, body := get(t, app, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "unreachable", body["cache"])
}

func TestHealthz(t *testing.T) {
	app, _ := newTestApp(t, &fakeSearch{}, nil, pinger{})
	resp, body := get(t, app, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "disabled", body["cache"])

	app, _ = newTestApp(t, &fakeSearch{}, nil, pinger{err: errors.New("disk I/O error")})
	resp, body = get(t, app, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "service_unavailable", body["code"])
}
