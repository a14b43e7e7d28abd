package similarity

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adonese/plstats/apperr"
	"github.com/adonese/plstats/embeddings"
	"github.com/adonese/plstats/store"
	"github.com/adonese/plstats/wiki"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testURLs = []string{
	"https://pl.wikipedia.org/wiki/Kot",
	"https://pl.wikipedia.org/wiki/Pies",
	"https://pl.wikipedia.org/wiki/Ryba",
}

type vectorEmbedder struct {
	model   string
	vectors map[string][]float32
}

func (v vectorEmbedder) Model() string { return v.model }

func (v vectorEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		for k, vec := range v.vectors {
			if strings.Contains(strings.ToLower(t), k) {
				out[i] = vec
			}
		}
		if out[i] == nil {
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, urls []string) (map[string]string, error) {
	out := map[string]string{}
	for _, u := range urls {
		out[wiki.HashURL(u)] = "artykuł o " + strings.ToLower(wiki.QueryText(u))
	}
	return out, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := store.OpenFromConfig("", filepath.Join(t.TempDir(), "test.db"), "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))

	logger := logrus.New()
	logger.Out = io.Discard
	return &Service{
		Embeddings: &embeddings.Service{
			Store: store.New(db),
			Embedders: map[embeddings.EmbeddingType]embeddings.Embedder{
				embeddings.OpenAI: vectorEmbedder{model: "oa", vectors: map[string][]float32{
					"kot":  {1, 0, 0},
					"pies": {1, 1, 0},
				}},
				embeddings.HuggingFace: vectorEmbedder{model: "hf", vectors: map[string][]float32{
					"kot":  {0, 1, 0},
					"pies": {0, 1, 1},
				}},
			},
			Fetcher: stubFetcher{},
			Logger:  logger,
			URLs:    testURLs,
		},
		DataDir: t.TempDir(),
		Logger:  logger,
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"diagonal", []float32{1, 0}, []float32{1, 1}, 0.7071},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Round4(Cosine(tt.a, tt.b)))
		})
	}
}

func TestCalculate(t *testing.T) {
	data := []embeddings.URLData{
		{URL: "a", Embedding: []float32{1, 0}},
		{URL: "b", Embedding: []float32{0, 1}},
		{URL: "c", Embedding: []float32{1, 1}},
	}
	got := Calculate(data)
	want := []Group{
		{URL: "a", Similarities: []Entry{{URL2: "b", Similarity: 0}, {URL2: "c", Similarity: 0.7071}}},
		{URL: "b", Similarities: []Entry{{URL2: "c", Similarity: 0.7071}}},
	}
	assert.Equal(t, want, got)

	assert.Empty(t, Calculate(nil))
	assert.Empty(t, Calculate(data[:1]))
}

func TestCalculateSimilaritiesCreatesEmbeddings(t *testing.T) {
	s := newTestService(t)
	groups, err := s.CalculateSimilarities(context.Background(), embeddings.OpenAI)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, testURLs[0], groups[0].URL)
	assert.Equal(t, Entry{URL2: testURLs[1], Similarity: 0.7071}, groups[0].Similarities[0])

	_, err = s.CalculateSimilarities(context.Background(), "cohere")
	assert.True(t, errors.Is(err, apperr.ErrEmbeddingTypeNotRecognized))
}

func TestSaveAndLoadCSV(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.SaveToCSV(context.Background()))

	got, err := LoadFromCSV(s.Path())
	require.NoError(t, err)
	want := []struct {
		urls   string
		oa, hf float64
	}{
		{PairKey(testURLs[0], testURLs[1]), 0.7071, 0.7071},
		{PairKey(testURLs[0], testURLs[2]), 0, 0},
		{PairKey(testURLs[1], testURLs[2]), 0, 0.7071},
	}
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.Equal(t, w.urls, got[i].Urls)
		assert.Equal(t, w.oa, got[i].OpenAI, w.urls)
		assert.Equal(t, w.hf, got[i].HuggingFace, w.urls)
	}
}

func TestLoadFromCSVMissing(t *testing.T) {
	_, err := LoadFromCSV(filepath.Join(t.TempDir(), FileName))
	assert.True(t, errors.Is(err, apperr.ErrStatsNotReady))
}
