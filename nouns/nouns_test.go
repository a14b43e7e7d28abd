package nouns

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adonese/plstats/apperr"
	"github.com/adonese/plstats/config"
	"github.com/adonese/plstats/embeddings"
	"github.com/adonese/plstats/schemas"
	"github.com/adonese/plstats/store"
	"github.com/adonese/plstats/upstream"
	"github.com/adonese/plstats/wiki"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var documents = map[string]string{
	"https://pl.wikipedia.org/wiki/Kot":  "Kot kot pies Kot biega biega",
	"https://pl.wikipedia.org/wiki/Pies": "pies pies ryba ryba ryba",
	"https://pl.wikipedia.org/wiki/Ryba": "ryba",
}

var testURLs = []string{
	"https://pl.wikipedia.org/wiki/Kot",
	"https://pl.wikipedia.org/wiki/Pies",
	"https://pl.wikipedia.org/wiki/Ryba",
}

type docFetcher struct{}

func (docFetcher) Fetch(_ context.Context, urls []string) (map[string]string, error) {
	out := map[string]string{}
	for _, u := range urls {
		out[wiki.HashURL(u)] = documents[u]
	}
	return out, nil
}

type constEmbedder struct{}

func (constEmbedder) Model() string { return "const" }

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// wordTagger tags every whitespace separated word, letting overrides
// replace the default NOUN token.
type wordTagger struct {
	overrides map[string]Token
	err       error
}

func (w wordTagger) Tag(_ context.Context, text string) ([]Token, error) {
	if w.err != nil {
		return nil, w.err
	}
	if text != strings.ToLower(text) {
		return nil, errors.New("text was not lowercased")
	}
	var out []Token
	for _, word := range strings.Fields(text) {
		tok, ok := w.overrides[word]
		if !ok {
			tok = Token{Text: word, Lemma: word, UPOS: UPOSNoun}
		}
		out = append(out, tok)
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
				embeddings.OpenAI:      constEmbedder{},
				embeddings.HuggingFace: constEmbedder{},
			},
			Fetcher: docFetcher{},
			Logger:  logger,
			URLs:    testURLs,
		},
		Stanza: wordTagger{overrides: map[string]Token{
			"biega": {Text: "biega", Lemma: "biegać", UPOS: "VERB"},
		}},
		Spacy: wordTagger{overrides: map[string]Token{
			"biega": {Text: "biega", Lemma: "Biegać", UPOS: UPOSProperNoun},
		}},
		DataDir:     t.TempDir(),
		Concurrency: 2,
		Logger:      logger,
	}
}

func TestCountNouns(t *testing.T) {
	tokens := []Token{
		{Text: "Kot", Lemma: "Kot", UPOS: UPOSProperNoun},
		{Text: "kot", Lemma: "kot", UPOS: UPOSNoun},
		{Text: "biegnie", Lemma: "biec", UPOS: "VERB"},
		{Text: "biegnie", Lemma: "biec", UPOS: "VERB"},
		{Text: "pies", Lemma: "pies", UPOS: UPOSNoun},
		{Text: "?", Lemma: "", UPOS: UPOSNoun},
		{Text: "?", Lemma: "", UPOS: UPOSNoun},
	}
	tests := []struct {
		name         string
		requireLemma bool
		want         map[string]int
	}{
		{"lemma required", true, map[string]int{"kot": 2}},
		{"empty lemma counted", false, map[string]int{"kot": 2, "": 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountNouns(tokens, tt.requireLemma))
		})
	}
}

func TestHTTPTagger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tag", r.URL.Path)
		var req tagRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "kot śpi", req.Text)
		assert.Equal(t, "pl", req.Lang)
		assert.Equal(t, "tokenize,mwt,pos,lemma", req.Processors)
		_, _ = io.WriteString(w, `{"tokens":[{"text":"kot","lemma":"kot","upos":"NOUN"},{"text":"śpi","lemma":"spać","upos":"VERB"}]}`)
	}))
	defer srv.Close()

	logger := logrus.New()
	logger.Out = io.Discard
	cfg := config.Config{Stanza: config.Tagger{BaseURL: srv.URL + "/"}}
	cfg.Defaults()
	tagger := NewHTTPTagger(upstream.New("stanza", time.Second, "", logger), cfg.Stanza)

	got, err := tagger.Tag(context.Background(), "kot śpi")
	require.NoError(t, err)
	assert.Equal(t, []Token{{"kot", "kot", "NOUN"}, {"śpi", "spać", "VERB"}}, got)

	_, err = NewHTTPTagger(upstream.New("spacy", time.Second, "", logger), config.Tagger{}).Tag(context.Background(), "x")
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))
}

func TestTaggerDefaults(t *testing.T) {
	var cfg config.Config
	cfg.Defaults()
	stanza := NewHTTPTagger(nil, cfg.Stanza)
	spacy := NewHTTPTagger(nil, cfg.Spacy)

	assert.Equal(t, stanza.Lang, spacy.Lang)
	assert.Equal(t, "tokenize,mwt,pos,lemma", stanza.Processors)
	assert.Equal(t, "pl_core_news_sm", spacy.Model)
}

func TestCalculateAndSave(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	err := s.CalculateAndSave(ctx)
	assert.True(t, errors.Is(err, apperr.ErrEmbeddingNotFound))

	require.NoError(t, s.Embeddings.CreateEmbeddings(ctx))
	require.NoError(t, s.CalculateAndSave(ctx))

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	want := strings.Join([]string{
		"url,noun,stanza,spacy",
		"https://pl.wikipedia.org/wiki/Kot,biegać,0,2",
		"https://pl.wikipedia.org/wiki/Kot,kot,3,3",
		"https://pl.wikipedia.org/wiki/Pies,pies,2,2",
		"https://pl.wikipedia.org/wiki/Pies,ryba,3,3",
		"",
	}, "\n")
	assert.Equal(t, want, string(raw))

	got, err := GetFrequencies(s.Path())
	require.NoError(t, err)
	assert.Equal(t, []schemas.Nouns{
		{URL: testURLs[0], Nouns: []schemas.Noun{{Noun: "kot", Stanza: 3, Spacy: 3}, {Noun: "biegać", Stanza: 0, Spacy: 2}}},
		{URL: testURLs[1], Nouns: []schemas.Noun{{Noun: "ryba", Stanza: 3, Spacy: 3}, {Noun: "pies", Stanza: 2, Spacy: 2}}},
	}, got)
}

func TestCalculateAndSaveTaggerFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	require.NoError(t, s.Embeddings.CreateEmbeddings(ctx))
	s.Stanza = wordTagger{err: apperr.Newf(apperr.ErrUpstream, "stanza is down")}

	err := s.CalculateAndSave(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestGetFrequencies(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"url,noun,stanza,spacy",
		"b,x,1.0,5.0",
		"a,y,2.0,0.0",
		"b,z,1.0,7.0",
		"b,w,4.0,0.0",
	}, "\n")), 0o644))

	got, err := GetFrequencies(path)
	require.NoError(t, err)
	assert.Equal(t, []schemas.Nouns{
		{URL: "b", Nouns: []schemas.Noun{{Noun: "w", Stanza: 4}, {Noun: "z", Stanza: 1, Spacy: 7}, {Noun: "x", Stanza: 1, Spacy: 5}}},
		{URL: "a", Nouns: []schemas.Noun{{Noun: "y", Stanza: 2}}},
	}, got)

	_, err = GetFrequencies(filepath.Join(t.TempDir(), FileName))
	assert.True(t, errors.Is(err, apperr.ErrStatsNotReady))
}
