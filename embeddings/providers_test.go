package embeddings

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adonese/plstats/apperr"
	"github.com/adonese/plstats/upstream"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(target string) *upstream.Client {
	l := logrus.New()
	l.Out = io.Discard
	return upstream.New(target, 5*time.Second, "", l)
}

func TestOpenAIEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"kot", "pies"}, req.Input)
		// out of order on purpose
		_, _ = io.WriteString(w, `{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}]}`)
	}))
	defer srv.Close()

	e := &OpenAIEmbedder{Client: testClient("openai"), BaseURL: srv.URL + "/v1/", ModelID: "text-embedding-3-small", APIKey: "sk-test"}
	got, err := e.Embed(context.Background(), []string{"kot", "pies"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)
}

func TestOpenAIEmbedErrors(t *testing.T) {
	e := &OpenAIEmbedder{Client: testClient("openai"), BaseURL: "http://127.0.0.1:1", ModelID: "m"}
	_, err := e.Embed(context.Background(), []string{"kot"})
	assert.True(t, errors.Is(err, apperr.ErrUnavailable))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()
	e = &OpenAIEmbedder{Client: testClient("openai"), BaseURL: srv.URL, ModelID: "m", APIKey: "k"}
	_, err = e.Embed(context.Background(), []string{"kot"})
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
}

func TestHuggingFaceEmbed(t *testing.T) {
	tests := []struct {
		name string
		body string
		want [][]float32
	}{
		{"pooled", `[[1,2],[3,4]]`, [][]float32{{1, 2}, {3, 4}}},
		{"token level", `[[[1,2],[3,4]],[[2,2]]]`, [][]float32{{2, 3}, {2, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/models/sentence-transformers/all-mpnet-base-v2/pipeline/feature-extraction", r.URL.Path)
				assert.Empty(t, r.Header.Get("Authorization"))
				var req hfRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.True(t, req.Options.WaitForModel)
				assert.Len(t, req.Inputs, 2)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			e := &HuggingFaceEmbedder{Client: testClient("huggingface"), BaseURL: srv.URL + "/models", ModelID: "sentence-transformers/all-mpnet-base-v2"}
			got, err := e.Embed(context.Background(), []string{"kot", "pies"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHuggingFaceEmbedBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"Model is loading"}`)
	}))
	defer srv.Close()

	e := &HuggingFaceEmbedder{Client: testClient("huggingface"), BaseURL: srv.URL, ModelID: "m", APIKey: "hf"}
	_, err := e.Embed(context.Background(), []string{"kot"})
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
}
