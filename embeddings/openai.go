package embeddings

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/adonese/plstats/apperr"
	"github.com/adonese/plstats/upstream"
)

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	Client  *upstream.Client
	BaseURL string
	ModelID string
	APIKey  string
}

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (o *OpenAIEmbedder) Model() string { return o.ModelID }

func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if o.APIKey == "" {
		return nil, apperr.Newf(apperr.ErrUnavailable, "openai api key is not configured (OPENAI_API_KEY)")
	}
	var resp openAIResponse
	err := o.Client.PostJSON(ctx, "embeddings",
		strings.TrimSuffix(o.BaseURL, "/")+"/embeddings",
		map[string]string{"Authorization": "Bearer " + o.APIKey},
		openAIRequest{Model: o.ModelID, Input: texts},
		&resp,
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, apperr.Newf(apperr.ErrUpstream, fmt.Sprintf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}
