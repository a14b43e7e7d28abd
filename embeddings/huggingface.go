package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/adonese/plstats/apperr"
	"github.com/adonese/plstats/upstream"
	"github.com/goccy/go-json"
)

// HuggingFaceEmbedder calls the Inference API feature-extraction pipeline
// of a sentence-transformers model.
type HuggingFaceEmbedder struct {
	Client  *upstream.Client
	BaseURL string
	ModelID string
	APIKey  string
}

type hfRequest struct {
	Inputs  []string  `json:"inputs"`
	Options hfOptions `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

func (h *HuggingFaceEmbedder) Model() string { return h.ModelID }

func (h *HuggingFaceEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	headers := map[string]string{}
	if h.APIKey != "" {
		headers["Authorization"] = "Bearer " + h.APIKey
	}
	url := fmt.Sprintf("%s/%s/pipeline/feature-extraction", strings.TrimSuffix(h.BaseURL, "/"), h.ModelID)

	var raw json.RawMessage
	if err := h.Client.PostJSON(ctx, "feature-extraction", url, headers, hfRequest{Inputs: texts, Options: hfOptions{WaitForModel: true}}, &raw); err != nil {
		return nil, err
	}
	out, err := decodeFeatures(raw)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrUpstream, "")
	}
	if len(out) != len(texts) {
		return nil, apperr.Newf(apperr.ErrUpstream, fmt.Sprintf("huggingface returned %d embeddings for %d inputs", len(out), len(texts)))
	}
	return out, nil
}

// decodeFeatures accepts pooled sentence vectors or, for models served
// without pooling, per-token vectors which are mean pooled.
func decodeFeatures(raw []byte) ([][]float32, error) {
	var pooled [][]float32
	if err := json.Unmarshal(raw, &pooled); err == nil {
		return pooled, nil
	}
	var tokens [][][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("decode feature-extraction response: %w", err)
	}
	out := make([][]float32, len(tokens))
	for i, seq := range tokens {
		out[i] = meanPool(seq)
	}
	return out, nil
}

func meanPool(seq [][]float32) []float32 {
	if len(seq) == 0 {
		return nil
	}
	sum := make([]float64, len(seq[0]))
	for _, tok := range seq {
		for j := range sum {
			if j < len(tok) {
				sum[j] += float64(tok[j])
			}
		}
	}
	out := make([]float32, len(sum))
	for j, v := range sum {
		out[j] = float32(v / float64(len(seq)))
	}
	return out
}
