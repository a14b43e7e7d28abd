package embeddings

import (
	"context"
	"fmt"

	"github.com/adonese/plstats/apperr"
)

// EmbeddingType names an embedding provider and its collection.
type EmbeddingType string

const (
	OpenAI      EmbeddingType = "openai"
	HuggingFace EmbeddingType = "huggingface"
)

// Types lists every provider in report order.
var Types = []EmbeddingType{OpenAI, HuggingFace}

var collectionNames = map[EmbeddingType]string{
	OpenAI:      "wikipedia-urls-content-data-openai",
	HuggingFace: "wikipedia-urls-content-data-bert",
}

func ParseType(s string) (EmbeddingType, error) {
	t := EmbeddingType(s)
	if _, ok := collectionNames[t]; !ok {
		return "", notRecognized(t)
	}
	return t, nil
}

// CollectionName returns the vector collection holding embeddings of type t.
func CollectionName(t EmbeddingType) (string, error) {
	name, ok := collectionNames[t]
	if !ok {
		return "", notRecognized(t)
	}
	return name, nil
}

func notRecognized(t EmbeddingType) error {
	return apperr.Newf(apperr.ErrEmbeddingTypeNotRecognized, fmt.Sprintf("embedding type %s not recognized", t))
}

// DataType selects what URLsData pairs with each URL.
type DataType string

const (
	Embeddings DataType = "embeddings"
	Documents  DataType = "documents"
)

// Embedder turns texts into vectors, one per text and in the same order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}
