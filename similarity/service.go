package similarity

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adonese/plstats/csvfile"
	"github.com/adonese/plstats/embeddings"
	"github.com/adonese/plstats/schemas"
	"github.com/sirupsen/logrus"
)

const FileName = "similarities.csv"

var csvHeader = []string{"urls", "openai", "huggingface"}

// Service computes and persists the pairwise similarity table.
type Service struct {
	Embeddings *embeddings.Service
	DataDir    string
	Logger     *logrus.Logger
}

func (s *Service) Path() string {
	return filepath.Join(s.DataDir, FileName)
}

// CalculateSimilarities returns the grouped similarities under provider t,
// creating the embedding collections first when they are incomplete.
func (s *Service) CalculateSimilarities(ctx context.Context, t embeddings.EmbeddingType) ([]Group, error) {
	ok, err := s.Embeddings.CheckURLsInCollection(ctx, t)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.Embeddings.CreateEmbeddings(ctx); err != nil {
			return nil, err
		}
	}
	data, err := s.Embeddings.URLsData(ctx, embeddings.Embeddings, t)
	if err != nil {
		return nil, err
	}
	return Calculate(data), nil
}

// PairKey names a compared pair the way the CSV and the API do.
func PairKey(url1, url2 string) string {
	return url1 + " vs " + url2
}

// SaveToCSV computes the similarities under every provider and writes one
// row per pair.
func (s *Service) SaveToCSV(ctx context.Context) error {
	start := time.Now()
	var order []string
	values := map[string]map[embeddings.EmbeddingType]float64{}
	for _, t := range embeddings.Types {
		groups, err := s.CalculateSimilarities(ctx, t)
		if err != nil {
			return fmt.Errorf("similarities %s: %w", t, err)
		}
		for _, g := range groups {
			for _, e := range g.Similarities {
				key := PairKey(g.URL, e.URL2)
				if _, ok := values[key]; !ok {
					values[key] = map[embeddings.EmbeddingType]float64{}
					order = append(order, key)
				}
				values[key][t] = e.Similarity
			}
		}
	}

	rows := make([][]string, 0, len(order))
	for _, key := range order {
		rows = append(rows, []string{
			key,
			strconv.FormatFloat(values[key][embeddings.OpenAI], 'f', -1, 64),
			strconv.FormatFloat(values[key][embeddings.HuggingFace], 'f', -1, 64),
		})
	}
	if err := csvfile.Write(s.Path(), csvHeader, rows); err != nil {
		return err
	}
	s.Logger.WithFields(logrus.Fields{
		"pairs":       len(rows),
		"path":        s.Path(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("similarities saved")
	return nil
}

// LoadFromCSV reads the table written by SaveToCSV.
func LoadFromCSV(path string) ([]schemas.Similarity, error) {
	rows, err := csvfile.Read(path, csvHeader...)
	if err != nil {
		return nil, err
	}
	out := make([]schemas.Similarity, 0, len(rows))
	for i, r := range rows {
		oa, err := strconv.ParseFloat(r["openai"], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: openai: %w", path, i+2, err)
		}
		hf, err := strconv.ParseFloat(r["huggingface"], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: huggingface: %w", path, i+2, err)
		}
		out = append(out, schemas.Similarity{Urls: r["urls"], OpenAI: oa, HuggingFace: hf})
	}
	return out, nil
}
