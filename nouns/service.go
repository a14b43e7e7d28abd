package nouns

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adonese/plstats/csvfile"
	"github.com/adonese/plstats/embeddings"
	"github.com/adonese/plstats/schemas"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const FileName = "nouns.csv"

var csvHeader = []string{"url", "noun", "stanza", "spacy"}

// key identifies one row of the merged report.
type key struct {
	url, noun string
}

// Service runs both taggers over the stored corpus documents.
type Service struct {
	Embeddings  *embeddings.Service
	Stanza      Tagger
	Spacy       Tagger
	DataDir     string
	Concurrency int
	Logger      *logrus.Logger
}

func (s *Service) Path() string {
	return filepath.Join(s.DataDir, FileName)
}

// CalculateAndSave tags every document with both pipelines and writes the
// merged frequencies to nouns.csv.
func (s *Service) CalculateAndSave(ctx context.Context) error {
	if err := s.Embeddings.RequireURLsInCollection(ctx, embeddings.OpenAI); err != nil {
		return err
	}
	start := time.Now()
	docs, err := s.Embeddings.URLsData(ctx, embeddings.Documents, embeddings.OpenAI)
	if err != nil {
		return err
	}

	spacy, err := s.frequencies(ctx, "spacy", s.Spacy, false, docs)
	if err != nil {
		return err
	}
	stanza, err := s.frequencies(ctx, "stanza", s.Stanza, true, docs)
	if err != nil {
		return err
	}

	merged := make(map[key][2]int)
	for k, n := range stanza {
		v := merged[k]
		v[0] = n
		merged[k] = v
	}
	for k, n := range spacy {
		v := merged[k]
		v[1] = n
		merged[k] = v
	}
	keys := make([]key, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].url != keys[j].url {
			return keys[i].url < keys[j].url
		}
		return keys[i].noun < keys[j].noun
	})
	rows := make([][]string, len(keys))
	for i, k := range keys {
		v := merged[k]
		rows[i] = []string{k.url, k.noun, strconv.Itoa(v[0]), strconv.Itoa(v[1])}
	}
	if err := csvfile.Write(s.Path(), csvHeader, rows); err != nil {
		return err
	}

	s.Logger.WithFields(logrus.Fields{
		"documents":   len(docs),
		"rows":        len(rows),
		"path":        s.Path(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("NLP total processing time")
	return nil
}

// frequencies runs one tagger over docs with at most Concurrency documents
// in flight.
func (s *Service) frequencies(ctx context.Context, pipeline string, tagger Tagger, requireLemma bool, docs []embeddings.URLData) (map[key]int, error) {
	limit := s.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	out := make(map[key]int)
	for _, d := range docs {
		d := d
		g.Go(func() error {
			t0 := time.Now()
			log := s.Logger.WithFields(logrus.Fields{"url": d.URL, "pipeline": pipeline})
			log.Debug("processing document")

			tokens, err := tagger.Tag(ctx, strings.ToLower(d.Document))
			if err != nil {
				return fmt.Errorf("%s %s: %w", pipeline, d.URL, err)
			}
			counts := CountNouns(tokens, requireLemma)

			mu.Lock()
			for noun, n := range counts {
				out[key{d.URL, noun}] = n
			}
			mu.Unlock()
			log.WithField("duration_ms", time.Since(t0).Milliseconds()).Debug("finished processing document")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFrequencies reads nouns.csv grouped by url in file order, each group's
// nouns sorted by stanza then spacy count, highest first.
func GetFrequencies(path string) ([]schemas.Nouns, error) {
	rows, err := csvfile.Read(path, csvHeader...)
	if err != nil {
		return nil, err
	}
	var out []schemas.Nouns
	index := make(map[string]int)
	for i, r := range rows {
		stanza, err := parseCount(r["stanza"])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: stanza: %w", path, i+2, err)
		}
		spacy, err := parseCount(r["spacy"])
		if err != nil {
			return nil, fmt.Errorf("%s row %d: spacy: %w", path, i+2, err)
		}
		pos, ok := index[r["url"]]
		if !ok {
			pos = len(out)
			index[r["url"]] = pos
			out = append(out, schemas.Nouns{URL: r["url"], Nouns: []schemas.Noun{}})
		}
		out[pos].Nouns = append(out[pos].Nouns, schemas.Noun{Noun: r["noun"], Stanza: stanza, Spacy: spacy})
	}
	for _, group := range out {
		nouns := group.Nouns
		sort.SliceStable(nouns, func(i, j int) bool {
			if nouns[i].Stanza != nouns[j].Stanza {
				return nouns[i].Stanza > nouns[j].Stanza
			}
			return nouns[i].Spacy > nouns[j].Spacy
		})
	}
	if out == nil {
		out = []schemas.Nouns{}
	}
	return out, nil
}

// parseCount accepts integers and integral floats such as "3.0".
func parseCount(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
