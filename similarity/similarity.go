// Package similarity compares corpus articles pairwise by the cosine of
// their embeddings.
package similarity

import (
	"math"
	"sort"

	"github.com/adonese/plstats/embeddings"
)

// Entry is the similarity of the group URL to URL2.
type Entry struct {
	URL2       string  `json:"url2"`
	Similarity float64 `json:"similarity"`
}

// Group collects the comparisons whose first URL is URL.
type Group struct {
	URL          string  `json:"url"`
	Similarities []Entry `json:"similarities"`
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Round4 rounds to four decimal places.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Calculate compares every unordered pair of data in input order. Each pair
// appears once, under its earlier URL; groups are ordered by size, largest
// first.
func Calculate(data []embeddings.URLData) []Group {
	groups := make([]Group, 0, len(data))
	for i := 0; i < len(data)-1; i++ {
		g := Group{URL: data[i].URL, Similarities: make([]Entry, 0, len(data)-i-1)}
		for j := i + 1; j < len(data); j++ {
			g.Similarities = append(g.Similarities, Entry{
				URL2:       data[j].URL,
				Similarity: Round4(Cosine(data[i].Embedding, data[j].Embedding)),
			})
		}
		groups = append(groups, g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].Similarities) > len(groups[j].Similarities)
	})
	return groups
}
