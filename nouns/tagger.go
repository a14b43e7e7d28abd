// Package nouns counts noun lemmas in the corpus with two Polish NLP
// pipelines and keeps the result as a CSV report.
package nouns

import (
	"context"
	"fmt"
	"strings"

	"github.com/adonese/plstats/apperr"
	"github.com/adonese/plstats/config"
	"github.com/adonese/plstats/upstream"
)

// Universal POS tags counted as nouns.
const (
	UPOSNoun       = "NOUN"
	UPOSProperNoun = "PROPN"
)

// Token is one word as returned by a tagger.
type Token struct {
	Text  string `json:"text"`
	Lemma string `json:"lemma"`
	UPOS  string `json:"upos"`
}

// Tagger tokenizes, lemmatizes and POS-tags text.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]Token, error)
}

type tagRequest struct {
	Text       string `json:"text"`
	Lang       string `json:"lang"`
	Model      string `json:"model,omitempty"`
	Processors string `json:"processors,omitempty"`
}

type tagResponse struct {
	Tokens []Token `json:"tokens"`
}

// HTTPTagger talks to an NLP sidecar exposing POST {base}/tag.
type HTTPTagger struct {
	Client     *upstream.Client
	BaseURL    string
	Lang       string
	Model      string
	Processors string
}

// NewHTTPTagger builds a tagger from its configuration section.
func NewHTTPTagger(client *upstream.Client, c config.Tagger) *HTTPTagger {
	return &HTTPTagger{
		Client:     client,
		BaseURL:    c.BaseURL,
		Lang:       c.Lang,
		Model:      c.Model,
		Processors: c.Processors,
	}
}

func (t *HTTPTagger) Tag(ctx context.Context, text string) ([]Token, error) {
	if t.BaseURL == "" {
		return nil, apperr.Newf(apperr.ErrUnavailable, fmt.Sprintf("%s tagger url is not configured", t.Client.Target))
	}
	lang := t.Lang
	if lang == "" {
		lang = config.DefaultStanzaLang
	}
	var resp tagResponse
	err := t.Client.PostJSON(ctx, "tag", strings.TrimRight(t.BaseURL, "/")+"/tag", nil, tagRequest{
		Text:       text,
		Lang:       lang,
		Model:      t.Model,
		Processors: t.Processors,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// CountNouns returns lowercase lemma frequencies of nouns and proper nouns,
// keeping only lemmas seen more than once. With requireLemma set, tokens
// without a lemma are skipped.
func CountNouns(tokens []Token, requireLemma bool) map[string]int {
	counts := make(map[string]int)
	for _, tok := range tokens {
		if tok.UPOS != UPOSNoun && tok.UPOS != UPOSProperNoun {
			continue
		}
		if requireLemma && tok.Lemma == "" {
			continue
		}
		counts[strings.ToLower(tok.Lemma)]++
	}
	for lemma, n := range counts {
		if n <= 1 {
			delete(counts, lemma)
		}
	}
	return counts
}
