package wiki

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoArticleMarker is returned when a page lacks the Wikipedia tagline
// that marks the start of the article body.
var ErrNoArticleMarker = errors.New("article start marker not found")

const articleStart = "Z Wikipedii, wolnej encyklopedii "

// articleEnds are tried in order; the first one present cuts the text.
var articleEnds = []string{
	" Zobacz też [ edytuj | edytuj kod ]",
	" Przypisy [ edytuj | edytuj kod ]",
	" Bibliografia [ edytuj | edytuj kod ]",
	" Linki zewnętrzne [ edytuj | edytuj kod ]",
	" p d e ",
	" Kontrola autorytatywna ( osoba ):",
}

const editLinks = "[ edytuj | edytuj kod ] "

var footnoteRe = regexp.MustCompile(` \[ \d+ \]`)

// ExtractText returns the visible text of an HTML document: every text node
// trimmed, empty ones dropped, joined by single spaces.
func ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var parts []string
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return strings.Join(parts, " "), nil
		case html.StartTagToken:
			name, _ := z.TagName()
			if invisible(atom.Lookup(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if invisible(atom.Lookup(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.TrimSpace(string(z.Text())); text != "" {
				parts = append(parts, text)
			}
		}
	}
}

// invisible reports elements whose text never reaches the reader. noscript
// is included on purpose: the tokenizer hands its content over as raw markup.
func invisible(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Template, atom.Noscript:
		return true
	}
	return false
}

// Preprocess cuts the article body out of the page text and strips edit
// links and footnote markers.
func Preprocess(content string) (string, error) {
	start := strings.Index(content, articleStart)
	if start < 0 {
		return "", ErrNoArticleMarker
	}
	start += len(articleStart)

	end := len(content)
	for _, section := range articleEnds {
		if i := strings.Index(content, section); i >= 0 {
			end = i
			break
		}
	}
	if end < start {
		end = start
	}

	body := strings.ReplaceAll(content[start:end], editLinks, "")
	return footnoteRe.ReplaceAllString(body, ""), nil
}
