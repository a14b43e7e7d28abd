package wiki

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/adonese/plstats/upstream"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FetchError records why one URL could not be turned into article text.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher downloads articles concurrently and reduces them to text.
type Fetcher struct {
	Client      *upstream.Client
	Concurrency int
	Logger      *logrus.Logger
}

// FetchArticle downloads url and returns its id and cleaned article text.
func (f *Fetcher) FetchArticle(ctx context.Context, url string) (string, string, error) {
	body, err := f.Client.Get(ctx, "article", url)
	if err != nil {
		return "", "", &FetchError{URL: url, Err: err}
	}
	text, err := ExtractText(bytes.NewReader(body))
	if err != nil {
		return "", "", &FetchError{URL: url, Err: err}
	}
	text, err = Preprocess(text)
	if err != nil {
		return "", "", &FetchError{URL: url, Err: err}
	}
	return HashURL(url), text, nil
}

// Fetch downloads every url and returns id -> text for the ones that
// succeeded. Failures do not stop the others; they are joined into the
// returned error.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) (map[string]string, error) {
	limit := f.Concurrency
	if limit <= 0 {
		limit = len(urls)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))

	var mu sync.Mutex
	out := make(map[string]string, len(urls))
	var failures []error

	for _, u := range urls {
		u := u
		g.Go(func() error {
			id, text, err := f.FetchArticle(gctx, u)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				f.Logger.WithFields(logrus.Fields{"url": u, "error": err.Error()}).Warn("failed to fetch article")
				return nil
			}
			out[id] = text
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return out, err
	}
	f.Logger.WithFields(logrus.Fields{"fetched": len(out), "failed": len(failures)}).Info("articles fetched")
	return out, errors.Join(failures...)
}
