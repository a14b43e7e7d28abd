// Package upstream is the instrumented HTTP client shared by every outgoing
// call the service makes: Wikipedia, the embedding APIs and the NLP taggers.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gateway "github.com/adonese/plstats/apigateway"
	"github.com/adonese/plstats/apperr"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/adonese/plstats/upstream"

// maxErrorBody bounds how much of a failed response body ends up in errors.
const maxErrorBody = 512

// StatusError is returned when an upstream answers with a non-2xx status.
type StatusError struct {
	Target string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %s returned HTTP %d", e.Target, e.URL, e.Code)
	}
	return fmt.Sprintf("%s: %s returned HTTP %d: %s", e.Target, e.URL, e.Code, e.Body)
}

// Client wraps http.Client with metrics, tracing and logging for one target.
type Client struct {
	HTTP      *http.Client
	Target    string
	UserAgent string
	Logger    *logrus.Logger
}

func New(target string, timeout time.Duration, userAgent string, logger *logrus.Logger) *Client {
	initMetrics()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		Target:    target,
		UserAgent: userAgent,
		Logger:    logger,
	}
}

// Get fetches url and returns the body of a 200 response.
func (c *Client) Get(ctx context.Context, endpoint, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, endpoint, req, 0)
}

// PostJSON encodes in, posts it to url and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, endpoint, url string, headers map[string]string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrMarshal, "")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	body, err := c.do(ctx, endpoint, req, len(payload))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Wrap(fmt.Errorf("%s: decode %s response: %w", c.Target, endpoint, err), apperr.ErrUpstream, "")
	}
	return nil
}

func (c *Client) do(ctx context.Context, endpoint string, req *http.Request, reqSize int) ([]byte, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, c.Target+" "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
		))
	defer span.End()
	req = req.WithContext(ctx)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	fields := logrus.Fields{"target": c.Target, "endpoint": endpoint}
	if requestID := gateway.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(gateway.RequestIDHeader, requestID)
		fields["request_id"] = requestID
	}
	log := c.Logger.WithFields(fields)

	start := time.Now()
	statusCode := 0
	respSize := 0
	var err error
	defer func() {
		recordMetrics(endpoint, c.Target, req.Method, statusCode, err, reqSize, respSize, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	resp, err := c.HTTP.Do(req)
	if err != nil {
		log.WithField("error", err.Error()).Error("error in establishing connection to the host")
		err = apperr.Wrap(fmt.Errorf("%s: %s: %w", c.Target, endpoint, err), apperr.ErrUpstream, "")
		return nil, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode
	span.SetAttributes(attribute.Int("http.response.status_code", statusCode))

	body, err := io.ReadAll(resp.Body)
	respSize = len(body)
	if err != nil {
		err = apperr.Wrap(fmt.Errorf("%s: read %s response: %w", c.Target, endpoint, err), apperr.ErrUpstream, "")
		return nil, err
	}
	if statusCode < 200 || statusCode > 299 {
		snippet := errorMessage(body)
		err = apperr.Wrap(&StatusError{Target: c.Target, URL: req.URL.String(), Code: statusCode, Body: snippet}, apperr.ErrUpstream, "")
		log.WithField("status", statusCode).Warn("upstream returned non-success status")
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"status":      statusCode,
		"bytes_out":   reqSize,
		"bytes_in":    respSize,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("upstream request")
	return body, nil
}

// errorMessage extracts the provider's error text from a failed response:
// OpenAI nests it under error.message, the Inference API under error.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
	}
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}
	return snippet
}
