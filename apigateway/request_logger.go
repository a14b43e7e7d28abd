package gateway

import (
	"sync"
	"time"

	"github.com/adonese/plstats/apperr"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// LogSamplingConfig limits successful request logs to one per Tick, unless a
// request took at least After.
type LogSamplingConfig struct {
	Tick  time.Duration
	After time.Duration
}

type logSampler struct {
	tick  time.Duration
	after time.Duration
	next  time.Time
	mu    sync.Mutex
	now   func() time.Time
}

func newLogSampler(cfg LogSamplingConfig) *logSampler {
	return &logSampler{tick: cfg.Tick, after: cfg.After, now: time.Now}
}

func (s *logSampler) Allow(duration time.Duration) bool {
	if s.after > 0 && duration >= s.after {
		return true
	}
	if s.tick <= 0 {
		return true
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next.IsZero() || now.After(s.next) {
		s.next = now.Add(s.tick)
		return true
	}
	return false
}

// responseStatus is the status the client will see. A returned error has not
// been rendered yet, so its status comes from apperr or fiber.
func responseStatus(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	if fe, ok := err.(*fiber.Error); ok {
		return fe.Code
	}
	return apperr.Status(err)
}

// RequestLogger logs every failed request and a sample of the rest.
func RequestLogger(logger *logrus.Logger, cfg LogSamplingConfig) fiber.Handler {
	sampler := newLogSampler(cfg)
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := responseStatus(c, err)
		routePath := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			routePath = r.Path
		}

		failed := status >= fiber.StatusInternalServerError || err != nil
		if !failed && !sampler.Allow(duration) {
			return err
		}

		entry := logger.WithFields(logrus.Fields{
			"request_id":  RequestIDFromCtx(c),
			"method":      c.Method(),
			"path":        routePath,
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"bytes_out":   len(c.Response().Body()),
			"ip":          c.IP(),
		})
		if q := string(c.Request().URI().QueryString()); q != "" {
			entry = entry.WithField("query", q)
		}
		if userAgent := c.Get(fiber.HeaderUserAgent); userAgent != "" {
			entry = entry.WithField("user_agent", userAgent)
		}
		if err != nil {
			entry = entry.WithFields(logrus.Fields{
				"error":      err.Error(),
				"error_code": apperr.Code(err),
			})
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error("http_request")
		case status >= fiber.StatusBadRequest:
			entry.Warn("http_request")
		default:
			entry.Info("http_request")
		}

		return err
	}
}
