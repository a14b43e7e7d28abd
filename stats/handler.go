package stats

import (
	"context"

	"github.com/adonese/plstats/apperr"
	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Service *Service
	DB      Pinger
}

// Register mounts the report under /urls, where the API has always served
// it, and the health check at the root of r.
func (h *Handler) Register(r fiber.Router) {
	urls := r.Group("/urls")
	urls.Get("/get-stats", h.GetStats)
	r.Get("/healthz", h.Healthz)
}

// GetStats serves the aggregated report. ?refresh=true rebuilds it.
func (h *Handler) GetStats(c *fiber.Ctx) error {
	payload, hit, err := h.Service.Report(c.UserContext(), c.QueryBool("refresh", false))
	if err != nil {
		return err
	}
	if hit {
		c.Set("X-Cache", "HIT")
	} else {
		c.Set("X-Cache", "MISS")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(payload)
}

func (h *Handler) Healthz(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if h.DB != nil {
		if err := h.DB.Ping(ctx); err != nil {
			return apperr.Wrap(err, apperr.ErrUnavailable, "database unreachable")
		}
	}
	cache := "disabled"
	if h.Service != nil && h.Service.Cache != nil {
		cache = "ok"
		if err := h.Service.Cache.Ping(ctx).Err(); err != nil {
			// the report still works without the cache
			cache = "unreachable"
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok", "cache": cache})
}
