// Package gateway holds the fiber middleware shared by every plstats route:
// request ids, sampled request logging, prometheus instrumentation and the
// JSON error handler.
package gateway

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

const requestIDLocal = "request_id"

type requestIDKey struct{}

// RequestID honours an incoming X-Request-ID or generates one, echoes it in
// the response and makes it available to handlers and their contexts.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := strings.TrimSpace(c.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(requestIDLocal, requestID)
		c.SetUserContext(ContextWithRequestID(c.UserContext(), requestID))
		c.Set(RequestIDHeader, requestID)
		return c.Next()
	}
}

func RequestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(requestIDLocal); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// ContextWithRequestID attaches id to ctx for outgoing calls and logs.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
