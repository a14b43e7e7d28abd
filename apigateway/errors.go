package gateway

import (
	"errors"

	"github.com/adonese/plstats/apperr"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders handler errors as {"code","message"} JSON with the
// status carried by the apperr.Error, or by fiber for routing errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := "http_error"
		switch fe.Code {
		case fiber.StatusNotFound:
			code = apperr.ErrNotFound.Code
		case fiber.StatusMethodNotAllowed:
			code = "method_not_allowed"
		}
		return c.Status(fe.Code).JSON(fiber.Map{"code": code, "message": fe.Message})
	}
	return c.Status(apperr.Status(err)).JSON(apperr.Payload(err))
}

// Cors allows any origin and answers preflight requests directly.
func Cors() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		if c.Method() != fiber.MethodOptions {
			return c.Next()
		}
		c.Set(fiber.HeaderAccessControlAllowMethods, "GET,OPTIONS")
		c.Set(fiber.HeaderAccessControlAllowHeaders, "origin, content-type, accept, "+RequestIDHeader)
		c.Set(fiber.HeaderAllow, "HEAD,GET,OPTIONS")
		return c.SendStatus(fiber.StatusOK)
	}
}
