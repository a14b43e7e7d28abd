package main

import (
	"net/http"

	gateway "github.com/adonese/plstats/apigateway"
	"github.com/adonese/plstats/stats"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GetMainEngine builds the fiber app serving the stats report.
func GetMainEngine(a *application, sampling gateway.LogSamplingConfig) *fiber.App {
	route := fiber.New(fiber.Config{
		AppName:               "plstats",
		ErrorHandler:          gateway.ErrorHandler,
		DisableStartupMessage: true,
		ReadTimeout:           a.cfg.HTTPTimeout(),
		WriteTimeout:          a.cfg.HTTPTimeout(),
	})
	route.Use(gateway.RequestID())
	route.Use(gateway.Instrumentation())
	route.Use(gateway.RequestLogger(a.logger, sampling))
	route.Use(gateway.Cors())

	handler := &stats.Handler{Service: a.stats, DB: a.store}
	handler.Register(route)

	route.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{"message": true})
	})
	route.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	return route
}
