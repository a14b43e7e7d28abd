package main

import (
	"context"
	"strings"
	"time"

	"github.com/adonese/plstats/config"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const otelShutdownTimeout = 5 * time.Second

// initOTel installs a batching OTLP trace provider when tracing is enabled
// or an endpoint is configured. The returned func flushes it.
func initOTel(ctx context.Context, cfg config.Config, logger *logrus.Logger) func(context.Context) error {
	endpoint := strings.TrimSpace(cfg.OtelEndpoint)
	if !cfg.OtelEnabled && endpoint == "" {
		return nil
	}

	opts := []otlptracegrpc.Option{}
	if endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
	}
	if cfg.OtelInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		logger.WithError(err).Warn("otel trace exporter init failed")
		return nil
	}

	serviceName := cfg.OtelServiceName
	if serviceName == "" {
		serviceName = "plstats"
	}

	sampleRate := clamp01(cfg.OtelSampleRate)
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(cfg.OtelServiceVersion),
	))
	if err != nil {
		logger.WithError(err).Warn("otel resource init failed")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger.WithFields(logrus.Fields{
		"endpoint":    endpoint,
		"sample_rate": sampleRate,
		"service":     serviceName,
		"insecure":    cfg.OtelInsecure,
	}).Info("otel tracing enabled")
	return tp.Shutdown
}

func clamp01(v float64) float64 {
	if v <= 0 {
		return 0.1
	}
	if v > 1 {
		return 1
	}
	return v
}
