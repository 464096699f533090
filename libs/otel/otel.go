// Package otelx wires OpenTelemetry tracing for service binaries and carries
// the W3C traceparent across the outbox, where the producing request is long
// gone by the time the event is published.
package otelx

import (
	"context"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Config struct {
	ServiceName   string
	Enabled       bool
	Endpoint      string
	SamplingRatio float64
}

// ConfigFromEnv reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_SAMPLING_RATIO. Tracing is off unless explicitly enabled.
func ConfigFromEnv(serviceName string) Config {
	cfg := Config{
		ServiceName:   serviceName,
		Endpoint:      "jaeger:4317",
		SamplingRatio: 1.0,
	}
	if v, err := strconv.ParseBool(os.Getenv("OTEL_ENABLED")); err == nil {
		cfg.Enabled = v
	}
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		cfg.Endpoint = ep
	}
	if r, err := strconv.ParseFloat(os.Getenv("OTEL_SAMPLING_RATIO"), 64); err == nil && r >= 0 && r <= 1 {
		cfg.SamplingRatio = r
	}
	return cfg
}

// Setup installs the global tracer provider and propagator. The returned
// shutdown flushes buffered spans; call it before the process exits. When
// tracing is disabled only the propagator is installed, so incoming trace
// headers still flow through to the outbox.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
