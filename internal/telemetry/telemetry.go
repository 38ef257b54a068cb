// Package telemetry configures OpenTelemetry tracing for FraudLens.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/opensource-finance/fraudlens"

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Init installs the global tracer provider. When tracing is disabled the
// global no-op provider is left in place.
func Init(ctx context.Context, cfg domain.TracingConfig, logger *slog.Logger) (ShutdownFunc, error) {
	return InitWithWriter(ctx, cfg, os.Stdout, logger)
}

// InitWithWriter is Init with the stdout exporter writing to w.
func InitWithWriter(ctx context.Context, cfg domain.TracingConfig, w io.Writer, logger *slog.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled {
		logger.Info("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	switch cfg.ExporterType {
	case "", "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.ExporterType)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "fraudlens"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", name),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", "exporter", cfg.ExporterType, "service", name)
	return tp.Shutdown, nil
}

// Tracer returns the FraudLens tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span with optional attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := Tracer().Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// Common attribute helpers for consistent span decoration.

func Variant(v domain.SchemaVariant) attribute.KeyValue {
	return attribute.String("fraudlens.variant", string(v))
}

func Stage(s domain.Stage) attribute.KeyValue {
	return attribute.String("fraudlens.stage", string(s))
}

func PredictionID(id string) attribute.KeyValue {
	return attribute.String("fraudlens.prediction_id", id)
}
