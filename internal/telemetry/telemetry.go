package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	TraceNone   = "none"
	TraceStdout = "stdout"

	serviceName = "gh-actions-scan"
)

// ErrUnknownExporter is returned for a trace mode Init does not support.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// Init installs the global tracer provider for the given mode.
// "none" (or empty) leaves the default no-op provider in place.
// "stdout" writes finished spans as JSON to w.
// The returned shutdown flushes pending spans and must be called before exit.
func Init(ctx context.Context, mode, version string, w io.Writer) (func(context.Context) error, error) {
	switch mode {
	case "", TraceNone:
		return func(context.Context) error { return nil }, nil
	case TraceStdout:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, mode)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
		return nil
	}, nil
}
