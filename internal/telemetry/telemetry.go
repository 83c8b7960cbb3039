// Package telemetry wires up the gateway's ambient observability: a
// text-format slog logger to stderr, and an OpenTelemetry tracer/meter
// provider whose stdout-family exporters write to a caller-supplied
// writer. The gateway's own request/capture metrics
// are served via Prometheus (internal/adapter/inbound/http); this package
// covers traces and the process-level metrics the pack's other services
// export through the OTel SDK.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds the gateway's stderr text logger, matching the teacher's
// convention of reserving stdout for any future stdio transport.
func NewLogger(level string, devMode bool) *slog.Logger {
	lvl := ParseLevel(level)
	if devMode {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ParseLevel maps a config log_level string to an slog.Level, defaulting to
// info for anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Providers holds the process-wide tracer and meter providers and their
// combined shutdown.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Shutdown       func(context.Context) error
}

// Setup installs stdout-exporting tracer and meter providers as the OTel
// globals, writing both traces and metrics to w (os.Stderr in production,
// so stdout stays free for a future stdio transport). Pass devMode to
// pretty-print the exported JSON, matching the gateway's own dev-mode
// verbosity convention.
func Setup(ctx context.Context, serviceName, serviceVersion string, w io.Writer, devMode bool) (*Providers, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceOpts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if devMode {
		traceOpts = append(traceOpts, stdouttrace.WithPrettyPrint())
	}
	traceExporter, err := stdouttrace.New(traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: new trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricOpts := []stdoutmetric.Option{stdoutmetric.WithWriter(w)}
	if devMode {
		metricOpts = append(metricOpts, stdoutmetric.WithPrettyPrint())
	}
	metricExporter, err := stdoutmetric.New(metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: new metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		Shutdown: func(ctx context.Context) error {
			if err := tp.Shutdown(ctx); err != nil {
				return err
			}
			return mp.Shutdown(ctx)
		},
	}, nil
}

// Tracer returns a named tracer off the process-wide provider, for
// components that want to emit spans.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns a named meter off the process-wide provider, for components
// that want to record OTel instruments alongside the gateway's Prometheus
// metrics.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
