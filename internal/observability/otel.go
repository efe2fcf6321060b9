// Package observability wires log/slog, OpenTelemetry tracing and metrics
// for the engine: one span per pipeline stage and a run counter per
// terminal state. There is no HTTP or gRPC surface for an
// OTLP collector to sit behind, so every exporter writes to stdout rather
// than dialing out.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName names the resource every span/metric/log record is
// tagged with when Config.ServiceName is empty.
const DefaultServiceName = "rapo"

// Config controls whether Providers exports anything at all. With
// Enabled=false the tracer and meter providers are real SDK implementations
// with no exporter (not stubs), so callers never need to nil-check before
// using a Tracer/Meter; LoggerProvider is then nil and Logger writes JSON
// to os.Stdout.
type Config struct {
	Enabled     bool
	ServiceName string
	// Writer receives the stdout exporters' output; nil defaults to
	// os.Stdout. Tests set this to capture or discard it.
	Writer io.Writer
}

// Providers bundles the tracer, meter and logger a run needs. One Providers
// is built per process lifetime (not per control run) and handed to every
// process.Runner.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider

	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger
}

// Shutdown flushes and releases every provider's resources. Safe to call
// on a Providers built with Enabled=false.
func (p *Providers) Shutdown(ctx context.Context) error {
	if err := p.TracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	if err := p.MeterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}
	if p.LoggerProvider != nil {
		if err := p.LoggerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown logger provider: %w", err)
		}
	}
	return nil
}

func serviceName(cfg Config) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	return DefaultServiceName
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName(cfg))),
		resource.WithSchemaURL(semconv.SchemaURL),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}
	return res, nil
}

// New builds every provider according to cfg. With Enabled=false it
// returns the SDK's own no-op providers (AlwaysSample+no exporter would
// still batch spans nobody reads; instead we skip the batcher entirely),
// which is cheaper and behaves identically from a caller's perspective.
func New(ctx context.Context, cfg Config) (*Providers, error) {
	name := serviceName(cfg)

	if !cfg.Enabled {
		tp := sdktrace.NewTracerProvider()
		mp := sdkmetric.NewMeterProvider()
		return &Providers{
			TracerProvider: tp,
			MeterProvider:  mp,
			Tracer:         tp.Tracer(name),
			Meter:          mp.Meter(name),
			Logger:         slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		}, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	logExporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create log exporter: %w", err)
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	logger := otelslog.NewLogger(name, otelslog.WithLoggerProvider(loggerProvider))

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		LoggerProvider: loggerProvider,
		Tracer:         tp.Tracer(name),
		Meter:          mp.Meter(name),
		Logger:         logger,
	}, nil
}
