package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "upgradeimpact"

const shutdownTimeout = 5 * time.Second

type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	OTLPInsecure   bool
}

// Tracing holds the installed tracer and its shutdown hook.
type Tracing struct {
	Tracer   trace.Tracer
	Shutdown func(ctx context.Context) error
}

// Tracer returns the process-wide tracer. Spans are no-ops until
// InitTracing installs an exporting provider.
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(tracerName)
}

// InitTracing installs an OTLP/gRPC exporting provider when an endpoint is
// configured and a no-op provider otherwise.
func InitTracing(ctx context.Context, cfg TracingConfig) (Tracing, error) {
	if cfg.OTLPEndpoint == "" {
		tp := nooptrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return Tracing{
			Tracer:   tp.Tracer(tracerName),
			Shutdown: func(context.Context) error { return nil },
		}, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return Tracing{}, fmt.Errorf("create trace exporter: %w", err)
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(cfg.ServiceName))}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return Tracing{}, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)

	return Tracing{
		Tracer: tp.Tracer(tracerName),
		Shutdown: func(shutdownCtx context.Context) error {
			deadlineCtx, cancel := context.WithTimeout(shutdownCtx, shutdownTimeout)
			defer cancel()
			return tp.Shutdown(deadlineCtx)
		},
	}, nil
}
