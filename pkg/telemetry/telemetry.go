// Package telemetry bootstraps OpenTelemetry tracing for construction
// runs and exposes the span helpers the orchestrator wraps each
// pipeline stage in.
//
// Configuration is environment-driven:
//
//	OTEL_ENABLED                - enable tracing (default: false)
//	OTEL_SERVICE_NAME           - service name (default: distoctree)
//	OTEL_SERVICE_VERSION        - service version (default: unknown)
//	OTEL_EXPORTER_OTLP_ENDPOINT - OTLP collector endpoint
//	OTEL_EXPORTER_OTLP_PROTOCOL - grpc or http/protobuf (default: grpc)
//	OTEL_EXPORTER_OTLP_HEADERS  - key=value,... headers (auth)
//	OTEL_EXPORTER_OTLP_INSECURE - plaintext connection (default: false)
//	OTEL_TRACES_SAMPLER         - sampler name (default: always_on)
//	OTEL_TRACES_SAMPLER_ARG     - sampler argument (ratio)
//	OTEL_RESOURCE_ATTRIBUTES    - key=value,... extra resource attrs
//
// With OTEL_ENABLED unset the global provider stays the no-op default,
// so instrumented code costs nothing.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracerName scopes every span this module emits.
const tracerName = "github.com/distoctree/distoctree"

var (
	loadedConfig *Config
	configOnce   sync.Once
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs the global TracerProvider from the environment. It is
// a no-op returning a no-op shutdown when OTEL_ENABLED is not "true".
func Init(ctx context.Context) (ShutdownFunc, error) {
	cfg := loadConfig()
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return noopShutdown, err
	}
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(newSampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// Enabled reports whether tracing was switched on via the environment.
func Enabled() bool { return loadConfig().Enabled }

func loadConfig() *Config {
	configOnce.Do(func() { loadedConfig = LoadFromEnv() })
	return loadedConfig
}

// StartStage opens one span for a named pipeline stage on the calling
// rank. The caller ends it when the stage finishes; with tracing
// disabled the global no-op provider makes this free.
func StartStage(ctx context.Context, stage string, rank int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, stage,
		trace.WithAttributes(attribute.Int("octree.rank", rank)))
}
