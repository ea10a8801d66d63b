// Package tracing holds the OTLP tracer setup shared by the daemon's
// transports. Tracing stays off unless OTEL_EXPORTER_OTLP_ENDPOINT is set,
// in which case spans are batched to that collector over HTTP.
package tracing

import (
	"context"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "agentbridge"

var setup struct {
	once     sync.Once
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
}

// Tracer returns a named tracer, initializing the provider on first use.
// Callers get a no-op tracer when no collector endpoint is configured.
func Tracer(name string) trace.Tracer {
	setup.once.Do(configure)
	return setup.provider.Tracer(name)
}

// Shutdown flushes buffered spans. Safe to call when tracing never started.
func Shutdown(ctx context.Context) error {
	if setup.sdk == nil {
		return nil
	}
	return setup.sdk.Shutdown(ctx)
}

func configure() {
	setup.provider = noop.NewTracerProvider()

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return
	}
	// otlptracehttp wants host:port, not a URL.
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")

	ctx := context.Background()
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		res = resource.Default()
	}

	setup.sdk = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	setup.provider = setup.sdk
	otel.SetTracerProvider(setup.sdk)
}
