// Package otel wires opt-in OpenTelemetry tracing for the wall service.
package otel

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// tracingEnabled reports whether the environment asks for tracing. An empty
// endpoint or an explicit TAGWALL_OTEL_ENABLED=false keeps tracing off so the
// server runs with zero observability prerequisites by default.
func tracingEnabled() (endpoint string, ok bool) {
	if strings.EqualFold(os.Getenv("TAGWALL_OTEL_ENABLED"), "false") {
		return "", false
	}
	endpoint = os.Getenv("TAGWALL_OTEL_ENDPOINT")
	return endpoint, endpoint != ""
}

// Setup initialises OpenTelemetry tracing for the given service and returns a
// shutdown function that flushes pending spans; callers should defer it. When
// tracing is disabled the shutdown function is a no-op and no global provider
// is registered.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	endpoint, ok := tracingEnabled()
	if !ok {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
