package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of the tracer Tracer returns. No
// package in this repository starts spans with it; the job runner and the
// stats package are not instrumented.
const TracerName = "evobench-run"

// NewTracerProvider builds an sdktrace.TracerProvider tagged with
// serviceName, installs it as the global provider, and returns it together
// with a shutdown function the caller must run before exit.
func NewTracerProvider(serviceName string) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetTracerProvider(tp)

	return tp, tp.Shutdown, nil
}

// Tracer returns the tracer named TracerName from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
