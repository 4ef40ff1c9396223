// Package telemetry sets up the OpenTelemetry tracer provider and exposes
// small helpers for annotating spans around store and HTTP operations.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Setup installs a global tracer provider tagged with the given service name
// and returns a shutdown function. Span export is left to whatever processor
// the deployment registers; without one, spans are recorded but not shipped.
func Setup(service string) func(context.Context) error {
	res := sdkresource.NewSchemaless(
		attribute.String("service.name", service),
	)
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// End finishes a span, recording err as an error status when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
