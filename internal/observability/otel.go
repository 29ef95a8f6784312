package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the package-wide tracer used for per-call spans around LLM
// provider requests. Wiring a concrete exporter (OTLP, etc.) is left to the
// host process embedding this module; without one configured, the global
// TracerProvider is a no-op and spans are free — see DESIGN.md for why the
// full SDK/exporter pipeline the teacher stands up isn't duplicated here.
var tracer = otel.Tracer("sentinel")

// StartSpan starts a span named name around one provider call, tagged with
// the model in use.
func StartSpan(ctx context.Context, name, model string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("model", model))
	return ctx, span
}
