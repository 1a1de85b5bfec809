// Package tracing exposes a single helper over the global OTel tracer.
//
// Without a registered TracerProvider (tests, local runs with no collector)
// the global no-op provider is in effect and every call here is inert. Code
// should call tracing.Start instead of reaching for the OTel API directly.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "emergent"

// Start begins a span as a child of the span carried by ctx, or a root span
// if ctx has none. Callers must end the span, normally with defer span.End().
//
//	ctx, span := tracing.Start(ctx, "extraction.llm_call",
//	    attribute.String("emergent.job.id", jobID),
//	)
//	defer span.End()
func Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}
