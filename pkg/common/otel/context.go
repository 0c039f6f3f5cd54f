package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// NoTraceID is reported for log records written outside any span.
const NoTraceID = "00000000000000000000000000000000"

// GetTraceID returns the hex trace ID of the span carried by ctx. The JSON
// log handler stamps it on every record so a scan's log lines can be joined
// with its coordinator spans.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return NoTraceID
	}
	return sc.TraceID().String()
}
