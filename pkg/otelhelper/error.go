package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetError marks the span failed and records err as a span event carrying
// the given attributes.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(attrs...))
}

// SetAttemptError records a failed HTTP attempt with its error class, so
// traces can be sliced the same way the metrics error breakdown is.
func SetAttemptError(span trace.Span, err error, errorClass string) {
	SetError(span, err, attribute.String(ErrorClassKey, errorClass))
}
