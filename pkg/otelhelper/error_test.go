package otelhelper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSetAttemptError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := tracer.Start(t.Context(), "run.attempt")
	SetAttemptError(span, errors.New("connection refused"), "connection")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)

	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "connection refused", spans[0].Status().Description)

	var found bool

	for _, event := range spans[0].Events() {
		if event.Name != "error_occurred" {
			continue
		}

		for _, attr := range event.Attributes {
			if string(attr.Key) == ErrorClassKey && attr.Value.AsString() == "connection" {
				found = true
			}
		}
	}

	assert.True(t, found, "error class attribute missing from error event")
}
