package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func attrValue(attrs []attribute.KeyValue, key attribute.Key) string {
	for _, kv := range attrs {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "worklens", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	tp, err := Init(DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestTraceWebSocketMessage(t *testing.T) {
	recorder := withRecorder(t)

	_, span := TraceWebSocketMessage(context.Background(), "live_view:start", "boss@example.com")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "websocket.live_view:start", spans[0].Name())
	assert.Equal(t, "live_view:start", attrValue(spans[0].Attributes(), EventKey))
	assert.Equal(t, "boss@example.com", attrValue(spans[0].Attributes(), SubjectIDKey))
}

func TestTraceHTTPRequest(t *testing.T) {
	recorder := withRecorder(t)

	_, span := TraceHTTPRequest(context.Background(), "GET", "/api/v1/work/summary/today")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "http.GET", spans[0].Name())
	assert.Equal(t, "/api/v1/work/summary/today", attrValue(spans[0].Attributes(), "http.route"))
}

func TestRecordErrorAndAttributes(t *testing.T) {
	recorder := withRecorder(t)

	ctx, span := StartSpan(context.Background(), "test")
	AddSpanAttributes(ctx, SourceIDKey.String("worker@example.com"))
	RecordError(ctx, errors.New("boom"))
	MeasureDuration(ctx, time.Now(), "test")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "worker@example.com", attrValue(spans[0].Attributes(), SourceIDKey))
}

func TestTraceRepositoryOperation(t *testing.T) {
	_, span := TraceRepositoryOperation(context.Background(), "get", "work_sessions")
	assert.NotNil(t, span)
	span.End()
}
