package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func spanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	tid, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	sid, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	return trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
}

func TestInitLogger_AddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	log := InitLogger(&buf, slog.LevelInfo, FormatJSON)

	ctx := trace.ContextWithSpanContext(context.Background(), spanContext(t))
	log.InfoContext(ctx, "clip written", "index", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "clip written", rec["msg"])
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", rec["trace_id"])
	assert.Equal(t, "0102030405060708", rec["span_id"])
}

func TestInitLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := InitLogger(&buf, slog.LevelWarn, FormatText)
	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestDetachTraceContextFrom(t *testing.T) {
	src, cancel := context.WithCancel(trace.ContextWithSpanContext(context.Background(), spanContext(t)))
	cancel()

	got := DetachTraceContextFrom(src, context.Background())
	assert.NoError(t, got.Err())
	assert.Equal(t, spanContext(t).TraceID(), trace.SpanContextFromContext(got).TraceID())

	base := context.Background()
	assert.Equal(t, base, DetachTraceContextFrom(context.Background(), base))
}
