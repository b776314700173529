package trace

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestStartSpan_DisabledIsNoop(t *testing.T) {
	require.NoError(t, Init(Config{Enabled: false}))

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
	_, _, ok := GetTraceFields(ctx)
	assert.False(t, ok)
}

func TestStartSpan_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Config{Enabled: true, Writer: &buf}))
	defer func() { _ = Shutdown(context.Background()) }()

	ctx, span := StartSpan(context.Background(), "fetch_trades",
		trace.WithAttributes(attribute.Int("query_id", 42)))

	traceID, spanID, ok := GetTraceFields(ctx)
	require.True(t, ok)
	assert.Len(t, traceID, 32)
	assert.Len(t, spanID, 16)

	span.End()

	assert.Contains(t, buf.String(), "fetch_trades")
	assert.Contains(t, buf.String(), "cowswap-improvement")
}

func TestShutdown_WithoutInit(t *testing.T) {
	assert.NoError(t, Shutdown(context.Background()))
}
