package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(DefaultTracingConfig())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	err = NewPhaseTracer("rest").Trace(context.Background(), "people", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestPhaseTracerExportsSpans(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Writer = &buf

	shutdown, err := InitTracing(cfg)
	require.NoError(t, err)

	boom := errors.New("boom")
	tracer := NewPhaseTracer("rest")
	err = tracer.Trace(context.Background(), "contributions", func(ctx context.Context) error {
		_, span := StartSpan(ctx, "page")
		span.SetAttribute("page", 1)
		span.SetAttribute("endpoint", "/donations")
		span.Finish(nil)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "rest.contributions")
	assert.Contains(t, out, "\"page\"")
	assert.Contains(t, out, "boom")
}
