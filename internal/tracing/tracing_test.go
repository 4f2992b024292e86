package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabled(t *testing.T) {
	p, err := Init(Config{Enabled: false})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitEnabled(t *testing.T) {
	p, err := Init(Config{
		Enabled:     true,
		ServiceName: "stackprobe-test",
		JaegerURL:   "http://127.0.0.1:1/api/traces",
		SampleRate:  1,
	})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "run")
	assert.True(t, span.IsRecording())
	span.End()
}

func TestRecordError(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(sr))

	_, span := tp.Tracer("test").Start(context.Background(), "layer")
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "boom", spans[0].Status().Description)
}
