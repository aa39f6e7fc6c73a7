package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSessionID(ctx))
	assert.Zero(t, GetAttempt(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithSessionID(ctx, "session-1")
	ctx = WithAttempt(ctx, 2)
	ctx = WithRequestID(ctx, "req-1")

	tc := FromContext(ctx)
	assert.Equal(t, "trace-1", tc.TraceID)
	assert.Equal(t, "session-1", tc.SessionID)
	assert.Equal(t, 2, tc.Attempt)
	assert.Equal(t, "req-1", tc.RequestID)
}

func TestNewAttemptContext(t *testing.T) {
	t.Run("should keep existing trace id", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "trace-keep")
		ctx = NewAttemptContext(ctx, "s-2", 2)

		assert.Equal(t, "trace-keep", GetTraceID(ctx))
		assert.Equal(t, "s-2", GetSessionID(ctx))
		assert.Equal(t, 2, GetAttempt(ctx))
	})

	t.Run("should create trace id when missing", func(t *testing.T) {
		ctx := NewAttemptContext(context.Background(), "s-1", 1)
		assert.NotEmpty(t, GetTraceID(ctx))
	})
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := NewAttemptContext(WithTraceID(context.Background(), "trace-9"), "session-9", 3)
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, `"trace_id":"trace-9"`)
	assert.Contains(t, out, `"session_id":"session-9"`)
	assert.Contains(t, out, `"attempt":3`)
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "ideascout.test", "test.span")
	require.NotNil(t, span)
	defer span.End()

	assert.NotNil(t, ctx)
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
}
