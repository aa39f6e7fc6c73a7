package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func resourceValue(t *testing.T, stub tracetest.SpanStub, key attribute.Key) string {
	t.Helper()
	require.NotNil(t, stub.Resource)
	v, ok := stub.Resource.Set().Value(key)
	require.True(t, ok, "resource should carry %s", key)
	return v.AsString()
}

func TestNewTracerProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("should describe the service on exported spans", func(t *testing.T) {
		exporter := tracetest.NewInMemoryExporter()
		tp, err := newTracerProvider(ProviderConfig{
			ServiceName:    "ideascout",
			ServiceVersion: "1.2.3",
			Environment:    "staging",
			SampleRatio:    1,
			Exporter:       exporter,
		})
		require.NoError(t, err)
		defer tp.Shutdown(ctx)

		_, span := tp.Tracer("ideascout.test").Start(ctx, "research.request")
		span.End()
		require.NoError(t, tp.ForceFlush(ctx))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "ideascout", resourceValue(t, spans[0], semconv.ServiceNameKey))
		assert.Equal(t, "1.2.3", resourceValue(t, spans[0], semconv.ServiceVersionKey))
		assert.Equal(t, "staging", resourceValue(t, spans[0], semconv.DeploymentEnvironmentKey))
		assert.NotEmpty(t, resourceValue(t, spans[0], semconv.ServiceInstanceIDKey))
		assert.Equal(t, "go", resourceValue(t, spans[0], semconv.ProcessRuntimeNameKey))
	})

	t.Run("should drop spans when the ratio is zero", func(t *testing.T) {
		exporter := tracetest.NewInMemoryExporter()
		tp, err := newTracerProvider(ProviderConfig{ServiceName: "ideascout", Exporter: exporter})
		require.NoError(t, err)
		defer tp.Shutdown(ctx)

		_, span := tp.Tracer("ideascout.test").Start(ctx, "research.request")
		span.End()
		require.NoError(t, tp.ForceFlush(ctx))

		assert.Empty(t, exporter.GetSpans())
	})

	t.Run("should require a service name", func(t *testing.T) {
		_, err := newTracerProvider(ProviderConfig{SampleRatio: 1})
		assert.Error(t, err)
	})
}
