package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupInstallsGlobalProviderAndShutdownIsClean(t *testing.T) {
	shutdown := Setup("test-service")

	tracer := otel.Tracer("test")
	_, span := tracer.Start(context.Background(), "unit-test-span")
	span.End()

	assert.True(t, span.SpanContext().IsValid())
	require.NoError(t, shutdown(context.Background()))
}
