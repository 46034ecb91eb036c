package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"mailomat/internal/platform/config"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(config.Tracing{Enabled: false}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_ExportsSpansOnShutdown(t *testing.T) {
	var out bytes.Buffer
	shutdown, err := Init(config.Tracing{Enabled: true, ServiceName: "mailomat-test"}, &out)
	require.NoError(t, err)

	_, span := otel.Tracer("tracing-test").Start(context.Background(), "probe")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), `"Name":"probe"`)
	assert.Contains(t, out.String(), "mailomat-test")
}
