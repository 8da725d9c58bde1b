package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTracingWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "marketing-agent", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestExporterOptions(t *testing.T) {
	opts, err := exporterOptions("http://collector:4318/v1/traces")
	require.NoError(t, err)
	require.Len(t, opts, 3)

	opts, err = exporterOptions("collector:4318")
	require.NoError(t, err)
	require.Len(t, opts, 1)

	_, err = exporterOptions("http:///missing-host")
	require.Error(t, err)
}
