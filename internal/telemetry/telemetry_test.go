package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupNoneIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Exporter: ExporterNone})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupUnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Config{Exporter: "zipkin"})
	require.Error(t, err)
}

func TestSetupOTLPRequiresEndpoint(t *testing.T) {
	_, err := Setup(context.Background(), Config{Exporter: ExporterOTLP})
	require.Error(t, err)
}

func TestSetupStdoutExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), Config{
		Exporter:    ExporterStdout,
		ServiceName: "vegshop-test",
		Version:     "test",
		Writer:      &buf,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "checkout.place_order")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), "checkout.place_order")
	require.Contains(t, buf.String(), "vegshop-test")
}
