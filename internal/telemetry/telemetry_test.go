package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestManager(t *testing.T) (*Manager, *tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	exporter := tracetest.NewInMemoryExporter()
	mgr, err := NewManager(context.Background(), Config{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter))),
		MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })
	return mgr, exporter, reader
}

func TestManagerRecordsTurnSpanAndMetrics(t *testing.T) {
	mgr, exporter, reader := newTestManager(t)
	ctx := context.Background()

	_, span := mgr.StartTurn(ctx, "sid-1")
	EndSpan(span, errors.New("upstream exploded"))
	mgr.RecordTurn(ctx, TurnData{SessionID: "sid-1", Fragments: 3, Duration: 20 * time.Millisecond})
	mgr.RecordSessionCreated(ctx)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "chat.turn", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
			if m.Name == "interview.chat.fragments" {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				require.Len(t, sum.DataPoints, 1)
				assert.EqualValues(t, 3, sum.DataPoints[0].Value)
			}
		}
	}
	for _, name := range []string{"interview.sessions.created", "interview.chat.turns", "interview.chat.fragments", "interview.chat.latency.ms"} {
		assert.True(t, found[name], "missing metric %s", name)
	}
}

func TestNilManagerIsNoop(t *testing.T) {
	var mgr *Manager
	ctx, span := mgr.StartTurn(context.Background(), "sid")
	assert.NotNil(t, ctx)
	EndSpan(span, nil)
	mgr.RecordTurn(ctx, TurnData{})
	mgr.RecordSessionCreated(ctx)
	assert.NoError(t, mgr.Shutdown(ctx))
}
