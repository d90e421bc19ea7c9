package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry holds in-memory OpenTelemetry providers for tests.
type TestTelemetry struct {
	tp    *sdktrace.TracerProvider
	mp    *sdkmetric.MeterProvider
	mr    *sdkmetric.ManualReader
	spans *tracetest.InMemoryExporter
	tel   *Telemetry
}

// NewTestTelemetry creates a new TestTelemetry instance for testing
func NewTestTelemetry(t *testing.T) *TestTelemetry {
	t.Helper()

	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	otel.SetTracerProvider(tp)

	mr := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(mr))
	otel.SetMeterProvider(mp)

	tel, err := build(tp, mp, true)
	if err != nil {
		t.Fatalf("build telemetry: %v", err)
	}

	return &TestTelemetry{
		tp:    tp,
		mp:    mp,
		mr:    mr,
		spans: spans,
		tel:   tel,
	}
}

// Telemetry returns a Telemetry wired to the in-memory providers.
func (tt *TestTelemetry) Telemetry() *Telemetry {
	return tt.tel
}

// Shutdown gracefully shuts down the test telemetry providers
func (tt *TestTelemetry) Shutdown(ctx context.Context) error {
	if err := tt.tp.Shutdown(ctx); err != nil {
		return err
	}
	return tt.mp.Shutdown(ctx)
}

// GetReader returns the metric reader for testing
func (tt *TestTelemetry) GetReader() *sdkmetric.ManualReader {
	return tt.mr
}

// Spans returns every span ended so far.
func (tt *TestTelemetry) Spans() tracetest.SpanStubs {
	return tt.spans.GetSpans()
}

// Collect gathers the current metric state.
func (tt *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := tt.mr.Collect(ctx, &rm)
	return rm, err
}

// FindMetric returns the metric called name, if it was collected.
func FindMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}
