package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no point with %s=%s", name, key, value)
	return 0
}

func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is not a histogram", name)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"conductor.frame.duration", m.FrameDuration},
		{"conductor.lookahead.fill.duration", m.FillDuration},
		{"conductor.llm.duration", m.LLMDuration},
		{"conductor.tool.duration", m.ToolDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 0.002)
		tc.h.Record(ctx, 0.3)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			if got := histogramCount(t, rm, tc.name); got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrame(ctx, "MUSICAL", 0.001)
	m.RecordFrame(ctx, "MUSICAL", 0.002)
	m.RecordFrame(ctx, "SCIENTIFIC", 0.001)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "conductor.frames", "mode", "MUSICAL"); got != 2 {
		t.Errorf("MUSICAL frames = %d, want 2", got)
	}
	if got := histogramCount(t, rm, "conductor.frame.duration"); got != 3 {
		t.Errorf("frame duration samples = %d, want 3", got)
	}
}

func TestRecordFill_NoopSkipsDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFill(ctx, "ok", 0.01)
	m.RecordFill(ctx, "noop", 0)
	m.RecordFill(ctx, "noop", 0)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "conductor.lookahead.passes", "outcome", "noop"); got != 2 {
		t.Errorf("noop passes = %d, want 2", got)
	}
	if got := histogramCount(t, rm, "conductor.lookahead.fill.duration"); got != 1 {
		t.Errorf("fill duration samples = %d, want 1", got)
	}
}

func TestRecordAIFallback(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAIFallback(ctx, "error")
	m.RecordAIFallback(ctx, "empty")
	m.RecordAIFallback(ctx, "error")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "conductor.ai.fallbacks", "reason", "error"); got != 2 {
		t.Errorf("error fallbacks = %d, want 2", got)
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "generate_leitmotif", "ok", 0.004)
	m.RecordToolCall(ctx, "generate_leitmotif", "error", 0.001)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "conductor.tool.calls", "status", "error"); got != 1 {
		t.Errorf("error calls = %d, want 1", got)
	}
	if got := histogramCount(t, rm, "conductor.tool.duration"); got != 2 {
		t.Errorf("tool duration samples = %d, want 2", got)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.RecordBreakerTransition(context.Background(), "openai", "open")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "conductor.breaker.transitions", "state", "open"); got != 1 {
		t.Errorf("transitions = %d, want 1", got)
	}
}

func TestUpDownCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.PendingRequests.Add(ctx, 3)
	m.PendingRequests.Add(ctx, -2)
	m.ActiveConnections.Add(ctx, 1)

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"conductor.worker.pending": 1,
		"conductor.ws.connections": 1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok || len(sum.DataPoints) != 1 {
			t.Fatalf("metric %q: unexpected data %T", name, met.Data)
		}
		if sum.DataPoints[0].Value != want {
			t.Errorf("%s = %d, want %d", name, sum.DataPoints[0].Value, want)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
