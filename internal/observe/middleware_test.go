package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type harness struct {
	metrics *Metrics
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
}

// newHarness installs an in-memory tracer provider for the duration of the
// test. Tests using it must not run in parallel.
func newHarness(t *testing.T) harness {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	return harness{metrics: m, reader: reader, spans: exp}
}

// scoreMux mimics the score API routes of the serve command.
func scoreMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/scores/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			http.Error(w, "score not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func durationPoints(t *testing.T, h harness) []metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "conductor.http.request.duration")
	if met == nil {
		t.Fatal("conductor.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want histogram", met.Data)
	}
	return hist.DataPoints
}

func attrString(set attribute.Set, key string) string {
	v, _ := set.Value(attribute.Key(key))
	return v.Emit()
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	h := newHarness(t)
	handler := Middleware(h.metrics)(scoreMux())

	for _, id := range []string{"score_a", "score_b", "missing"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/scores/"+id, nil))
	}

	points := durationPoints(t, h)
	counts := map[string]uint64{}
	for _, dp := range points {
		if got := attrString(dp.Attributes, "route"); got != "GET /api/scores/{id}" {
			t.Errorf("route = %q, want the mux pattern", got)
		}
		counts[attrString(dp.Attributes, "status")] += dp.Count
	}
	if counts["200"] != 2 || counts["404"] != 1 {
		t.Errorf("counts by status = %v, want 200:2 404:1", counts)
	}

	spans := h.spans.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("spans = %d, want 3", len(spans))
	}
	if spans[0].Name != "HTTP GET /api/scores/score_a" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	var status int64
	for _, a := range spans[2].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusNotFound {
		t.Errorf("span status code = %d, want 404", status)
	}
}

func TestMiddleware_UnroutedPathFallsBack(t *testing.T) {
	h := newHarness(t)
	handler := Middleware(h.metrics)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/mcp", nil))

	points := durationPoints(t, h)
	if len(points) != 1 {
		t.Fatalf("data points = %d, want 1", len(points))
	}
	if got := attrString(points[0].Attributes, "route"); got != "/mcp" {
		t.Errorf("route = %q, want /mcp", got)
	}
	if got := attrString(points[0].Attributes, "method"); got != "POST" {
		t.Errorf("method = %q, want POST", got)
	}
}

func TestMiddleware_CorrelationID(t *testing.T) {
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	tests := []struct {
		name        string
		traceparent string
		want        string
	}{
		{name: "generated"},
		{name: "continued", traceparent: "00-" + traceID + "-00f067aa0ba902b7-01", want: traceID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			var seen string
			handler := Middleware(h.metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationID(r.Context())
			}))

			req := httptest.NewRequest("GET", "/api/scores", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if len(seen) != 32 {
				t.Fatalf("correlation id %q is not a trace id", seen)
			}
			if tt.want != "" && seen != tt.want {
				t.Errorf("correlation id = %q, want %q", seen, tt.want)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != seen {
				t.Errorf("X-Correlation-ID = %q, want %q", got, seen)
			}
			if !strings.Contains(rec.Header().Get("traceparent"), seen) {
				t.Errorf("traceparent %q does not carry the trace id", rec.Header().Get("traceparent"))
			}
		})
	}
}

func TestMiddleware_WebSocketUpgrade(t *testing.T) {
	h := newHarness(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("Accept behind middleware: %v", err)
			return
		}
		defer c.CloseNow()
		for {
			if _, _, err := c.Read(r.Context()); err != nil {
				return
			}
		}
	})

	done := make(chan struct{})
	wrapped := Middleware(h.metrics)(mux)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		wrapped.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := c.Write(ctx, websocket.MessageText, []byte(`{"type":"RESET"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	c.Close(websocket.StatusNormalClosure, "done")

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("handler did not return after close")
	}

	spans := h.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusSwitchingProtocols {
		t.Errorf("status code = %d, want 101", status)
	}
}
