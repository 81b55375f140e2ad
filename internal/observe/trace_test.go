package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider as the global one.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs points slog.Default at a buffer for the duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestStartSpan_FrameSpan(t *testing.T) {
	exp := useTracer(t)

	ctx, span := StartSpan(context.Background(), "orchestrator.process_frame", FrameAttrs(3, "macbeth"))
	cid := CorrelationID(ctx)
	span.End()

	if len(cid) != 32 || strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation id %q is not a 32 digit hex trace id", cid)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "orchestrator.process_frame" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[0].InstrumentationScope.Name != tracerName {
		t.Errorf("instrumentation scope = %q, want %q", spans[0].InstrumentationScope.Name, tracerName)
	}

	var index int64
	var speaker string
	for _, kv := range spans[0].Attributes {
		switch kv.Key {
		case "frame.index":
			index = kv.Value.AsInt64()
		case "frame.speaker":
			speaker = kv.Value.AsString()
		}
	}
	if index != 3 || speaker != "macbeth" {
		t.Errorf("attributes = %d/%q, want 3/macbeth", index, speaker)
	}
}

func TestCorrelationID_PerFrame(t *testing.T) {
	useTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	seen := make(map[string]bool, 50)
	for i := range 50 {
		ctx, span := StartSpan(context.Background(), "frame", FrameAttrs(i, "banquo"))
		cid := CorrelationID(ctx)
		span.End()
		if seen[cid] {
			t.Fatalf("frame %d reused correlation id %s", i, cid)
		}
		seen[cid] = true
	}
}

func TestCorrelationID_ChildSharesTrace(t *testing.T) {
	useTracer(t)

	ctx, parent := StartSpan(context.Background(), "render")
	defer parent.End()
	child, span := StartSpan(ctx, "frame")
	defer span.End()

	if CorrelationID(child) != CorrelationID(ctx) {
		t.Error("frame span started a new trace instead of joining the render")
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)

	tests := []struct {
		name      string
		withSpan  bool
		wantTrace bool
	}{
		{name: "inside frame span", withSpan: true, wantTrace: true},
		{name: "no span", withSpan: false, wantTrace: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogs(t)
			ctx := context.Background()
			if tt.withSpan {
				c, s := StartSpan(ctx, "frame")
				defer s.End()
				ctx = c
			}

			Logger(ctx).Info("frame assembled", "index", 0)

			out := buf.String()
			for _, key := range []string{"trace_id=", "span_id="} {
				if got := strings.Contains(out, key); got != tt.wantTrace {
					t.Errorf("%s present = %v, want %v in %q", key, got, tt.wantTrace, out)
				}
			}
			if !strings.Contains(out, "index=0") {
				t.Errorf("log line lost its attributes: %q", out)
			}
		})
	}
}
