// Package observe provides the observability primitives of the conductor:
// OpenTelemetry metrics, tracing, trace-aware logging and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// for Prometheus scraping by [InitProvider]. [DefaultMetrics] uses the global
// meter provider; tests should call [NewMetrics] with their own provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Planet9V/mpn-conductor-standalone-sub000"

// Metrics holds every metric instrument of the conductor.
type Metrics struct {
	// ── Latency ──

	// FrameDuration tracks ProcessFrame latency.
	FrameDuration metric.Float64Histogram

	// FillDuration tracks one look-ahead fill pass.
	FillDuration metric.Float64Histogram

	// LLMDuration tracks melody requests to language-model backends.
	LLMDuration metric.Float64Histogram

	// ToolDuration tracks MCP tool execution.
	ToolDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP handling by method and path.
	HTTPRequestDuration metric.Float64Histogram

	// ── Counters ──

	// FramesProcessed counts frames by orchestration mode.
	FramesProcessed metric.Int64Counter

	// FillPasses counts look-ahead passes by outcome (ok, error, noop, stale).
	FillPasses metric.Int64Counter

	// CoalescedTriggers counts fill triggers folded into a running pass.
	CoalescedTriggers metric.Int64Counter

	// AIFallbacks counts AI melody requests answered by the algorithm.
	AIFallbacks metric.Int64Counter

	// DroppedResponses counts worker responses nobody waited for.
	DroppedResponses metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes.
	BreakerTransitions metric.Int64Counter

	// ToolCalls counts MCP tool invocations by tool and status.
	ToolCalls metric.Int64Counter

	// ── Gauges ──

	// PendingRequests tracks correlated worker requests awaiting a response.
	PendingRequests metric.Int64UpDownCounter

	// ActiveConnections tracks open WebSocket bridge connections.
	ActiveConnections metric.Int64UpDownCounter
}

// latencyBuckets are in seconds and cover sub-millisecond frames up to slow
// remote model calls.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	histogram := func(dst *metric.Float64Histogram, name, desc string) {
		if err != nil {
			return
		}
		*dst, err = m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}
	counter := func(dst *metric.Int64Counter, name, desc string) {
		if err != nil {
			return
		}
		*dst, err = m.Int64Counter(name, metric.WithDescription(desc))
	}
	gauge := func(dst *metric.Int64UpDownCounter, name, desc string) {
		if err != nil {
			return
		}
		*dst, err = m.Int64UpDownCounter(name, metric.WithDescription(desc))
	}

	histogram(&met.FrameDuration, "conductor.frame.duration", "Latency of processing one score frame.")
	histogram(&met.FillDuration, "conductor.lookahead.fill.duration", "Latency of one look-ahead fill pass.")
	histogram(&met.LLMDuration, "conductor.llm.duration", "Latency of AI melody requests.")
	histogram(&met.ToolDuration, "conductor.tool.duration", "Latency of MCP tool execution.")
	histogram(&met.HTTPRequestDuration, "conductor.http.request.duration", "HTTP request latency by method, route and status.")

	counter(&met.FramesProcessed, "conductor.frames", "Frames processed by orchestration mode.")
	counter(&met.FillPasses, "conductor.lookahead.passes", "Look-ahead fill passes by outcome.")
	counter(&met.CoalescedTriggers, "conductor.lookahead.coalesced", "Fill triggers coalesced into a running pass.")
	counter(&met.AIFallbacks, "conductor.ai.fallbacks", "AI melody requests that fell back to the algorithm.")
	counter(&met.DroppedResponses, "conductor.worker.dropped", "Worker responses without a waiting request.")
	counter(&met.BreakerTransitions, "conductor.breaker.transitions", "Circuit breaker state changes by backend.")
	counter(&met.ToolCalls, "conductor.tool.calls", "MCP tool invocations by tool and status.")

	gauge(&met.PendingRequests, "conductor.worker.pending", "Correlated worker requests awaiting a response.")
	gauge(&met.ActiveConnections, "conductor.ws.connections", "Open WebSocket bridge connections.")

	if err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built from
// [otel.GetMeterProvider] on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame records one processed frame.
func (m *Metrics) RecordFrame(ctx context.Context, mode string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.FramesProcessed.Add(ctx, 1, attrs)
	m.FrameDuration.Record(ctx, seconds, attrs)
}

// RecordFill records one fill pass and its outcome.
func (m *Metrics) RecordFill(ctx context.Context, outcome string, seconds float64) {
	m.FillPasses.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if outcome != "noop" {
		m.FillDuration.Record(ctx, seconds)
	}
}

// RecordAIFallback records an AI melody request answered by the algorithm.
func (m *Metrics) RecordAIFallback(ctx context.Context, reason string) {
	m.AIFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("state", to),
	))
}

// RecordToolCall records one MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("tool", tool), attribute.String("status", status))
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tool", tool)))
}
