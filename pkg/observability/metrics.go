package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// PrometheusRecorder implements Recorder on OpenTelemetry instruments
// backed by a dedicated Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	invocationDuration metric.Float64Histogram
	invocationsTotal   metric.Int64Counter
	invocationErrors   metric.Int64Counter
	invocationSteps    metric.Int64Counter

	toolDuration   metric.Float64Histogram
	toolCallsTotal metric.Int64Counter
	toolErrors     metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmCallsTotal   metric.Int64Counter
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrors       metric.Int64Counter

	streamEvents metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
}

// NewRecorderFromConfig returns a PrometheusRecorder when metrics are
// enabled and a NoopRecorder otherwise.
func NewRecorderFromConfig(cfg MetricsConfig) (Recorder, error) {
	if !cfg.Enabled {
		return NoopRecorder{}, nil
	}
	return NewPrometheusRecorder(cfg)
}

// NewPrometheusRecorder builds the full instrument set for the service.
func NewPrometheusRecorder(cfg MetricsConfig) (*PrometheusRecorder, error) {
	cfg.SetDefaults()

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	meter := provider.Meter(cfg.Namespace)
	name := func(suffix string) string { return cfg.Namespace + "_" + suffix }

	r := &PrometheusRecorder{
		registry: registry,
		provider: provider,
	}

	if r.invocationDuration, err = meter.Float64Histogram(
		name("invocation_duration_seconds"),
		metric.WithDescription("Agent invocation duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create invocation duration histogram: %w", err)
	}

	if r.invocationsTotal, err = meter.Int64Counter(
		name("invocations_total"),
		metric.WithDescription("Total agent invocations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create invocations counter: %w", err)
	}

	if r.invocationErrors, err = meter.Int64Counter(
		name("invocation_errors_total"),
		metric.WithDescription("Total failed agent invocations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create invocation errors counter: %w", err)
	}

	if r.invocationSteps, err = meter.Int64Counter(
		name("invocation_steps_total"),
		metric.WithDescription("Total reasoning steps across invocations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create invocation steps counter: %w", err)
	}

	if r.toolDuration, err = meter.Float64Histogram(
		name("tool_execution_duration_seconds"),
		metric.WithDescription("Tool execution duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	if r.toolCallsTotal, err = meter.Int64Counter(
		name("tool_calls_total"),
		metric.WithDescription("Total tool executions"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	if r.toolErrors, err = meter.Int64Counter(
		name("tool_errors_total"),
		metric.WithDescription("Total failed tool executions"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	if r.llmDuration, err = meter.Float64Histogram(
		name("llm_request_duration_seconds"),
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	if r.llmCallsTotal, err = meter.Int64Counter(
		name("llm_calls_total"),
		metric.WithDescription("Total LLM requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm calls counter: %w", err)
	}

	if r.llmInputTokens, err = meter.Int64Counter(
		name("llm_tokens_input_total"),
		metric.WithDescription("Total input tokens sent to the LLM"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	if r.llmOutputTokens, err = meter.Int64Counter(
		name("llm_tokens_output_total"),
		metric.WithDescription("Total output tokens from the LLM"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	if r.llmErrors, err = meter.Int64Counter(
		name("llm_errors_total"),
		metric.WithDescription("Total failed LLM requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	if r.streamEvents, err = meter.Int64Counter(
		name("stream_events_total"),
		metric.WithDescription("Total stream events emitted"),
	); err != nil {
		return nil, fmt.Errorf("failed to create stream events counter: %w", err)
	}

	if r.httpDuration, err = meter.Float64Histogram(
		name("http_request_duration_seconds"),
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	if r.httpRequests, err = meter.Int64Counter(
		name("http_requests_total"),
		metric.WithDescription("Total HTTP requests served"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	return r, nil
}

func (r *PrometheusRecorder) RecordInvocation(ctx context.Context, duration time.Duration, steps int, err error) {
	if r == nil || r.invocationDuration == nil {
		return
	}

	r.invocationDuration.Record(ctx, duration.Seconds())
	r.invocationsTotal.Add(ctx, 1)

	if steps > 0 {
		r.invocationSteps.Add(ctx, int64(steps))
	}
	if err != nil {
		r.invocationErrors.Add(ctx, 1)
	}
}

func (r *PrometheusRecorder) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if r == nil || r.toolDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("tool", tool))

	r.toolDuration.Record(ctx, duration.Seconds(), attrs)
	r.toolCallsTotal.Add(ctx, 1, attrs)

	if err != nil {
		r.toolErrors.Add(ctx, 1, attrs)
	}
}

func (r *PrometheusRecorder) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if r == nil || r.llmDuration == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("model", model))

	r.llmDuration.Record(ctx, duration.Seconds(), attrs)
	r.llmCallsTotal.Add(ctx, 1, attrs)

	if inputTokens > 0 {
		r.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	}
	if outputTokens > 0 {
		r.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	}
	if err != nil {
		r.llmErrors.Add(ctx, 1, attrs)
	}
}

func (r *PrometheusRecorder) RecordStreamEvent(ctx context.Context, eventType string) {
	if r == nil || r.streamEvents == nil {
		return
	}

	r.streamEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (r *PrometheusRecorder) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if r == nil || r.httpDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", statusCode),
	)

	r.httpDuration.Record(ctx, duration.Seconds(), attrs)
	r.httpRequests.Add(ctx, 1, attrs)
}

// Handler serves the registry in Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	if r == nil || r.registry == nil {
		return NoopRecorder{}.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the underlying meter provider.
func (r *PrometheusRecorder) Shutdown(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}
