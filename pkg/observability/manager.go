package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the tracer provider and metrics recorder for the process.
// A zero Manager is usable and reports everything as disabled.
type Manager struct {
	config         Config
	tracerProvider trace.TracerProvider
	recorder       Recorder
	mu             sync.RWMutex
}

// NewManager creates a Manager from configuration. Call Initialize
// before use.
func NewManager(cfg Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// Initialize sets up tracing and metrics according to the config.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitTracing(ctx, m.config.Tracing)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	recorder, err := NewRecorderFromConfig(m.config.Metrics)
	if err != nil {
		return err
	}
	m.recorder = recorder

	return nil
}

// Tracer returns a named tracer from the managed provider.
func (m *Manager) Tracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return m.tracerProvider.Tracer(name)
}

// Recorder returns the metrics recorder, never nil.
func (m *Manager) Recorder() Recorder {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.recorder == nil {
		return NoopRecorder{}
	}
	return m.recorder
}

// MetricsEnabled reports whether metrics collection is on.
func (m *Manager) MetricsEnabled() bool {
	return m.config.Metrics.Enabled
}

// MetricsEndpoint returns the path the metrics handler should be
// mounted on.
func (m *Manager) MetricsEndpoint() string {
	if m.config.Metrics.Endpoint == "" {
		return DefaultMetricsPath
	}
	return m.config.Metrics.Endpoint
}

// Shutdown flushes exporters and stops providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.recorder.(*PrometheusRecorder); ok {
		if err := r.Shutdown(ctx); err != nil {
			return err
		}
	}

	if tp, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		return tp.Shutdown(ctx)
	}
	return nil
}
