package observability

import (
	"context"
	"net/http"
	"time"
)

// Recorder records service metrics. Implementations must be safe for
// concurrent use; all methods are no-ops on a nil or zero receiver so
// callers never need to guard recording sites.
type Recorder interface {
	// RecordInvocation records one completed agent invocation.
	RecordInvocation(ctx context.Context, duration time.Duration, steps int, err error)

	// RecordToolExecution records one tool execution, labeled by tool name.
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)

	// RecordLLMCall records one model request with its token usage.
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)

	// RecordStreamEvent counts one emitted stream event, labeled by type.
	RecordStreamEvent(ctx context.Context, eventType string)

	// RecordHTTPRequest records one served HTTP request.
	RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration)

	// Handler returns the HTTP handler serving the metrics endpoint.
	Handler() http.Handler
}

// NoopRecorder is a Recorder that discards everything.
// Used when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) RecordInvocation(context.Context, time.Duration, int, error)       {}
func (NoopRecorder) RecordToolExecution(context.Context, string, time.Duration, error) {}
func (NoopRecorder) RecordLLMCall(context.Context, string, time.Duration, int, int, error) {
}
func (NoopRecorder) RecordStreamEvent(context.Context, string) {}
func (NoopRecorder) RecordHTTPRequest(context.Context, string, string, int, time.Duration) {
}

// Handler returns a handler that reports metrics as unavailable.
func (NoopRecorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

var (
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = NoopRecorder{}
)
