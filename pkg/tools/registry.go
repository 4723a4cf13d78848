package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tickerdesk/tickerdesk/pkg/llms"
	"github.com/tickerdesk/tickerdesk/pkg/observability"
	"github.com/tickerdesk/tickerdesk/pkg/registry"
)

// ToolRegistry holds the registered tools and executes them by name with
// tracing and metrics around each call.
type ToolRegistry struct {
	*registry.BaseRegistry[Tool]

	tracer   trace.Tracer
	recorder observability.Recorder
}

// ToolRegistryOption configures a ToolRegistry.
type ToolRegistryOption func(*ToolRegistry)

// WithTracer sets the tracer used around tool executions.
func WithTracer(tracer trace.Tracer) ToolRegistryOption {
	return func(r *ToolRegistry) {
		r.tracer = tracer
	}
}

// WithRecorder sets the metrics recorder for tool executions.
func WithRecorder(recorder observability.Recorder) ToolRegistryOption {
	return func(r *ToolRegistry) {
		r.recorder = recorder
	}
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(opts ...ToolRegistryOption) *ToolRegistry {
	r := &ToolRegistry{
		BaseRegistry: registry.NewBaseRegistry[Tool](),
		recorder:     observability.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterTool adds a tool under its own name.
func (r *ToolRegistry) RegisterTool(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	return r.Register(tool.GetName(), tool)
}

// GetTool retrieves a tool by name.
func (r *ToolRegistry) GetTool(name string) (Tool, error) {
	tool, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("tool '%s' not found (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return tool, nil
}

// ListTools returns metadata for every registered tool, sorted by name.
func (r *ToolRegistry) ListTools() []ToolInfo {
	var infos []ToolInfo
	for _, tool := range r.List() {
		infos = append(infos, tool.GetInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	return infos
}

// Definitions returns every registered tool in the JSON-schema form the
// LLM providers consume, sorted by name so prompts stay stable.
func (r *ToolRegistry) Definitions() []llms.ToolDefinition {
	infos := r.ListTools()
	defs := make([]llms.ToolDefinition, 0, len(infos))
	for _, info := range infos {
		defs = append(defs, info.Definition())
	}
	return defs
}

// ExecuteTool runs the named tool. An unknown name or a failed execution
// comes back as a failure ToolResult alongside the error; callers relay
// the result in-band and decide how to proceed.
func (r *ToolRegistry) ExecuteTool(ctx context.Context, toolName string, args map[string]any) (ToolResult, error) {
	startTime := time.Now()

	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, observability.SpanToolExecution,
			trace.WithAttributes(
				attribute.String(observability.AttrToolName, toolName),
			),
		)
		defer span.End()
	}

	tool, err := r.GetTool(toolName)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tool not found")
		}
		r.recorder.RecordToolExecution(ctx, toolName, time.Since(startTime), err)

		return ToolResult{
			Success:  false,
			Error:    err.Error(),
			ToolName: toolName,
		}, err
	}

	result, execErr := tool.Execute(ctx, args)
	duration := time.Since(startTime)

	recordErr := execErr
	if recordErr == nil && !result.Success {
		recordErr = fmt.Errorf("%s", result.Error)
	}
	if span != nil {
		if recordErr != nil {
			span.RecordError(recordErr)
			span.SetStatus(codes.Error, recordErr.Error())
		} else {
			span.SetStatus(codes.Ok, "success")
		}
		span.SetAttributes(
			attribute.Bool("tool.success", result.Success),
			attribute.Int64("tool.duration_ms", duration.Milliseconds()),
		)
	}
	r.recorder.RecordToolExecution(ctx, toolName, duration, recordErr)

	return result, execErr
}
