// Package agent implements the tool-calling orchestrator behind the
// invocation endpoints. The server depends only on the Runner interface;
// Agent is the default implementation, a bounded reasoning loop over an
// llms.LLMProvider and a tool registry.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tickerdesk/tickerdesk/pkg/llms"
	"github.com/tickerdesk/tickerdesk/pkg/observability"
	"github.com/tickerdesk/tickerdesk/pkg/tools"
)

const (
	// DefaultMaxIterations bounds the reasoning loop.
	DefaultMaxIterations = 10

	// DefaultContextBudget is the transcript token budget enforced
	// before each model call.
	DefaultContextBudget = 8000

	// maxReasoningChars caps reasoning text in stream events.
	maxReasoningChars = 1000

	// maxToolResultChars caps tool result text in stream events.
	maxToolResultChars = 2000

	// eventBuffer decouples the producing loop from the consuming
	// relay.
	eventBuffer = 100
)

// defaultSystemPrompt frames the agent when no custom prompt is given.
const defaultSystemPrompt = "You are a financial assistant. You can look up " +
	"current and historical stock prices and search indexed financial " +
	"documents. Use the available tools when they help answer the question, " +
	"and answer concisely from their results."

// Runner is the narrow contract the server consumes.
type Runner interface {
	// Run executes one invocation. The returned channel delivers
	// events in production order and is closed after the terminal
	// final_answer or error event.
	Run(ctx context.Context, prompt string) <-chan StreamEvent
}

// Agent is a bounded tool-calling loop over an LLM provider.
type Agent struct {
	llm           llms.LLMProvider
	tools         *tools.ToolRegistry
	counter       *TokenCounter
	recorder      observability.Recorder
	tracer        trace.Tracer
	systemPrompt  string
	maxIterations int
	contextBudget int
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxIterations overrides the reasoning loop bound.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithSystemPrompt overrides the default system prompt. An empty string
// drops the system message entirely.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.systemPrompt = prompt
	}
}

// WithContextBudget overrides the transcript token budget.
func WithContextBudget(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.contextBudget = n
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder observability.Recorder) Option {
	return func(a *Agent) {
		if recorder != nil {
			a.recorder = recorder
		}
	}
}

// WithTracer sets the tracer for invocation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Agent) {
		a.tracer = tracer
	}
}

// New creates an Agent over the given provider and tool registry.
func New(llm llms.LLMProvider, registry *tools.ToolRegistry, opts ...Option) (*Agent, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	counter, err := NewTokenCounter(llm.GetModelName())
	if err != nil {
		return nil, fmt.Errorf("failed to create token counter: %w", err)
	}

	a := &Agent{
		llm:           llm,
		tools:         registry,
		counter:       counter,
		recorder:      observability.NoopRecorder{},
		systemPrompt:  defaultSystemPrompt,
		maxIterations: DefaultMaxIterations,
		contextBudget: DefaultContextBudget,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Run starts one invocation. The producer goroutine closes the channel
// after the terminal event; cancellation via ctx aborts the loop between
// events.
func (a *Agent) Run(ctx context.Context, prompt string) <-chan StreamEvent {
	events := make(chan StreamEvent, eventBuffer)

	go func() {
		defer close(events)
		a.run(ctx, prompt, events)
	}()

	return events
}

func (a *Agent) run(ctx context.Context, prompt string, events chan<- StreamEvent) {
	startTime := time.Now()

	var span trace.Span
	if a.tracer != nil {
		ctx, span = a.tracer.Start(ctx, observability.SpanInvocation,
			trace.WithAttributes(attribute.String(observability.AttrLLMModel, a.llm.GetModelName())),
		)
		defer span.End()
	}

	var runErr error
	step := 0
	defer func() {
		if span != nil {
			if runErr != nil {
				span.RecordError(runErr)
				span.SetStatus(codes.Error, runErr.Error())
			} else {
				span.SetStatus(codes.Ok, "completed")
			}
		}
		a.recorder.RecordInvocation(ctx, time.Since(startTime), step, runErr)
	}()

	var conversation []llms.Message
	if a.systemPrompt != "" {
		conversation = append(conversation, llms.Message{Role: llms.RoleSystem, Content: a.systemPrompt})
	}
	conversation = append(conversation, llms.Message{Role: llms.RoleUser, Content: prompt})

	toolDefs := a.tools.Definitions()

	for step < a.maxIterations {
		step++

		if err := ctx.Err(); err != nil {
			runErr = err
			a.emit(ctx, events, ErrorEvent(fmt.Sprintf("Error processing query: %v", err), step))
			return
		}

		text, toolCalls, err := a.callLLM(ctx, conversation, toolDefs)
		if err != nil {
			runErr = err
			a.emit(ctx, events, ErrorEvent(fmt.Sprintf("Error processing query: %v", err), step))
			return
		}

		// No tool calls means the model is done: the text is the answer.
		if len(toolCalls) == 0 {
			a.emit(ctx, events, FinalAnswerEvent(text, step))
			return
		}

		if text != "" {
			if !a.emit(ctx, events, ReasoningEvent(truncate(text, maxReasoningChars), step)) {
				runErr = ctx.Err()
				return
			}
		}

		results, ok := a.executeTools(ctx, toolCalls, step, events)
		if !ok {
			runErr = ctx.Err()
			return
		}

		// Function-calling protocol: assistant message with the calls,
		// then one tool message per result.
		conversation = append(conversation, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   text,
			ToolCalls: toolCalls,
		})
		for _, result := range results {
			conversation = append(conversation, llms.Message{
				Role:       llms.RoleTool,
				Content:    result.content,
				ToolCallID: result.callID,
				Name:       result.name,
			})
		}
	}

	a.emit(ctx, events, FinalAnswerEvent(fmt.Sprintf(
		"Stopped after %d reasoning steps without a final answer. The information gathered so far may be incomplete.",
		a.maxIterations), step))
}

// callLLM invokes the provider with the budget-fitted transcript and
// records the call.
func (a *Agent) callLLM(ctx context.Context, conversation []llms.Message, toolDefs []llms.ToolDefinition) (string, []*llms.ToolCall, error) {
	messages := a.fitContext(conversation)

	inputTokens := 0
	if a.counter != nil {
		inputTokens = a.counter.CountMessages(messages)
	}

	callStart := time.Now()
	text, toolCalls, tokens, err := a.llm.Generate(ctx, messages, toolDefs)

	outputTokens := tokens - inputTokens
	if outputTokens < 0 {
		outputTokens = 0
	}
	a.recorder.RecordLLMCall(ctx, a.llm.GetModelName(), time.Since(callStart), inputTokens, outputTokens, err)

	if err != nil {
		return "", nil, fmt.Errorf("llm call failed: %w", err)
	}
	return text, toolCalls, nil
}

// toolOutcome pairs a tool call with the transcript content its result
// produced.
type toolOutcome struct {
	callID  string
	name    string
	content string
}

// executeTools runs the proposed calls sequentially, emitting a tool_call
// and tool_result event around each. Tool failures are non-fatal; their
// message becomes the result content. Returns false when cancelled.
func (a *Agent) executeTools(ctx context.Context, toolCalls []*llms.ToolCall, step int, events chan<- StreamEvent) ([]toolOutcome, bool) {
	outcomes := make([]toolOutcome, 0, len(toolCalls))

	for _, call := range toolCalls {
		select {
		case <-ctx.Done():
			return outcomes, false
		default:
		}

		if !a.emit(ctx, events, ToolCallEvent(call.Name, call.Args, step)) {
			return outcomes, false
		}

		result, err := a.tools.ExecuteTool(ctx, call.Name, call.Args)

		content := result.Content
		if err != nil || !result.Success {
			msg := result.Error
			if msg == "" && err != nil {
				msg = err.Error()
			}
			content = fmt.Sprintf("Error executing tool '%s': %s", call.Name, msg)
		}

		if !a.emit(ctx, events, ToolResultEvent(call.Name, truncateWithMarker(content, maxToolResultChars), step)) {
			return outcomes, false
		}

		outcomes = append(outcomes, toolOutcome{
			callID:  call.ID,
			name:    call.Name,
			content: content,
		})
	}

	return outcomes, true
}

// fitContext trims the oldest turns when the transcript exceeds the token
// budget, always keeping the system message.
func (a *Agent) fitContext(conversation []llms.Message) []llms.Message {
	if a.counter == nil || a.contextBudget <= 0 {
		return conversation
	}
	if a.counter.CountMessages(conversation) <= a.contextBudget {
		return conversation
	}

	head := 0
	if len(conversation) > 0 && conversation[0].Role == llms.RoleSystem {
		head = 1
	}

	budget := a.contextBudget
	if head > 0 {
		budget -= a.counter.CountMessages(conversation[:head])
	}

	fitted := a.counter.FitWithinLimit(conversation[head:], budget)
	return append(conversation[:head:head], fitted...)
}

// emit delivers an event unless the context is cancelled, and counts it.
func (a *Agent) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		a.recorder.RecordStreamEvent(ctx, ev.Type)
		return true
	case <-ctx.Done():
		return false
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func truncateWithMarker(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... [truncated]"
}
