package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/tickerdesk/tickerdesk/pkg/llms"
	"github.com/tickerdesk/tickerdesk/pkg/tools"
)

// scriptedLLM replays a fixed sequence of responses and records every
// transcript it was called with.
type scriptedLLM struct {
	responses []scriptedResponse
	calls     [][]llms.Message
}

type scriptedResponse struct {
	text      string
	toolCalls []*llms.ToolCall
	tokens    int
	err       error
}

func (s *scriptedLLM) Generate(_ context.Context, messages []llms.Message, _ []llms.ToolDefinition) (string, []*llms.ToolCall, int, error) {
	s.calls = append(s.calls, messages)

	i := len(s.calls) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	r := s.responses[i]
	return r.text, r.toolCalls, r.tokens, r.err
}

func (s *scriptedLLM) GenerateStreaming(context.Context, []llms.Message, []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	return nil, fmt.Errorf("streaming not supported")
}

func (s *scriptedLLM) GetModelName() string    { return "gpt-4o-mini" }
func (s *scriptedLLM) GetMaxTokens() int       { return 2048 }
func (s *scriptedLLM) GetTemperature() float64 { return 0 }
func (s *scriptedLLM) Close() error            { return nil }

// echoTool returns its configured content, or an error.
type echoTool struct {
	name    string
	content string
	err     error
}

func (e *echoTool) GetInfo() tools.ToolInfo {
	return tools.ToolInfo{Name: e.name, Description: "test tool"}
}
func (e *echoTool) GetName() string        { return e.name }
func (e *echoTool) GetDescription() string { return "test tool" }

func (e *echoTool) Execute(context.Context, map[string]any) (tools.ToolResult, error) {
	if e.err != nil {
		return tools.ToolResult{Success: false, Error: e.err.Error(), ToolName: e.name}, e.err
	}
	return tools.ToolResult{Success: true, Content: e.content, ToolName: e.name}, nil
}

func newTestAgent(t *testing.T, llm llms.LLMProvider, testTools ...tools.Tool) *Agent {
	t.Helper()

	registry := tools.NewToolRegistry()
	for _, tool := range testTools {
		if err := registry.RegisterTool(tool); err != nil {
			t.Fatalf("RegisterTool failed: %v", err)
		}
	}

	a, err := New(llm, registry)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()

	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestRunDirectAnswer(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{
		{text: "AMZN closed at $185.50.", tokens: 20},
	}}
	a := newTestAgent(t, llm)

	events := collect(t, a.Run(context.Background(), "What did AMZN close at?"))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventFinalAnswer {
		t.Errorf("event type = %s, want %s", events[0].Type, EventFinalAnswer)
	}
	if events[0].Content != "AMZN closed at $185.50." {
		t.Errorf("content = %v", events[0].Content)
	}
	if events[0].Step != 1 {
		t.Errorf("step = %d, want 1", events[0].Step)
	}
}

func TestRunWithToolCall(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{
		{
			text: "I need the current quote.",
			toolCalls: []*llms.ToolCall{
				{ID: "call-1", Name: "get_stock_price", Args: map[string]any{"symbol": "AMZN"}},
			},
		},
		{text: "AMZN is trading at $185.50."},
	}}
	a := newTestAgent(t, llm, &echoTool{name: "get_stock_price", content: `{"ticker": "AMZN"}`})

	events := collect(t, a.Run(context.Background(), "What is AMZN trading at?"))

	wantTypes := []string{EventReasoning, EventToolCall, EventToolResult, EventFinalAnswer}
	if len(events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantTypes), len(events), events)
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event[%d] type = %s, want %s", i, events[i].Type, want)
		}
	}

	if events[1].Name != "get_stock_price" {
		t.Errorf("tool_call name = %s", events[1].Name)
	}
	args, ok := events[1].Content.(map[string]any)
	if !ok {
		t.Fatalf("tool_call content is %T", events[1].Content)
	}
	if args["symbol"] != "AMZN" {
		t.Errorf("tool_call args = %v", args)
	}

	if events[2].Content != `{"ticker": "AMZN"}` {
		t.Errorf("tool_result content = %v", events[2].Content)
	}

	if events[0].Step != 1 || events[3].Step != 2 {
		t.Errorf("steps = %d, %d; want 1, 2", events[0].Step, events[3].Step)
	}
}

func TestRunTranscriptProtocol(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{
		{
			text: "Checking.",
			toolCalls: []*llms.ToolCall{
				{ID: "call-9", Name: "get_stock_price", Args: map[string]any{"symbol": "AMZN"}},
			},
		},
		{text: "Done."},
	}}
	a := newTestAgent(t, llm, &echoTool{name: "get_stock_price", content: "quote data"})

	collect(t, a.Run(context.Background(), "price?"))

	if len(llm.calls) != 2 {
		t.Fatalf("expected 2 llm calls, got %d", len(llm.calls))
	}

	first := llm.calls[0]
	if first[0].Role != llms.RoleSystem {
		t.Errorf("first message role = %s, want system", first[0].Role)
	}
	if first[len(first)-1].Role != llms.RoleUser || first[len(first)-1].Content != "price?" {
		t.Errorf("user message = %+v", first[len(first)-1])
	}

	second := llm.calls[1]
	if len(second) != len(first)+2 {
		t.Fatalf("second call has %d messages, want %d", len(second), len(first)+2)
	}

	assistant := second[len(second)-2]
	if assistant.Role != llms.RoleAssistant || len(assistant.ToolCalls) != 1 {
		t.Errorf("assistant message = %+v", assistant)
	}

	toolMsg := second[len(second)-1]
	if toolMsg.Role != llms.RoleTool {
		t.Errorf("tool message role = %s", toolMsg.Role)
	}
	if toolMsg.ToolCallID != "call-9" {
		t.Errorf("tool message call id = %s, want call-9", toolMsg.ToolCallID)
	}
	if toolMsg.Content != "quote data" {
		t.Errorf("tool message content = %s", toolMsg.Content)
	}
}

func TestRunToolFailureIsNonFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{
		{
			toolCalls: []*llms.ToolCall{
				{ID: "call-1", Name: "get_stock_price", Args: map[string]any{"symbol": "XXXX"}},
			},
		},
		{text: "I could not find that symbol."},
	}}
	a := newTestAgent(t, llm, &echoTool{name: "get_stock_price", err: fmt.Errorf("symbol not found")})

	events := collect(t, a.Run(context.Background(), "price of XXXX?"))

	last := events[len(events)-1]
	if last.Type != EventFinalAnswer {
		t.Fatalf("last event = %s, want final_answer", last.Type)
	}

	var sawResult bool
	for _, ev := range events {
		if ev.Type == EventToolResult {
			sawResult = true
			content, _ := ev.Content.(string)
			if !strings.Contains(content, "Error executing tool 'get_stock_price'") {
				t.Errorf("tool_result content = %q", content)
			}
			if !strings.Contains(content, "symbol not found") {
				t.Errorf("tool_result missing cause: %q", content)
			}
		}
	}
	if !sawResult {
		t.Error("no tool_result event emitted")
	}
}

func TestRunUnknownToolIsNonFatal(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{
		{
			toolCalls: []*llms.ToolCall{
				{ID: "call-1", Name: "does_not_exist", Args: map[string]any{}},
			},
		},
		{text: "Sorry, I cannot do that."},
	}}
	a := newTestAgent(t, llm, &echoTool{name: "get_stock_price", content: "x"})

	events := collect(t, a.Run(context.Background(), "do something odd"))

	last := events[len(events)-1]
	if last.Type != EventFinalAnswer {
		t.Fatalf("last event = %s, want final_answer", last.Type)
	}

	var resultContent string
	for _, ev := range events {
		if ev.Type == EventToolResult {
			resultContent, _ = ev.Content.(string)
		}
	}
	if !strings.Contains(resultContent, "'does_not_exist' not found") {
		t.Errorf("tool_result = %q, want unknown-tool message", resultContent)
	}
	if !strings.Contains(resultContent, "get_stock_price") {
		t.Errorf("tool_result = %q, want available tool list", resultContent)
	}
}

func TestRunLLMErrorEmitsSingleErrorEvent(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{
		{err: fmt.Errorf("upstream 500")},
	}}
	a := newTestAgent(t, llm)

	events := collect(t, a.Run(context.Background(), "hello"))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventError {
		t.Errorf("event type = %s, want error", events[0].Type)
	}
	content, _ := events[0].Content.(string)
	if !strings.Contains(content, "upstream 500") {
		t.Errorf("error content = %q", content)
	}
}

func TestRunMaxIterations(t *testing.T) {
	// The model proposes a tool call on every iteration and never
	// answers.
	llm := &scriptedLLM{responses: []scriptedResponse{
		{
			text: "Still thinking.",
			toolCalls: []*llms.ToolCall{
				{ID: "loop", Name: "get_stock_price", Args: map[string]any{"symbol": "AMZN"}},
			},
		},
	}}
	a := newTestAgent(t, llm, &echoTool{name: "get_stock_price", content: "data"})

	events := collect(t, a.Run(context.Background(), "loop forever"))

	last := events[len(events)-1]
	if last.Type != EventFinalAnswer {
		t.Fatalf("last event = %s, want final_answer", last.Type)
	}
	content, _ := last.Content.(string)
	if !strings.Contains(content, "10 reasoning steps") {
		t.Errorf("cap answer = %q, want truncation note", content)
	}

	toolCalls := 0
	for _, ev := range events {
		if ev.Type == EventToolCall {
			toolCalls++
		}
	}
	if toolCalls != DefaultMaxIterations {
		t.Errorf("tool_call events = %d, want %d", toolCalls, DefaultMaxIterations)
	}

	terminal := 0
	for _, ev := range events {
		if ev.Type == EventFinalAnswer || ev.Type == EventError {
			terminal++
		}
	}
	if terminal != 1 {
		t.Errorf("terminal events = %d, want exactly 1", terminal)
	}
}

func TestRunTruncatesEventContent(t *testing.T) {
	longReasoning := strings.Repeat("r", maxReasoningChars+500)
	longResult := strings.Repeat("t", maxToolResultChars+500)

	llm := &scriptedLLM{responses: []scriptedResponse{
		{
			text: longReasoning,
			toolCalls: []*llms.ToolCall{
				{ID: "call-1", Name: "get_stock_price", Args: map[string]any{"symbol": "AMZN"}},
			},
		},
		{text: "done"},
	}}
	a := newTestAgent(t, llm, &echoTool{name: "get_stock_price", content: longResult})

	events := collect(t, a.Run(context.Background(), "q"))

	reasoning, _ := events[0].Content.(string)
	if len(reasoning) != maxReasoningChars {
		t.Errorf("reasoning length = %d, want %d", len(reasoning), maxReasoningChars)
	}

	var result string
	for _, ev := range events {
		if ev.Type == EventToolResult {
			result, _ = ev.Content.(string)
		}
	}
	if !strings.HasSuffix(result, "... [truncated]") {
		t.Errorf("tool_result not marked truncated: %q", result[len(result)-30:])
	}
	if len(result) != maxToolResultChars+len("... [truncated]") {
		t.Errorf("tool_result length = %d", len(result))
	}

	// The transcript keeps the full result; only the event is truncated.
	second := llm.calls[1]
	if second[len(second)-1].Content != longResult {
		t.Error("transcript tool content was truncated")
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &scriptedLLM{responses: []scriptedResponse{
		{text: "never delivered"},
	}}
	a := newTestAgent(t, llm)

	events := collect(t, a.Run(ctx, "hello"))

	if len(llm.calls) != 0 {
		t.Errorf("llm called %d times after cancellation", len(llm.calls))
	}
	for _, ev := range events {
		if ev.Type == EventFinalAnswer {
			t.Errorf("cancelled run produced a final answer: %+v", ev)
		}
	}
}

func TestStreamEventWireFormat(t *testing.T) {
	data, err := json.Marshal(ToolCallEvent("get_stock_price", map[string]any{"symbol": "AMZN"}, 2))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["type"] != "tool_call" {
		t.Errorf("type = %v", decoded["type"])
	}
	if decoded["name"] != "get_stock_price" {
		t.Errorf("name = %v", decoded["name"])
	}
	if decoded["step"] != float64(2) {
		t.Errorf("step = %v", decoded["step"])
	}
	content, ok := decoded["content"].(map[string]any)
	if !ok || content["symbol"] != "AMZN" {
		t.Errorf("content = %v", decoded["content"])
	}

	data, err = json.Marshal(FinalAnswerEvent("done", 3))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"type":"final_answer","content":"done","step":3}` {
		t.Errorf("final_answer wire = %s", data)
	}
}

func TestFitContextKeepsSystemPromptAndRecentTurns(t *testing.T) {
	llm := &scriptedLLM{responses: []scriptedResponse{{text: "x"}}}
	a := newTestAgent(t, llm)
	a.contextBudget = 120

	conversation := []llms.Message{
		{Role: llms.RoleSystem, Content: "system prompt"},
	}
	for i := 0; i < 40; i++ {
		conversation = append(conversation, llms.Message{
			Role:    llms.RoleUser,
			Content: fmt.Sprintf("filler message number %d with some padding text", i),
		})
	}

	fitted := a.fitContext(conversation)

	if len(fitted) >= len(conversation) {
		t.Fatalf("fitContext did not trim: %d messages", len(fitted))
	}
	if fitted[0].Role != llms.RoleSystem {
		t.Errorf("system prompt dropped; first role = %s", fitted[0].Role)
	}
	if fitted[len(fitted)-1].Content != conversation[len(conversation)-1].Content {
		t.Error("most recent message dropped")
	}
	if a.counter.CountMessages(fitted) > a.contextBudget+10 {
		t.Errorf("fitted transcript still over budget: %d", a.counter.CountMessages(fitted))
	}
}
