package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tickerdesk/tickerdesk/pkg/config"
)

func openaiTestConfig(baseURL string) *config.LLMConfig {
	temp := 0.2
	return &config.LLMConfig{
		Provider:    config.LLMProviderOpenAI,
		Model:       "gpt-4o-mini",
		APIKey:      "sk-test",
		BaseURL:     baseURL,
		Temperature: &temp,
		MaxTokens:   512,
		Timeout:     5 * time.Second,
	}
}

func newOpenAITestProvider(t *testing.T, baseURL string) *OpenAIProvider {
	t.Helper()
	provider, err := NewOpenAIProviderFromConfig(openaiTestConfig(baseURL))
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}
	return provider
}

func TestOpenAIGenerate(t *testing.T) {
	var got OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q, want Bearer sk-test", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OpenAIResponse{
			Choices: []OpenAIChoice{{
				Message:      OpenAIMessage{Role: "assistant", Content: "AMZN trades at 178.22 USD."},
				FinishReason: "stop",
			}},
			Usage: OpenAIUsage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52},
		})
	}))
	defer server.Close()

	provider := newOpenAITestProvider(t, server.URL)

	text, toolCalls, tokens, err := provider.Generate(context.Background(), []Message{
		{Role: RoleUser, Content: "What is the price of AMZN?"},
	}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if text != "AMZN trades at 178.22 USD." {
		t.Errorf("text = %q", text)
	}
	if len(toolCalls) != 0 {
		t.Errorf("toolCalls = %d, want 0", len(toolCalls))
	}
	if tokens != 52 {
		t.Errorf("tokens = %d, want 52", tokens)
	}

	if got.Model != "gpt-4o-mini" {
		t.Errorf("request model = %s, want gpt-4o-mini", got.Model)
	}
	if got.Stream {
		t.Error("request stream = true, want false")
	}
	if got.Temperature != 0.2 {
		t.Errorf("request temperature = %v, want 0.2", got.Temperature)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 512 {
		t.Errorf("request max_tokens = %v, want 512", got.MaxTokens)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("request messages = %+v, want single user message", got.Messages)
	}
}

func TestOpenAIGenerateParsesToolCalls(t *testing.T) {
	var got OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OpenAIResponse{
			Choices: []OpenAIChoice{{
				Message: OpenAIMessage{
					Role: "assistant",
					ToolCalls: []OpenAIToolCall{{
						ID:   "call_123",
						Type: "function",
						Function: OpenAIFunctionCall{
							Name:      "get_stock_price",
							Arguments: `{"symbol": "TSLA"}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
			Usage: OpenAIUsage{TotalTokens: 61},
		})
	}))
	defer server.Close()

	provider := newOpenAITestProvider(t, server.URL)

	tools := []ToolDefinition{{
		Name:        "get_stock_price",
		Description: "Fetch the latest quote for a symbol",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{"type": "string"},
			},
			"required": []string{"symbol"},
		},
	}}

	_, toolCalls, tokens, err := provider.Generate(context.Background(), []Message{
		{Role: RoleUser, Content: "Price of TSLA?"},
	}, tools)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(toolCalls) != 1 {
		t.Fatalf("toolCalls = %d, want 1", len(toolCalls))
	}
	if toolCalls[0].ID != "call_123" {
		t.Errorf("tool call ID = %s, want call_123", toolCalls[0].ID)
	}
	if toolCalls[0].Name != "get_stock_price" {
		t.Errorf("tool call name = %s, want get_stock_price", toolCalls[0].Name)
	}
	if toolCalls[0].Args["symbol"] != "TSLA" {
		t.Errorf("tool call args = %v, want symbol TSLA", toolCalls[0].Args)
	}
	if tokens != 61 {
		t.Errorf("tokens = %d, want 61", tokens)
	}

	if len(got.Tools) != 1 {
		t.Fatalf("request tools = %d, want 1", len(got.Tools))
	}
	if got.Tools[0].Type != "function" {
		t.Errorf("request tool type = %s, want function", got.Tools[0].Type)
	}
	if got.Tools[0].Function.Name != "get_stock_price" {
		t.Errorf("request tool name = %s", got.Tools[0].Function.Name)
	}
	if got.ToolChoice != "auto" {
		t.Errorf("request tool_choice = %s, want auto", got.ToolChoice)
	}
}

func TestOpenAIGenerateTranscriptMapping(t *testing.T) {
	var got OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OpenAIResponse{
			Choices: []OpenAIChoice{{
				Message: OpenAIMessage{Role: "assistant", Content: "Done."},
			}},
		})
	}))
	defer server.Close()

	provider := newOpenAITestProvider(t, server.URL)

	messages := []Message{
		{Role: RoleSystem, Content: "You are a stock assistant."},
		{Role: RoleUser, Content: "Price of NVDA?"},
		{
			Role:    RoleAssistant,
			Content: "Looking it up.",
			ToolCalls: []*ToolCall{{
				ID:   "call_7",
				Name: "get_stock_price",
				Args: map[string]any{"symbol": "NVDA"},
			}},
		},
		{Role: RoleTool, Content: "quote payload", ToolCallID: "call_7", Name: "get_stock_price"},
	}

	if _, _, _, err := provider.Generate(context.Background(), messages, nil); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(got.Messages) != 4 {
		t.Fatalf("request messages = %d, want 4", len(got.Messages))
	}

	if got.Messages[0].Role != "system" || got.Messages[0].Content != "You are a stock assistant." {
		t.Errorf("system message = %+v", got.Messages[0])
	}
	if got.Messages[1].Role != "user" {
		t.Errorf("user message role = %s", got.Messages[1].Role)
	}

	assistant := got.Messages[2]
	if assistant.Role != "assistant" || assistant.Content != "Looking it up." {
		t.Errorf("assistant message = %+v", assistant)
	}
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("assistant tool calls = %d, want 1", len(assistant.ToolCalls))
	}
	if assistant.ToolCalls[0].ID != "call_7" {
		t.Errorf("assistant tool call ID = %s, want call_7", assistant.ToolCalls[0].ID)
	}
	if assistant.ToolCalls[0].Type != "function" {
		t.Errorf("assistant tool call type = %s, want function", assistant.ToolCalls[0].Type)
	}
	if assistant.ToolCalls[0].Function.Arguments != `{"symbol":"NVDA"}` {
		t.Errorf("assistant tool call arguments = %s", assistant.ToolCalls[0].Function.Arguments)
	}

	toolMsg := got.Messages[3]
	if toolMsg.Role != "tool" {
		t.Errorf("tool message role = %s, want tool", toolMsg.Role)
	}
	if toolMsg.ToolCallID != "call_7" {
		t.Errorf("tool message tool_call_id = %s, want call_7", toolMsg.ToolCallID)
	}
	if toolMsg.Content != "quote payload" {
		t.Errorf("tool message content = %q", toolMsg.Content)
	}
}

func TestOpenAIGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error", "code": "invalid_api_key"}}`))
	}))
	defer server.Close()

	provider := newOpenAITestProvider(t, server.URL)

	_, _, _, err := provider.Generate(context.Background(), []Message{
		{Role: RoleUser, Content: "hello"},
	}, nil)
	if err == nil {
		t.Fatal("Generate() should fail on 401")
	}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("error = %v, want status 401", err)
	}
	if !strings.Contains(err.Error(), "Incorrect API key provided") {
		t.Errorf("error = %v, want API error message", err)
	}
	if !strings.Contains(err.Error(), "invalid_api_key") {
		t.Errorf("error = %v, want error code", err)
	}
}

func TestOpenAIGenerateErrorInBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error": {"message": "model overloaded", "type": "server_error"}}`))
	}))
	defer server.Close()

	provider := newOpenAITestProvider(t, server.URL)

	_, _, _, err := provider.Generate(context.Background(), []Message{
		{Role: RoleUser, Content: "hello"},
	}, nil)
	if err == nil {
		t.Fatal("Generate() should surface an error payload in a 200 body")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("error = %v, want model overloaded", err)
	}
}

func TestOpenAIGenerateNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	provider := newOpenAITestProvider(t, server.URL)

	_, _, _, err := provider.Generate(context.Background(), []Message{
		{Role: RoleUser, Content: "hello"},
	}, nil)
	if err == nil {
		t.Fatal("Generate() should fail when no choices are returned")
	}
	if !strings.Contains(err.Error(), "no response choices") {
		t.Errorf("error = %v, want no response choices", err)
	}
}

func TestOpenAIGenerateStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("request stream = false, want true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"choices":[{"delta":{"role":"assistant"}}]}`,
			`data: {"choices":[{"delta":{"content":"The current"}}]}`,
			`data: {"choices":[{"delta":{"content":" price is 178.22 USD"}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":8,"total_tokens":18}}`,
			`data: [DONE]`,
		}
		for _, line := range lines {
			w.Write([]byte(line + "\n\n"))
		}
	}))
	defer server.Close()

	provider := newOpenAITestProvider(t, server.URL)

	ch, err := provider.GenerateStreaming(context.Background(), []Message{
		{Role: RoleUser, Content: "Price of AMZN?"},
	}, nil)
	if err != nil {
		t.Fatalf("GenerateStreaming() error = %v", err)
	}

	var chunks []StreamChunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3 (two text, one done): %+v", len(chunks), chunks)
	}
	if chunks[0].Type != ChunkTypeText || chunks[0].Text != "The current" {
		t.Errorf("chunk 0 = %+v", chunks[0])
	}
	if chunks[1].Type != ChunkTypeText || chunks[1].Text != " price is 178.22 USD" {
		t.Errorf("chunk 1 = %+v", chunks[1])
	}
	if chunks[2].Type != ChunkTypeDone {
		t.Errorf("chunk 2 type = %s, want done", chunks[2].Type)
	}
	if chunks[2].Tokens != 18 {
		t.Errorf("done tokens = %d, want 18", chunks[2].Tokens)
	}
}

func TestOpenAIGenerateStreamingAssemblesToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_stock_price","arguments":""}}]}}]}`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"symbol\":"}}]}}]}`,
			`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"TSLA\"}"}}]}}]}`,
			`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":30,"completion_tokens":12,"total_tokens":42}}`,
			`data: [DONE]`,
		}
		for _, line := range lines {
			w.Write([]byte(line + "\n\n"))
		}
	}))
	defer server.Close()

	provider := newOpenAITestProvider(t, server.URL)

	ch, err := provider.GenerateStreaming(context.Background(), []Message{
		{Role: RoleUser, Content: "Price of TSLA?"},
	}, []ToolDefinition{{Name: "get_stock_price"}})
	if err != nil {
		t.Fatalf("GenerateStreaming() error = %v", err)
	}

	var chunks []StreamChunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2 (tool call, done): %+v", len(chunks), chunks)
	}
	if chunks[0].Type != ChunkTypeToolCall {
		t.Fatalf("chunk 0 type = %s, want tool_call", chunks[0].Type)
	}
	call := chunks[0].ToolCall
	if call.ID != "call_1" {
		t.Errorf("tool call ID = %s, want call_1", call.ID)
	}
	if call.Name != "get_stock_price" {
		t.Errorf("tool call name = %s", call.Name)
	}
	if call.Args["symbol"] != "TSLA" {
		t.Errorf("tool call args = %v, want symbol TSLA assembled from fragments", call.Args)
	}
	if chunks[1].Type != ChunkTypeDone || chunks[1].Tokens != 42 {
		t.Errorf("chunk 1 = %+v, want done with 42 tokens", chunks[1])
	}
}

func TestOpenAIGenerateStreamingHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer server.Close()

	provider := newOpenAITestProvider(t, server.URL)

	ch, err := provider.GenerateStreaming(context.Background(), []Message{
		{Role: RoleUser, Content: "hello"},
	}, nil)
	if err != nil {
		t.Fatalf("GenerateStreaming() error = %v", err)
	}

	var chunks []StreamChunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}

	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want single error chunk", len(chunks))
	}
	if chunks[0].Type != ChunkTypeError {
		t.Errorf("chunk type = %s, want error", chunks[0].Type)
	}
	if chunks[0].Error == nil || !strings.Contains(chunks[0].Error.Error(), "bad key") {
		t.Errorf("chunk error = %v, want bad key", chunks[0].Error)
	}
}

func TestOpenAIProviderAccessors(t *testing.T) {
	provider := newOpenAITestProvider(t, "http://localhost:0")

	if got := provider.GetModelName(); got != "gpt-4o-mini" {
		t.Errorf("GetModelName() = %s, want gpt-4o-mini", got)
	}
	if got := provider.GetMaxTokens(); got != 512 {
		t.Errorf("GetMaxTokens() = %d, want 512", got)
	}
	if got := provider.GetTemperature(); got != 0.2 {
		t.Errorf("GetTemperature() = %v, want 0.2", got)
	}
	if err := provider.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpenAITemperatureDefaultsToZero(t *testing.T) {
	provider, err := NewOpenAIProviderFromConfig(&config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}
	if got := provider.GetTemperature(); got != 0 {
		t.Errorf("GetTemperature() = %v, want 0 when unset", got)
	}
}
