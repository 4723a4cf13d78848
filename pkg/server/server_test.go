package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tickerdesk/tickerdesk/pkg/agent"
	"github.com/tickerdesk/tickerdesk/pkg/auth"
	"github.com/tickerdesk/tickerdesk/pkg/config"
)

// scriptedRunner replays a fixed event sequence and records the prompt.
type scriptedRunner struct {
	events    []agent.StreamEvent
	gotPrompt string
}

func (r *scriptedRunner) Run(ctx context.Context, prompt string) <-chan agent.StreamEvent {
	r.gotPrompt = prompt
	ch := make(chan agent.StreamEvent, len(r.events)+1)

	go func() {
		defer close(ch)
		for _, ev := range r.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// blockingRunner emits one event and then waits for cancellation.
type blockingRunner struct {
	started   chan struct{}
	cancelled chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started:   make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(ctx context.Context, prompt string) <-chan agent.StreamEvent {
	ch := make(chan agent.StreamEvent, 1)

	go func() {
		defer close(ch)
		ch <- agent.ReasoningEvent("working", 1)
		close(r.started)
		<-ctx.Done()
		close(r.cancelled)
	}()

	return ch
}

// rejectingValidator fails every token with a fixed error.
type rejectingValidator struct {
	err error
}

func (v *rejectingValidator) ValidateToken(context.Context, string) (*auth.Identity, error) {
	return nil, v.err
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()

	if opts.Config == nil {
		opts.Config = config.New()
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func answerRunner(answer string) *scriptedRunner {
	return &scriptedRunner{events: []agent.StreamEvent{
		agent.FinalAnswerEvent(answer, 1),
	}}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, Options{Runner: answerRunner("hi")})

	for _, path := range []string{"/ping", "/health"} {
		rec := doRequest(t, s, http.MethodGet, path, "")

		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "healthy") {
			t.Errorf("GET %s body = %s", path, rec.Body.String())
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("GET %s body is not JSON: %v", path, err)
		}
		if body["service"] != "tickerdesk" {
			t.Errorf("service = %v", body["service"])
		}
		if body["agent_ready"] != true {
			t.Errorf("agent_ready = %v", body["agent_ready"])
		}
		if body["knowledge_base_ready"] != false {
			t.Errorf("knowledge_base_ready = %v, want false with no index", body["knowledge_base_ready"])
		}
	}
}

func TestInvokeStreamsNDJSON(t *testing.T) {
	runner := &scriptedRunner{events: []agent.StreamEvent{
		agent.ReasoningEvent("let me check", 1),
		agent.ToolCallEvent("get_stock_price", map[string]any{"symbol": "AMZN"}, 1),
		agent.ToolResultEvent("get_stock_price", "price data", 1),
		agent.FinalAnswerEvent("AMZN is at $185.50", 2),
	}}
	s := newTestServer(t, Options{Runner: runner, DevRoutes: true})

	rec := doRequest(t, s, http.MethodPost, "/invoke-dev",
		`{"input":{"prompt":"What is Amazon's stock price now?"}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %s", ct)
	}
	if runner.gotPrompt != "What is Amazon's stock price now?" {
		t.Errorf("prompt = %q", runner.gotPrompt)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != len(runner.events) {
		t.Fatalf("got %d lines, want %d: %q", len(lines), len(runner.events), lines)
	}

	terminal := 0
	for i, line := range lines {
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %d is not JSON: %q", i, line)
		}
		if _, ok := ev["type"]; !ok {
			t.Errorf("line %d missing type: %q", i, line)
		}
		if ev["type"] == "final_answer" || ev["type"] == "error" {
			terminal++
		}
	}
	if terminal != 1 {
		t.Errorf("terminal events = %d, want exactly 1", terminal)
	}

	var last map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("last line: %v", err)
	}
	if last["type"] != "final_answer" {
		t.Errorf("last event type = %v, want final_answer", last["type"])
	}
}

func TestInvokeRequiresAuth(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		validateErr error
		wantMessage string
	}{
		{name: "missing_header", wantMessage: "Missing or malformed bearer token"},
		{name: "not_bearer", header: "Basic abc", wantMessage: "Missing or malformed bearer token"},
		{name: "expired_token", header: "Bearer x", validateErr: auth.ErrTokenExpired, wantMessage: "Token expired"},
		{name: "bad_signature", header: "Bearer x", validateErr: auth.ErrInvalidSignature, wantMessage: "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Options{
				Runner:    answerRunner("never streamed"),
				Validator: &rejectingValidator{err: tt.validateErr},
			})

			req := httptest.NewRequest(http.MethodPost, "/invoke",
				strings.NewReader(`{"input":{"prompt":"hi"}}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMessage) {
				t.Errorf("body = %s, want %q", rec.Body.String(), tt.wantMessage)
			}
			if strings.Contains(rec.Body.String(), "never streamed") {
				t.Error("stream opened despite auth failure")
			}
		})
	}
}

func TestInvokeAcceptsValidToken(t *testing.T) {
	s := newTestServer(t, Options{
		Runner:    answerRunner("authorized answer"),
		Validator: auth.NewStaticValidator("user-123"),
	})

	req := httptest.NewRequest(http.MethodPost, "/invoke",
		strings.NewReader(`{"input":{"prompt":"hi"}}`))
	req.Header.Set("Authorization", "Bearer any-token")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "authorized answer") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestDevRouteOnlyWhenEnabled(t *testing.T) {
	body := `{"input":{"prompt":"hi"}}`

	t.Run("disabled_is_not_found", func(t *testing.T) {
		s := newTestServer(t, Options{Runner: answerRunner("x")})
		rec := doRequest(t, s, http.MethodPost, "/invoke-dev", body)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("enabled_needs_no_token", func(t *testing.T) {
		s := newTestServer(t, Options{
			Runner:    answerRunner("dev answer"),
			Validator: &rejectingValidator{err: auth.ErrUnauthenticated},
			DevRoutes: true,
		})
		rec := doRequest(t, s, http.MethodPost, "/invoke-dev", body)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestInvokeRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing_prompt", body: `{"input":{}}`},
		{name: "empty_prompt", body: `{"input":{"prompt":""}}`},
		{name: "no_input", body: `{}`},
		{name: "prompt_not_a_string", body: `{"input":{"prompt":42}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Options{Runner: answerRunner("x"), DevRoutes: true})
			rec := doRequest(t, s, http.MethodPost, "/invoke-dev", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "No prompt or query provided") {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}

	t.Run("malformed_json", func(t *testing.T) {
		s := newTestServer(t, Options{Runner: answerRunner("x"), DevRoutes: true})
		rec := doRequest(t, s, http.MethodPost, "/invoke-dev", `{not json`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("query_is_accepted_alias", func(t *testing.T) {
		runner := answerRunner("x")
		s := newTestServer(t, Options{Runner: runner, DevRoutes: true})
		rec := doRequest(t, s, http.MethodPost, "/invoke-dev", `{"input":{"query":"alias works"}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if runner.gotPrompt != "alias works" {
			t.Errorf("prompt = %q", runner.gotPrompt)
		}
	})
}

func TestInvokeWithoutRunner(t *testing.T) {
	s := newTestServer(t, Options{DevRoutes: true})

	rec := doRequest(t, s, http.MethodPost, "/invoke-dev", `{"input":{"prompt":"hi"}}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Agent not initialized") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestInvocationsReturnsSingleObject(t *testing.T) {
	runner := &scriptedRunner{events: []agent.StreamEvent{
		agent.ReasoningEvent("thinking", 1),
		agent.ToolCallEvent("get_stock_price", map[string]any{"symbol": "AMZN"}, 1),
		agent.ToolResultEvent("get_stock_price", "data", 1),
		agent.FinalAnswerEvent("the final answer", 2),
	}}
	s := newTestServer(t, Options{Runner: runner})

	rec := doRequest(t, s, http.MethodPost, "/invocations", `{"input":{"prompt":"hi"}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// One JSON object, not an NDJSON event stream.
	var body map[string]any
	dec := json.NewDecoder(strings.NewReader(rec.Body.String()))
	if err := dec.Decode(&body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if dec.More() {
		t.Errorf("body contains more than one JSON value: %s", rec.Body.String())
	}

	if body["output"] != "the final answer" {
		t.Errorf("output = %v", body["output"])
	}
	if body["steps"] != float64(2) {
		t.Errorf("steps = %v", body["steps"])
	}
}

func TestInvocationsSurfacesRunFailure(t *testing.T) {
	runner := &scriptedRunner{events: []agent.StreamEvent{
		agent.ErrorEvent("Error processing query: upstream 500", 1),
	}}
	s := newTestServer(t, Options{Runner: runner})

	rec := doRequest(t, s, http.MethodPost, "/invocations", `{"input":{"prompt":"hi"}}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "upstream 500") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestKnowledgeBaseUnavailable(t *testing.T) {
	s := newTestServer(t, Options{
		Runner:    answerRunner("x"),
		Validator: auth.NewStaticValidator("user-123"),
	})

	req := httptest.NewRequest(http.MethodGet, "/knowledge-base", nil)
	req.Header.Set("Authorization", "Bearer any")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Knowledge base not initialized") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSchemaEndpoint(t *testing.T) {
	s := newTestServer(t, Options{Runner: answerRunner("x")})

	rec := doRequest(t, s, http.MethodGet, "/api/schema", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var schema map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &schema); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if schema["$schema"] != "http://json-schema.org/draft-07/schema#" {
		t.Errorf("$schema = %v", schema["$schema"])
	}
	if schema["title"] != "Tickerdesk Configuration Schema" {
		t.Errorf("title = %v", schema["title"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing: %v", schema)
	}
	for _, section := range []string{"server", "auth", "llm", "knowledge"} {
		if _, ok := props[section]; !ok {
			t.Errorf("schema missing %q section", section)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, Options{Runner: answerRunner("x")})

	rec := doRequest(t, s, http.MethodOptions, "/invoke", "")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", origin)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Errorf("Allow-Headers = %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestClientDisconnectCancelsRun(t *testing.T) {
	runner := newBlockingRunner()
	s := newTestServer(t, Options{Runner: runner, DevRoutes: true})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/invoke-dev",
		strings.NewReader(`{"input":{"prompt":"hang"}}`))
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	// Wait for the first streamed line, then drop the connection.
	reader := bufio.NewReader(resp.Body)
	if _, err := reader.ReadString('\n'); err != nil {
		t.Fatalf("reading first event failed: %v", err)
	}
	<-runner.started
	cancel()

	select {
	case <-runner.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("run context was not cancelled after client disconnect")
	}
}
