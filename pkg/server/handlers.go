package server

import (
	"encoding/json"
	"net/http"

	"github.com/invopop/jsonschema"

	"github.com/tickerdesk/tickerdesk/pkg/agent"
	"github.com/tickerdesk/tickerdesk/pkg/auth"
	"github.com/tickerdesk/tickerdesk/pkg/config"
)

// Subjects attributed to requests that bypass token verification.
const (
	devSubject       = "dev-user"
	agentcoreSubject = "agentcore-user"
)

// invokeRequest is the body of the invocation endpoints. The prompt
// lives under input as either "prompt" or "query".
type invokeRequest struct {
	Input  map[string]any `json:"input"`
	UserID string         `json:"user_id,omitempty"`
}

// prompt returns the query text, preferring "prompt" over "query".
func (r invokeRequest) prompt() string {
	for _, key := range []string{"prompt", "query"} {
		if v, ok := r.Input[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// handleHealth reports liveness and per-component readiness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "healthy",
		"service":              "tickerdesk",
		"agent_ready":          s.runner != nil,
		"knowledge_base_ready": s.knowledge != nil && s.knowledge.Ready(),
	})
}

// handleInvoke streams agent events for an authenticated query.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	s.invoke(w, r, subjectFromContext(r, devSubject))
}

// handleInvokeDev is handleInvoke without authentication. Only routed
// when dev routes are enabled at startup.
func (s *Server) handleInvokeDev(w http.ResponseWriter, r *http.Request) {
	s.invoke(w, r, devSubject)
}

// invoke validates the request and relays agent events as NDJSON. All
// rejections happen before the status line; once streaming starts,
// failures arrive in-band as error events.
func (s *Server) invoke(w http.ResponseWriter, r *http.Request, user string) {
	req, ok := s.parseInvokeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	prompt := req.prompt()
	s.logger.Info("processing query", "user", user, "query", prompt)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	// Encode appends the newline that delimits NDJSON events. Each
	// event is flushed immediately so clients see progress in real
	// time.
	enc := json.NewEncoder(w)
	for ev := range s.runner.Run(r.Context(), prompt) {
		if err := enc.Encode(ev); err != nil {
			s.logger.Debug("stream write failed, client likely gone", "error", err)
			return
		}
		flusher.Flush()
	}
}

// handleInvocations serves the hosted runtime's invocation contract: the
// run collapses to a single JSON object carrying the final answer.
func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	req, ok := s.parseInvokeRequest(w, r)
	if !ok {
		return
	}

	prompt := req.prompt()
	s.logger.Info("processing query", "user", agentcoreSubject, "query", prompt)

	var terminal agent.StreamEvent
	for ev := range s.runner.Run(r.Context(), prompt) {
		if ev.Type == agent.EventFinalAnswer || ev.Type == agent.EventError {
			terminal = ev
		}
	}

	switch terminal.Type {
	case agent.EventFinalAnswer:
		writeJSON(w, http.StatusOK, map[string]any{
			"output": terminal.Content,
			"steps":  terminal.Step,
		})
	case agent.EventError:
		content, _ := terminal.Content.(string)
		writeError(w, http.StatusInternalServerError, content)
	default:
		// The run was cancelled before a terminal event was produced.
		writeError(w, http.StatusInternalServerError, "Invocation produced no result")
	}
}

// parseInvokeRequest decodes the body and rejects requests without a
// usable prompt. Returns false after writing the error response.
func (s *Server) parseInvokeRequest(w http.ResponseWriter, r *http.Request) (invokeRequest, bool) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if req.prompt() == "" {
		writeError(w, http.StatusBadRequest, "No prompt or query provided in request input")
		return req, false
	}
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Agent not initialized")
		return req, false
	}
	return req, true
}

// handleKnowledgeBase reports document index statistics.
func (s *Server) handleKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		writeError(w, http.StatusServiceUnavailable, "Knowledge base not initialized")
		return
	}
	writeJSON(w, http.StatusOK, s.knowledge.Stats())
}

// handleSchema returns the JSON schema of the config file format.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = "https://tickerdesk.dev/schemas/config.json"
	schema.Title = "Tickerdesk Configuration Schema"
	schema.Description = "Configuration schema for the tickerdesk service"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(schema); err != nil {
		s.logger.Error("failed to encode schema", "error", err)
		http.Error(w, "Failed to generate schema", http.StatusInternalServerError)
	}
}

// subjectFromContext returns the verified caller subject, or fallback
// when the request bypassed verification.
func subjectFromContext(r *http.Request, fallback string) string {
	if id := auth.IdentityFromContext(r.Context()); id != nil && id.Subject != "" {
		return id.Subject
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
