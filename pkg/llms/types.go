// Package llms provides the language model abstraction behind the agent
// and its OpenAI, Anthropic, and Gemini implementations.
package llms

// Transcript roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// StreamChunk types emitted by GenerateStreaming.
const (
	ChunkTypeText     = "text"
	ChunkTypeToolCall = "tool_call"
	ChunkTypeDone     = "done"
	ChunkTypeError    = "error"
)

// Message is one entry in the conversation transcript. Assistant messages
// may carry proposed tool calls; tool messages carry the result of an
// earlier call, linked back through ToolCallID.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []*ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a provider-proposed invocation of a registered tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolDefinition describes a callable tool in JSON-schema form. Providers
// translate it into their own function-calling dialect.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// StreamChunk is one unit of streaming provider output. The producer sends
// a terminal done or error chunk before closing the channel.
type StreamChunk struct {
	Type     string
	Text     string
	ToolCall *ToolCall
	Tokens   int
	Error    error
}
