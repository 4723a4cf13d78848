package agent

// Stream event types. Every run terminates with exactly one final_answer
// or one error event, always last.
const (
	EventReasoning   = "reasoning"
	EventToolCall    = "tool_call"
	EventToolResult  = "tool_result"
	EventFinalAnswer = "final_answer"
	EventError       = "error"
)

// StreamEvent is one unit of agent output, serialized as a single JSON
// object per line on the wire. Content is text for reasoning,
// tool_result, final_answer, and error events, and the structured call
// arguments for tool_call events. Step is the 1-based reasoning
// iteration; Name carries the tool name on tool events.
type StreamEvent struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
	Name    string `json:"name,omitempty"`
	Step    int    `json:"step,omitempty"`
}

// ReasoningEvent reports intermediate assistant text.
func ReasoningEvent(content string, step int) StreamEvent {
	return StreamEvent{Type: EventReasoning, Content: content, Step: step}
}

// ToolCallEvent reports a tool about to execute with its arguments.
func ToolCallEvent(name string, args map[string]any, step int) StreamEvent {
	if args == nil {
		args = map[string]any{}
	}
	return StreamEvent{Type: EventToolCall, Content: args, Name: name, Step: step}
}

// ToolResultEvent reports the outcome of a tool execution.
func ToolResultEvent(name, content string, step int) StreamEvent {
	return StreamEvent{Type: EventToolResult, Content: content, Name: name, Step: step}
}

// FinalAnswerEvent terminates a successful run.
func FinalAnswerEvent(content string, step int) StreamEvent {
	return StreamEvent{Type: EventFinalAnswer, Content: content, Step: step}
}

// ErrorEvent terminates a failed run.
func ErrorEvent(content string, step int) StreamEvent {
	return StreamEvent{Type: EventError, Content: content, Step: step}
}
