// Package tools defines the agent's tool contract and the three built-in
// adapters: stock quotes, price history, and document search.
package tools

import (
	"context"
	"time"

	"github.com/tickerdesk/tickerdesk/pkg/llms"
)

// ToolInfo represents metadata about a tool.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
}

// ToolParameter represents a tool parameter definition.
type ToolParameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolResult represents the result of a tool execution. Failed executions
// carry the failure message in Error with Success false; they are
// reported in-band, never as a panic or dropped call.
type ToolResult struct {
	Success       bool           `json:"success"`
	Content       string         `json:"content,omitempty"`
	Error         string         `json:"error,omitempty"`
	ToolName      string         `json:"tool_name"`
	ExecutionTime time.Duration  `json:"execution_time,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Tool is the common interface for all agent tools.
type Tool interface {
	// GetInfo returns metadata about the tool.
	GetInfo() ToolInfo

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)

	// GetName returns the tool name.
	GetName() string

	// GetDescription returns the tool description.
	GetDescription() string
}

// Definition converts the tool metadata into the JSON-schema form the
// LLM providers consume.
func (i ToolInfo) Definition() llms.ToolDefinition {
	properties := make(map[string]any, len(i.Parameters))
	var required []string

	for _, p := range i.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	parameters := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		parameters["required"] = required
	}

	return llms.ToolDefinition{
		Name:        i.Name,
		Description: i.Description,
		Parameters:  parameters,
	}
}

// stringArg extracts a non-empty string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// intArg extracts an integer argument. JSON decoding delivers numbers as
// float64, so both forms are accepted.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
