package llms

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/tickerdesk/tickerdesk/pkg/config"
)

// GeminiProvider implements LLMProvider on top of the official genai
// SDK rather than raw HTTP.
type GeminiProvider struct {
	config *config.LLMConfig
	client *genai.Client
}

func NewGeminiProviderFromConfig(cfg *config.LLMConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{
		config: cfg,
		client: client,
	}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []*ToolCall, int, error) {
	contents, system := p.buildContents(messages)
	genConfig := p.buildConfig(tools, system)

	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, genConfig)
	if err != nil {
		return "", nil, 0, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil, geminiTokens(resp.UsageMetadata), fmt.Errorf("no response candidates returned")
	}

	var text strings.Builder
	var toolCalls []*ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			toolCalls = append(toolCalls, geminiToolCall(part.FunctionCall))
		}
	}

	return text.String(), toolCalls, geminiTokens(resp.UsageMetadata), nil
}

func (p *GeminiProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	contents, system := p.buildContents(messages)
	genConfig := p.buildConfig(tools, system)

	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)

		// Some models repeat a function call across stream responses;
		// emit each distinct call once.
		emitted := make(map[string]bool)
		totalTokens := 0

		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.config.Model, contents, genConfig) {
			if err != nil {
				outputCh <- StreamChunk{
					Type:  ChunkTypeError,
					Error: fmt.Errorf("gemini stream failed: %w", err),
				}
				return
			}

			if resp.UsageMetadata != nil {
				totalTokens = geminiTokens(resp.UsageMetadata)
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}

			for _, part := range resp.Candidates[0].Content.Parts {
				if part.Text != "" && !part.Thought {
					outputCh <- StreamChunk{
						Type: ChunkTypeText,
						Text: part.Text,
					}
				}
				if part.FunctionCall != nil {
					call := geminiToolCall(part.FunctionCall)
					if emitted[call.ID] {
						continue
					}
					emitted[call.ID] = true
					outputCh <- StreamChunk{
						Type:     ChunkTypeToolCall,
						ToolCall: call,
					}
				}
			}
		}

		outputCh <- StreamChunk{
			Type:   ChunkTypeDone,
			Tokens: totalTokens,
		}
	}()

	return outputCh, nil
}

func (p *GeminiProvider) GetModelName() string {
	return p.config.Model
}

func (p *GeminiProvider) GetMaxTokens() int {
	return p.config.MaxTokens
}

func (p *GeminiProvider) GetTemperature() float64 {
	if p.config.Temperature == nil {
		return 0
	}
	return *p.config.Temperature
}

func (p *GeminiProvider) Close() error {
	return nil
}

// buildContents maps the transcript onto genai contents. System
// messages collapse into a separate system instruction, tool results
// travel as user-role function responses, and assistant turns use the
// "model" role.
func (p *GeminiProvider) buildContents(messages []Message) ([]*genai.Content, *genai.Content) {
	var systemParts []string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case RoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.Name,
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})
		case RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   tc.ID,
						Name: tc.Name,
						Args: tc.Args,
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: parts,
			})
		}
	}

	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n\n")}},
		}
	}

	return contents, system
}

func (p *GeminiProvider) buildConfig(tools []ToolDefinition, system *genai.Content) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(float32(p.GetTemperature())),
	}
	if p.config.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(p.config.MaxTokens)
	}

	if len(tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, len(tools))
		for i, tool := range tools {
			declarations[i] = &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGenaiSchema(tool.Parameters),
			}
		}
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}

	return genConfig
}

// geminiToolCall converts a function call, minting a stable ID when the
// model omits one so the transcript can pair it with its result.
func geminiToolCall(fc *genai.FunctionCall) *ToolCall {
	id := fc.ID
	if id == "" {
		id = stableCallID(fc.Name, fc.Args)
	}
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	return &ToolCall{
		ID:   id,
		Name: fc.Name,
		Args: args,
	}
}

func stableCallID(name string, args map[string]any) string {
	payload, _ := json.Marshal(map[string]any{
		"name": name,
		"args": args,
	})
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("call-%x", sum[:8])
}

// toGenaiSchema converts a JSON-schema parameter map into the SDK's
// schema type. Only the subset the tool definitions use is mapped.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		result.Type = toGenaiType(t)
	}
	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				result.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}

	if items, ok := schema["items"].(map[string]any); ok {
		result.Items = toGenaiSchema(items)
	}

	switch required := schema["required"].(type) {
	case []string:
		result.Required = required
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}

	switch enum := schema["enum"].(type) {
	case []string:
		result.Enum = enum
	case []any:
		for _, e := range enum {
			if s, ok := e.(string); ok {
				result.Enum = append(result.Enum, s)
			}
		}
	}

	return result
}

func geminiTokens(usage *genai.GenerateContentResponseUsageMetadata) int {
	if usage == nil {
		return 0
	}
	if usage.TotalTokenCount > 0 {
		return int(usage.TotalTokenCount)
	}
	return int(usage.PromptTokenCount + usage.CandidatesTokenCount)
}

func toGenaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

var _ LLMProvider = (*GeminiProvider)(nil)
