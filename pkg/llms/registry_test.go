package llms

import (
	"context"
	"strings"
	"testing"

	"github.com/tickerdesk/tickerdesk/pkg/config"
)

// stubProvider is a no-op LLMProvider for registry tests.
type stubProvider struct {
	model string
}

func (p *stubProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []*ToolCall, int, error) {
	return "", nil, 0, nil
}

func (p *stubProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk)
	close(ch)
	return ch, nil
}

func (p *stubProvider) GetModelName() string    { return p.model }
func (p *stubProvider) GetMaxTokens() int       { return 0 }
func (p *stubProvider) GetTemperature() float64 { return 0 }
func (p *stubProvider) Close() error            { return nil }

func TestRegisterLLM(t *testing.T) {
	reg := NewLLMRegistry()
	provider := &stubProvider{model: "test-model"}

	if err := reg.RegisterLLM("primary", provider); err != nil {
		t.Fatalf("RegisterLLM() error = %v", err)
	}

	got, err := reg.GetLLM("primary")
	if err != nil {
		t.Fatalf("GetLLM() error = %v", err)
	}
	if got != provider {
		t.Error("GetLLM() returned a different provider than was registered")
	}
}

func TestRegisterLLMValidation(t *testing.T) {
	reg := NewLLMRegistry()

	t.Run("empty_name", func(t *testing.T) {
		if err := reg.RegisterLLM("", &stubProvider{}); err == nil {
			t.Error("RegisterLLM() with empty name should fail")
		}
	})

	t.Run("nil_provider", func(t *testing.T) {
		if err := reg.RegisterLLM("primary", nil); err == nil {
			t.Error("RegisterLLM() with nil provider should fail")
		}
	})

	t.Run("duplicate_name", func(t *testing.T) {
		if err := reg.RegisterLLM("dup", &stubProvider{}); err != nil {
			t.Fatalf("RegisterLLM() error = %v", err)
		}
		if err := reg.RegisterLLM("dup", &stubProvider{}); err == nil {
			t.Error("RegisterLLM() with duplicate name should fail")
		}
	})
}

func TestGetLLMNotFound(t *testing.T) {
	reg := NewLLMRegistry()

	_, err := reg.GetLLM("missing")
	if err == nil {
		t.Fatal("GetLLM() for unregistered name should fail")
	}
	if !strings.Contains(err.Error(), "'missing' not found") {
		t.Errorf("GetLLM() error = %v, want mention of 'missing' not found", err)
	}
}

func TestNewProviderFromConfig(t *testing.T) {
	t.Run("nil_config", func(t *testing.T) {
		if _, err := NewProviderFromConfig(nil); err == nil {
			t.Error("NewProviderFromConfig(nil) should fail")
		}
	})

	t.Run("unsupported_provider", func(t *testing.T) {
		_, err := NewProviderFromConfig(&config.LLMConfig{Provider: "cohere"})
		if err == nil {
			t.Fatal("NewProviderFromConfig() with unknown provider should fail")
		}
		if !strings.Contains(err.Error(), "unsupported LLM provider: cohere") {
			t.Errorf("error = %v, want unsupported provider message", err)
		}
		if !strings.Contains(err.Error(), "openai, anthropic, gemini") {
			t.Errorf("error = %v, want supported provider list", err)
		}
	})

	t.Run("openai", func(t *testing.T) {
		provider, err := NewProviderFromConfig(&config.LLMConfig{
			Provider: config.LLMProviderOpenAI,
			Model:    "gpt-4o-mini",
		})
		if err != nil {
			t.Fatalf("NewProviderFromConfig() error = %v", err)
		}
		if _, ok := provider.(*OpenAIProvider); !ok {
			t.Errorf("provider type = %T, want *OpenAIProvider", provider)
		}
	})

	t.Run("anthropic", func(t *testing.T) {
		provider, err := NewProviderFromConfig(&config.LLMConfig{
			Provider: config.LLMProviderAnthropic,
			Model:    "claude-sonnet-4-20250514",
			APIKey:   "sk-ant-test",
		})
		if err != nil {
			t.Fatalf("NewProviderFromConfig() error = %v", err)
		}
		if _, ok := provider.(*AnthropicProvider); !ok {
			t.Errorf("provider type = %T, want *AnthropicProvider", provider)
		}
	})

	t.Run("anthropic_requires_api_key", func(t *testing.T) {
		_, err := NewProviderFromConfig(&config.LLMConfig{
			Provider: config.LLMProviderAnthropic,
			Model:    "claude-sonnet-4-20250514",
		})
		if err == nil {
			t.Error("anthropic provider without API key should fail")
		}
	})

	t.Run("gemini_requires_api_key", func(t *testing.T) {
		_, err := NewProviderFromConfig(&config.LLMConfig{
			Provider: config.LLMProviderGemini,
			Model:    "gemini-2.0-flash",
		})
		if err == nil {
			t.Error("gemini provider without API key should fail")
		}
	})
}

func TestCreateLLMFromConfig(t *testing.T) {
	reg := NewLLMRegistry()

	provider, err := reg.CreateLLMFromConfig("main", &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("CreateLLMFromConfig() error = %v", err)
	}

	registered, err := reg.GetLLM("main")
	if err != nil {
		t.Fatalf("GetLLM() error = %v", err)
	}
	if registered != provider {
		t.Error("registered provider does not match the one returned")
	}
}

func TestCreateLLMFromConfigEmptyName(t *testing.T) {
	reg := NewLLMRegistry()

	_, err := reg.CreateLLMFromConfig("", &config.LLMConfig{
		Provider: config.LLMProviderOpenAI,
		Model:    "gpt-4o-mini",
	})
	if err == nil {
		t.Error("CreateLLMFromConfig() with empty name should fail")
	}
}
