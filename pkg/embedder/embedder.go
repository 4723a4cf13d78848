// Package embedder converts text into vector embeddings for semantic
// search. The knowledge index embeds document chunks at build time and
// queries at search time through the same Embedder, so both sides of a
// similarity lookup live in one vector space.
package embedder

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Supported embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"
)

// Embedder produces vector embeddings from text.
type Embedder interface {
	// Embed converts a single text to a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to vector embeddings.
	// More efficient than calling Embed in a loop.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// Model returns the model name being used.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Config selects and configures an embedding provider.
type Config struct {
	// Provider is the embedding backend.
	// Default: "openai"
	Provider string `yaml:"provider,omitempty"`

	// Model is the embedding model name. Defaults depend on the
	// provider: text-embedding-3-small for openai, nomic-embed-text
	// for ollama.
	Model string `yaml:"model,omitempty"`

	// APIKey authenticates against the provider.
	// Default: $OPENAI_API_KEY when the provider is openai
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Dimension of the produced vectors. Auto-detected from the model
	// when zero.
	Dimension int `yaml:"dimension,omitempty"`

	// BatchSize caps how many texts go into one API request.
	// Default: 100
	BatchSize int `yaml:"batch_size,omitempty"`

	// Timeout for provider requests.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// SetDefaults applies default values to Config.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Provider == ProviderOpenAI && c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the Config for errors. Credential presence is checked
// at construction time, not here, so a config whose knowledge base is
// never built still validates.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderOllama, ProviderHash:
	default:
		return fmt.Errorf("unsupported provider: %s (supported: %s, %s, %s)",
			c.Provider, ProviderOpenAI, ProviderOllama, ProviderHash)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("dimension must be non-negative")
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("batch_size must be non-negative")
	}
	return nil
}

// New creates an Embedder from the config.
func New(cfg Config) (Embedder, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedder config: %w", err)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
			Timeout:   cfg.Timeout,
		})
	case ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case ProviderHash:
		return NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %s", cfg.Provider)
	}
}
