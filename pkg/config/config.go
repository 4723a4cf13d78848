// Package config defines the tickerdesk configuration model.
//
// Configuration is loaded from a YAML file (JSON also accepted), with
// ${VAR} and ${VAR:-default} expansion applied before decoding. Every
// section implements SetDefaults and Validate; defaults fall back to the
// environment variables the hosted deployment sets (COGNITO_*, SKIP_AUTH,
// KNOWLEDGE_DIR, PORT, ...), so a config file is optional.
package config

import (
	"fmt"

	"github.com/tickerdesk/tickerdesk/pkg/observability"
)

// Config is the root configuration for the tickerdesk service.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server,omitempty"`

	// Auth configures bearer token verification.
	Auth AuthConfig `yaml:"auth,omitempty"`

	// LLM configures the language model provider for the agent.
	LLM LLMConfig `yaml:"llm,omitempty"`

	// Knowledge configures the document index.
	Knowledge KnowledgeConfig `yaml:"knowledge,omitempty"`

	// Market configures the stock quote upstream.
	Market MarketConfig `yaml:"market,omitempty"`

	// Logger configures logging output.
	Logger LoggerConfig `yaml:"logger,omitempty"`

	// Observability configures metrics and tracing.
	Observability observability.Config `yaml:"observability,omitempty"`
}

// New returns a Config with all defaults applied.
//
// Used for zero-config startup when no config file is given.
func New() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies default values to all sections.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Auth.SetDefaults()
	c.LLM.SetDefaults()
	c.Knowledge.SetDefaults()
	c.Market.SetDefaults()
	c.Logger.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks all sections for errors.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Knowledge.Validate(); err != nil {
		return fmt.Errorf("knowledge: %w", err)
	}
	if err := c.Market.Validate(); err != nil {
		return fmt.Errorf("market: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool {
	return &b
}
