package config

import (
	"fmt"
	"time"
)

// MarketConfig configures the stock quote upstream.
type MarketConfig struct {
	// BaseURL of the quote API.
	// Default: https://query1.finance.yahoo.com
	BaseURL string `yaml:"base_url,omitempty"`

	// Timeout for upstream requests.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MaxRetries for transient upstream failures.
	// Default: 2
	MaxRetries int `yaml:"max_retries,omitempty"`

	// UserAgent sent with upstream requests. The public quote API
	// rejects requests without a browser-like user agent.
	UserAgent string `yaml:"user_agent,omitempty"`
}

// SetDefaults applies default values to MarketConfig.
func (c *MarketConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://query1.finance.yahoo.com"
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; tickerdesk/0.1)"
	}
}

// Validate checks the MarketConfig for errors.
func (c *MarketConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	return nil
}
