package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// AuthConfig configures JWT verification for invoke endpoints.
//
// Tokens are verified against a JWKS endpoint. When the Cognito fields
// (region, user_pool_id, client_id) are set, the JWKS URL, issuer, and
// audience are derived from them; explicit values override the derived
// ones.
//
// Example:
//
//	auth:
//	  region: us-east-1
//	  user_pool_id: us-east-1_AbCdEfGhI
//	  client_id: 4f9example1234
//
// Setting skip_auth (or SKIP_AUTH=true) disables verification entirely
// and treats every request as the placeholder user. Never enable this
// outside local development.
type AuthConfig struct {
	// SkipAuth disables token verification.
	// Default: $SKIP_AUTH == "true"
	SkipAuth bool `yaml:"skip_auth,omitempty"`

	// Region is the AWS region of the Cognito user pool.
	// Default: $AWS_REGION, or us-east-1
	Region string `yaml:"region,omitempty"`

	// UserPoolID is the Cognito user pool identifier.
	// Default: $COGNITO_USER_POOL_ID
	UserPoolID string `yaml:"user_pool_id,omitempty"`

	// ClientID is the Cognito app client identifier.
	// Default: $COGNITO_CLIENT_ID
	ClientID string `yaml:"client_id,omitempty"`

	// JWKSURL is the key-set endpoint. Derived from region and
	// user_pool_id when empty.
	JWKSURL string `yaml:"jwks_url,omitempty"`

	// Issuer is the expected iss claim. Derived from region and
	// user_pool_id when empty.
	Issuer string `yaml:"issuer,omitempty"`

	// Audience is the expected aud claim. Defaults to client_id.
	Audience string `yaml:"audience,omitempty"`

	// RefreshInterval is the minimum interval between JWKS refreshes.
	// Default: 15m
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`
}

// SetDefaults applies default values to AuthConfig.
func (c *AuthConfig) SetDefaults() {
	if !c.SkipAuth {
		c.SkipAuth = strings.EqualFold(os.Getenv("SKIP_AUTH"), "true")
	}
	if c.Region == "" {
		c.Region = os.Getenv("AWS_REGION")
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.UserPoolID == "" {
		c.UserPoolID = os.Getenv("COGNITO_USER_POOL_ID")
	}
	if c.ClientID == "" {
		c.ClientID = os.Getenv("COGNITO_CLIENT_ID")
	}
	if c.Issuer == "" && c.UserPoolID != "" {
		c.Issuer = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
	}
	if c.JWKSURL == "" && c.Issuer != "" {
		c.JWKSURL = c.Issuer + "/.well-known/jwks.json"
	}
	if c.Audience == "" {
		c.Audience = c.ClientID
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}
}

// Validate checks the AuthConfig for errors.
func (c *AuthConfig) Validate() error {
	if c.SkipAuth {
		return nil
	}

	if c.JWKSURL == "" {
		return fmt.Errorf("jwks_url is required (set user_pool_id or jwks_url, or enable skip_auth for local development)")
	}
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required when auth is enabled")
	}
	if c.Audience == "" {
		return fmt.Errorf("audience is required when auth is enabled (set client_id or audience)")
	}
	if c.RefreshInterval < time.Minute {
		return fmt.Errorf("refresh_interval must be at least 1 minute")
	}

	return nil
}
