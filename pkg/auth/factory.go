package auth

import (
	"fmt"

	"github.com/tickerdesk/tickerdesk/pkg/config"
)

// NewValidatorFromConfig creates a TokenValidator from configuration.
// Returns nil when verification is bypassed (skip_auth); the server then
// treats every request as the placeholder development user.
func NewValidatorFromConfig(cfg *config.AuthConfig) (TokenValidator, error) {
	if cfg == nil || cfg.SkipAuth {
		return nil, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}

	validator, err := NewJWTValidator(JWTValidatorConfig{
		JWKSURL:         cfg.JWKSURL,
		Issuer:          cfg.Issuer,
		Audience:        cfg.Audience,
		RefreshInterval: cfg.RefreshInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT validator: %w", err)
	}

	return validator, nil
}
