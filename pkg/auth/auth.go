// Package auth verifies bearer tokens for invoke endpoints.
//
// Tokens are JWTs verified against the identity provider's JWKS. The
// key set is cached and refreshed in the background to handle key
// rotation. Verified requests carry an Identity in the request context.
package auth

import (
	"context"
	"time"
)

// Identity is the verified caller of a request.
type Identity struct {
	// Subject is the unique user identifier (sub claim).
	Subject string `json:"sub"`

	// Email is the user's email address, when the token carries one.
	Email string `json:"email,omitempty"`

	// ExpiresAt is the token expiry.
	ExpiresAt time.Time `json:"-"`
}

// TokenValidator verifies a bearer token and returns the caller identity.
//
// Implementations must be safe for concurrent use.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Identity, error)
}

// StaticValidator accepts every token, including an empty one, and
// returns a fixed identity. Used by tests and by handler wiring that
// needs a validator but no real verification.
type StaticValidator struct {
	identity Identity
}

// NewStaticValidator creates a validator that always succeeds with the
// given subject.
func NewStaticValidator(subject string) *StaticValidator {
	return &StaticValidator{
		identity: Identity{Subject: subject},
	}
}

// ValidateToken returns the fixed identity regardless of the token.
func (v *StaticValidator) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	id := v.identity
	return &id, nil
}

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const identityContextKey contextKey = "tickerdesk_auth_identity"

// IdentityFromContext extracts the verified identity from a context.
// Returns nil if no identity is present.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityContextKey).(*Identity); ok {
		return id
	}
	return nil
}

// ContextWithIdentity returns a new context carrying the given identity.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

var _ TokenValidator = (*StaticValidator)(nil)
