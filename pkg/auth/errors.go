package auth

import "errors"

// Verification failures, all surfaced to clients as 401.
var (
	// ErrUnauthenticated is returned when a token is missing or malformed,
	// or when a verified token fails claim checks (issuer, audience).
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTokenExpired is returned when a token has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidSignature is returned when a token cannot be verified
	// against the key set.
	ErrInvalidSignature = errors.New("invalid token signature")
)
