package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Middleware creates an HTTP middleware that validates bearer tokens.
// Requests without a valid token receive 401 with a JSON error body;
// no handler below the middleware runs.
//
// The verified Identity is stored in the request context and can be
// retrieved with IdentityFromContext.
func Middleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearer(r.Header.Get("Authorization"))
			if !ok {
				writeAuthError(w, "Missing or malformed bearer token")
				return
			}

			id, err := validator.ValidateToken(r.Context(), tokenString)
			if err != nil {
				writeAuthError(w, authErrorMessage(err))
				return
			}

			ctx := ContextWithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BypassMiddleware treats every request as the given subject without
// reading the Authorization header. Used when token verification is
// disabled for local development.
func BypassMiddleware(subject string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithIdentity(r.Context(), &Identity{Subject: subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer extracts the token from an Authorization header.
// Only the "Bearer <token>" form is accepted.
func extractBearer(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", false
	}
	return token, true
}

// authErrorMessage maps a verification failure to a client-safe message.
func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, ErrInvalidSignature):
		return "Invalid token"
	default:
		return "Unauthenticated"
	}
}

// writeAuthError writes a 401 JSON error response.
func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":%q}`, message)
}
