package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func generateRSAKeyPair(t testing.TB) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

func createJWKS(t testing.TB, publicKey *rsa.PublicKey) jwk.Set {
	t.Helper()
	key, err := jwk.FromRaw(publicKey)
	if err != nil {
		t.Fatalf("Failed to create JWK: %v", err)
	}

	if err := key.Set(jwk.KeyIDKey, "test-key-id"); err != nil {
		t.Fatalf("Failed to set key ID: %v", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("Failed to set algorithm: %v", err)
	}

	keyset := jwk.NewSet()
	if err := keyset.AddKey(key); err != nil {
		t.Fatalf("Failed to add key: %v", err)
	}

	return keyset
}

// tokenSpec controls the claims of a signed test token.
type tokenSpec struct {
	issuer    string
	audience  string
	subject   string
	expiresAt time.Time
	claims    map[string]any
}

func signTestToken(t testing.TB, privateKey *rsa.PrivateKey, spec tokenSpec) string {
	t.Helper()

	if spec.expiresAt.IsZero() {
		spec.expiresAt = time.Now().Add(time.Hour)
	}

	token := jwt.New()
	for key, value := range map[string]any{
		jwt.IssuerKey:     spec.issuer,
		jwt.AudienceKey:   spec.audience,
		jwt.SubjectKey:    spec.subject,
		jwt.IssuedAtKey:   time.Now().Add(-time.Minute),
		jwt.ExpirationKey: spec.expiresAt,
	} {
		if err := token.Set(key, value); err != nil {
			t.Fatalf("Failed to set claim %s: %v", key, err)
		}
	}
	for key, value := range spec.claims {
		if err := token.Set(key, value); err != nil {
			t.Fatalf("Failed to set claim %s: %v", key, err)
		}
	}

	key, err := jwk.FromRaw(privateKey)
	if err != nil {
		t.Fatalf("Failed to create signing key: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, "test-key-id"); err != nil {
		t.Fatalf("Failed to set key ID: %v", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	return string(signed)
}

// newJWKSServer serves the given key set at the Cognito well-known path.
func newJWKSServer(t testing.TB, keyset jwk.Set) (*httptest.Server, string) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}

		keysetJSON, err := json.Marshal(keyset)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysetJSON)
	}))
	t.Cleanup(server.Close)

	return server, server.URL + "/.well-known/jwks.json"
}

// setupTestValidator wires a validator against a fake JWKS endpoint.
func setupTestValidator(t testing.TB) (*JWTValidator, *rsa.PrivateKey, string, string) {
	t.Helper()

	privateKey, publicKey := generateRSAKeyPair(t)
	keyset := createJWKS(t, publicKey)
	_, jwksURL := newJWKSServer(t, keyset)

	issuer := "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_testpool"
	audience := "test-client-id"

	validator, err := NewJWTValidator(JWTValidatorConfig{
		JWKSURL:  jwksURL,
		Issuer:   issuer,
		Audience: audience,
	})
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}

	return validator, privateKey, issuer, audience
}
