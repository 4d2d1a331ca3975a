package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code
	// verifier. 32 bytes provides 256 bits of entropy and encodes to 43
	// base64url characters, the RFC 7636 minimum verifier length.
	pkceVerifierBytes = 32

	// stateBytes is the number of random bytes for the OAuth state
	// parameter.
	stateBytes = 32

	// PKCEMethodS256 is the only challenge method this client produces.
	PKCEMethodS256 = "S256"
)

// PKCE holds the verifier/challenge pair for one authentication attempt.
// The verifier lives only for the lifetime of the attempt and is never
// persisted.
type PKCE struct {
	// Verifier is the cryptographically random secret, base64url-encoded.
	// It is sent only to the token endpoint, never to the browser.
	Verifier string

	// Challenge is the unpadded base64url SHA-256 digest of the verifier,
	// sent in the authorization request.
	Challenge string
}

// GeneratePKCE generates a new PKCE verifier and its S256 challenge.
// If the secure random source fails, the returned error wraps
// ErrEntropyUnavailable and no pair is produced.
func GeneratePKCE() (*PKCE, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	hash := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(hash[:])

	return &PKCE{
		Verifier:  verifier,
		Challenge: challenge,
	}, nil
}

// GenerateState generates a random state parameter linking the
// authorization response back to the attempt that produced it.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
