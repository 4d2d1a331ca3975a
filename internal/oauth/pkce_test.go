package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func TestGeneratePKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() failed: %v", err)
	}

	if pkce.Verifier == "" {
		t.Error("Verifier is empty")
	}
	if pkce.Challenge == "" {
		t.Error("Challenge is empty")
	}

	// 32 random bytes encode to 43 base64url characters, the RFC 7636
	// minimum verifier length.
	if len(pkce.Verifier) < 43 {
		t.Errorf("Verifier length = %d, want >= 43", len(pkce.Verifier))
	}

	// The challenge must be the unpadded base64url SHA-256 of the verifier.
	hash := sha256.Sum256([]byte(pkce.Verifier))
	expected := base64.RawURLEncoding.EncodeToString(hash[:])
	if pkce.Challenge != expected {
		t.Errorf("Challenge verification failed.\nGot:  %q\nWant: %q", pkce.Challenge, expected)
	}
}

func TestGeneratePKCE_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		pkce, err := GeneratePKCE()
		if err != nil {
			t.Fatalf("GeneratePKCE() failed on iteration %d: %v", i, err)
		}

		if seen[pkce.Verifier] {
			t.Errorf("duplicate verifier generated on iteration %d", i)
		}
		seen[pkce.Verifier] = true
	}
}

func TestGenerateState(t *testing.T) {
	state, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() failed: %v", err)
	}

	if len(state) < 43 {
		t.Errorf("state length = %d, want >= 43", len(state))
	}

	other, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() failed: %v", err)
	}
	if state == other {
		t.Error("two generated states are identical")
	}
}
