package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentityClient_FetchUserinfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer fresh-access" {
			t.Errorf("Authorization = %q, want bearer token", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"sub":     "108234",
			"email":   "user@example.com",
			"name":    "Example User",
			"picture": "https://example.com/avatar.png",
		})
	}))
	defer server.Close()

	client := NewIdentityClient(server.URL, nil)

	identity, err := client.Fetch(context.Background(), &TokenSet{AccessToken: "fresh-access"})
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if identity.Subject != "108234" {
		t.Errorf("Subject = %q", identity.Subject)
	}
	if identity.Email != "user@example.com" {
		t.Errorf("Email = %q", identity.Email)
	}
	if identity.Name != "Example User" {
		t.Errorf("Name = %q", identity.Name)
	}
}

// unsignedIDToken builds a JWT with the given claims and an empty
// signature, enough for claim extraction.
func unsignedIDToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("failed to marshal claims: %v", err)
	}
	return fmt.Sprintf("%s.%s.",
		base64.RawURLEncoding.EncodeToString(header),
		base64.RawURLEncoding.EncodeToString(payload),
	)
}

func TestIdentityFromIDToken(t *testing.T) {
	idToken := unsignedIDToken(t, map[string]interface{}{
		"sub":     "9001",
		"email":   "someone@example.com",
		"name":    "Someone",
		"picture": "https://example.com/p.png",
	})

	identity, err := IdentityFromIDToken(idToken)
	if err != nil {
		t.Fatalf("IdentityFromIDToken() failed: %v", err)
	}
	if identity.Subject != "9001" || identity.Email != "someone@example.com" {
		t.Errorf("unexpected identity: %+v", identity)
	}
}

func TestIdentityFromIDToken_MissingSubject(t *testing.T) {
	idToken := unsignedIDToken(t, map[string]interface{}{"email": "x@example.com"})

	if _, err := IdentityFromIDToken(idToken); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("error = %v, want ErrNoIdentity", err)
	}
}

func TestIdentityClient_FallsBackToIDToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewIdentityClient(server.URL, nil)

	idToken := unsignedIDToken(t, map[string]interface{}{"sub": "42", "email": "fb@example.com"})
	identity, err := client.Fetch(context.Background(), &TokenSet{AccessToken: "a", IDToken: idToken})
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if identity.Subject != "42" {
		t.Errorf("Subject = %q, want fallback from id_token", identity.Subject)
	}
}

func TestIdentityClient_NoEndpointNoIDToken(t *testing.T) {
	client := NewIdentityClient("", nil)

	if _, err := client.Fetch(context.Background(), &TokenSet{AccessToken: "a"}); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("error = %v, want ErrNoIdentity", err)
	}
}
