package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoIdentity is returned when neither the userinfo endpoint nor the
// ID token yields a usable identity.
var ErrNoIdentity = errors.New("provider returned no usable identity")

// Identity is the provider-side profile of an authenticated user.
type Identity struct {
	// Subject is the provider's stable identifier for the user.
	Subject string `json:"sub"`

	// Email is the user's primary email address.
	Email string `json:"email"`

	// Name is the user's display name.
	Name string `json:"name"`

	// Picture is the avatar URL, if the provider supplies one.
	Picture string `json:"picture"`
}

// IdentityClient resolves the profile behind a freshly issued access
// token, primarily via the provider's userinfo endpoint.
type IdentityClient struct {
	userinfoURL string
	httpClient  *http.Client
}

// NewIdentityClient creates an identity client for the given userinfo
// endpoint. An empty endpoint is allowed; Fetch then relies solely on
// the ID-token fallback.
func NewIdentityClient(userinfoURL string, httpClient *http.Client) *IdentityClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &IdentityClient{
		userinfoURL: userinfoURL,
		httpClient:  httpClient,
	}
}

// Fetch looks the identity up at the userinfo endpoint using the access
// token. When the endpoint is unavailable (or not configured) it falls
// back to the claims of the ID token from the same token response — that
// token arrived over TLS directly from the token endpoint, so its claims
// are trusted without a second verification round-trip.
func (c *IdentityClient) Fetch(ctx context.Context, tokens *TokenSet) (*Identity, error) {
	if c.userinfoURL != "" {
		identity, err := c.fetchUserinfo(ctx, tokens.AccessToken)
		if err == nil {
			return identity, nil
		}
		if tokens.IDToken == "" {
			return nil, err
		}
	}

	if tokens.IDToken != "" {
		return IdentityFromIDToken(tokens.IDToken)
	}

	return nil, ErrNoIdentity
}

func (c *IdentityClient) fetchUserinfo(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var identity Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}
	if identity.Subject == "" {
		return nil, ErrNoIdentity
	}

	return &identity, nil
}

// IdentityFromIDToken extracts identity claims from an OIDC ID token
// without signature verification.
func IdentityFromIDToken(idToken string) (*Identity, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("failed to parse id_token: %w", err)
	}

	identity := &Identity{
		Subject: stringClaim(claims, "sub"),
		Email:   stringClaim(claims, "email"),
		Name:    stringClaim(claims, "name"),
		Picture: stringClaim(claims, "picture"),
	}
	if identity.Subject == "" {
		return nil, ErrNoIdentity
	}

	return identity, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
