package oauth

import (
	"encoding/json"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpirySkew is the safety margin subtracted from a token's
// nominal expiry. It absorbs clock drift between the provider and this
// machine plus the latency of any in-flight request using the token.
const DefaultExpirySkew = 60 * time.Second

// TokenSet is the bundle of credentials returned by the provider token
// endpoint for one account.
type TokenSet struct {
	// AccessToken is the bearer token used for authorized API calls.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional; some
	// providers omit it on refresh responses).
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in,omitempty"`

	// ObtainedAt is when this set was issued; ObtainedAt+ExpiresIn is the
	// nominal expiry instant.
	ObtainedAt time.Time `json:"obtained_at"`

	// Scope is the granted scope(s), space-delimited.
	Scope string `json:"scope,omitempty"`

	// IDToken is the OIDC ID token (if the openid scope was granted).
	IDToken string `json:"id_token,omitempty"`

	// Raw is the verbatim provider response body this set was parsed
	// from, kept for fields the struct does not model.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// ExpiresAt returns the nominal expiry instant, or the zero time when the
// provider did not report a lifetime.
func (t *TokenSet) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.ObtainedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Valid reports whether the access token is still usable: now must be
// before ObtainedAt+ExpiresIn minus the skew margin. Tokens without a
// reported lifetime are considered valid.
func (t *TokenSet) Valid(skew time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if skew < DefaultExpirySkew {
		skew = DefaultExpirySkew
	}
	expiresAt := t.ExpiresAt()
	if expiresAt.IsZero() {
		return true
	}
	return time.Now().Add(skew).Before(expiresAt)
}

// Merge combines a refresh response with the previous set. Providers may
// omit refresh_token (and sometimes scope or id_token) on refresh; the
// previous values survive rather than being overwritten with blanks.
// The receiver is not modified.
func (t *TokenSet) Merge(fresh *TokenSet) *TokenSet {
	merged := *fresh
	if merged.RefreshToken == "" {
		merged.RefreshToken = t.RefreshToken
	}
	if merged.Scope == "" {
		merged.Scope = t.Scope
	}
	if merged.IDToken == "" {
		merged.IDToken = t.IDToken
	}
	if merged.TokenType == "" {
		merged.TokenType = t.TokenType
	}
	return &merged
}

// ToOAuth2Token converts the set to a golang.org/x/oauth2 token for
// handing to API client libraries.
func (t *TokenSet) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt(),
	}

	if t.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": t.IDToken,
		})
	}

	return token
}
