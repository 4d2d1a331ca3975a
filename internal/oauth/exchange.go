package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout is the default timeout for token endpoint requests.
const DefaultHTTPTimeout = 30 * time.Second

// ErrNoRefreshToken is returned by Refresh when the previous token set
// carries no refresh token; the account needs a fresh interactive login.
var ErrNoRefreshToken = errors.New("no refresh token available")

// ExchangeConfig configures the token exchange client.
type ExchangeConfig struct {
	// TokenURL is the provider token endpoint.
	TokenURL string

	// ClientID identifies this client to the provider.
	ClientID string

	// ClientSecret is sent only when set (confidential-client variant);
	// PKCE alone suffices for public clients.
	ClientSecret string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// ExchangeClient performs code-for-token and refresh-token exchanges
// against the provider token endpoint. It runs inside the trusted
// process boundary: it may carry a client secret and never executes in a
// context exposed to page script.
//
// It never retries; retry policy belongs to the orchestration layer.
type ExchangeClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewExchangeClient creates a token exchange client.
func NewExchangeClient(cfg ExchangeConfig) *ExchangeClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	return &ExchangeClient{
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   httpClient,
	}
}

// ExchangeCode trades an authorization code for a token set. redirectURI
// must be the exact string the loopback session registered; the provider
// rejects any mismatch.
func (c *ExchangeClient) ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (*TokenSet, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {verifier},
		"redirect_uri":  {redirectURI},
		"client_id":     {c.clientID},
	}
	if c.clientSecret != "" {
		data.Set("client_secret", c.clientSecret)
	}

	tokens, err := c.doTokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}

	slog.Debug("exchanged authorization code for tokens",
		"expires_in", tokens.ExpiresIn,
		"has_refresh_token", tokens.RefreshToken != "",
	)

	return tokens, nil
}

// Refresh trades the previous set's refresh token for a new token set
// and merges the response into prev: providers that omit refresh_token
// leave the existing one valid, so it is retained rather than dropped.
// prev is not modified.
func (c *ExchangeClient) Refresh(ctx context.Context, prev *TokenSet) (*TokenSet, error) {
	if prev == nil || prev.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {prev.RefreshToken},
		"client_id":     {c.clientID},
	}
	if c.clientSecret != "" {
		data.Set("client_secret", c.clientSecret)
	}

	fresh, err := c.doTokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}

	merged := prev.Merge(fresh)

	slog.Debug("refreshed token set",
		"expires_in", merged.ExpiresIn,
		"refresh_token_rotated", fresh.RefreshToken != "" && fresh.RefreshToken != prev.RefreshToken,
	)

	return merged, nil
}

// doTokenRequest POSTs a form to the token endpoint and parses the token
// set from the response. Non-2xx responses become *ExchangeError with
// the body carried verbatim.
func (c *ExchangeClient) doTokenRequest(ctx context.Context, data url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newExchangeError(resp.StatusCode, body)
	}

	var tokens TokenSet
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	tokens.ObtainedAt = time.Now()
	tokens.Raw = json.RawMessage(body)

	return &tokens, nil
}
