// Package account orchestrates the full authentication lifecycle for a
// set of provider accounts: interactive sign-in, token refresh, logout,
// and the read API the rest of the application consumes. It is the only
// package that sees refresh tokens and loopback sessions together;
// nothing it exports carries either.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"kinboard/internal/oauth"
	"kinboard/internal/store"
	"kinboard/internal/window"
)

var (
	// ErrUnknownAccount is returned for operations on an account id the
	// registry does not hold.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrReauthRequired is returned when an account's tokens can no longer
	// be refreshed and the user must sign in again.
	ErrReauthRequired = errors.New("account requires re-authentication")

	// ErrStateMismatch is returned when a callback carries a state value
	// that does not match the attempt that opened the session.
	ErrStateMismatch = errors.New("oauth state mismatch")
)

// Config carries the provider and flow settings for a registry.
type Config struct {
	// AuthURL is the provider's authorization endpoint.
	AuthURL string

	// ClientID identifies this application to the provider.
	ClientID string

	// Scopes are the OAuth scopes requested at sign-in.
	Scopes []string

	// CallbackTimeout bounds how long an attempt waits for the redirect.
	// Zero means oauth.DefaultCallbackTimeout.
	CallbackTimeout time.Duration

	// ExpirySkew is the safety margin subtracted from token lifetimes.
	// Zero means oauth.DefaultExpirySkew.
	ExpirySkew time.Duration

	// ExtraNavigationHosts are additional hosts the consent surface may
	// visit, for providers whose consent flow hops through a federated
	// sign-in domain. The authorization endpoint's own host is always
	// allowed.
	ExtraNavigationHosts []string
}

// Deps are the collaborators a registry drives. All are required except
// Identity, which may be nil when the provider has no userinfo endpoint.
type Deps struct {
	Sessions  *oauth.SessionManager
	Exchange  *oauth.ExchangeClient
	Identity  *oauth.IdentityClient
	Store     *store.Store
	NewWindow func() window.Controller
}

// Account is the externally visible view of a signed-in account. It
// deliberately carries no token material.
type Account struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name,omitempty"`
	Email       string            `json:"email,omitempty"`
	AvatarURL   string            `json:"avatar_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	NeedsReauth bool              `json:"needs_reauth,omitempty"`
	TokenValid  bool              `json:"token_valid"`
}

// Registry holds the live account set and serializes all mutations to
// it. Interactive sign-ins run concurrently; refreshes are deduplicated
// per account.
type Registry struct {
	cfg  Config
	deps Deps

	nav *window.NavigationPolicy

	mu       sync.RWMutex
	accounts map[string]*store.Record

	refreshGroup singleflight.Group
}

// NewRegistry creates a registry and loads any previously persisted
// accounts from the store.
func NewRegistry(cfg Config, deps Deps) (*Registry, error) {
	if deps.Sessions == nil || deps.Exchange == nil || deps.Store == nil || deps.NewWindow == nil {
		return nil, errors.New("registry requires sessions, exchange, store, and a window factory")
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = oauth.DefaultCallbackTimeout
	}
	if cfg.ExpirySkew <= 0 {
		cfg.ExpirySkew = oauth.DefaultExpirySkew
	}

	navHosts := cfg.ExtraNavigationHosts
	if u, err := url.Parse(cfg.AuthURL); err == nil && u.Hostname() != "" {
		navHosts = append([]string{u.Hostname()}, navHosts...)
	}

	r := &Registry{
		cfg:      cfg,
		deps:     deps,
		nav:      window.NewNavigationPolicy(navHosts...),
		accounts: make(map[string]*store.Record),
	}

	if err := r.ReloadFromStore(); err != nil {
		return nil, err
	}

	return r, nil
}

// StartAuthentication runs one complete interactive sign-in: it opens a
// fresh loopback session, shows the consent screen, waits for the
// redirect, exchanges the code, resolves the user's identity, and
// persists the result. Multiple calls may run concurrently; each attempt
// has its own session, window, and PKCE material.
//
// loginHint, when non-empty, preselects the given address on the
// provider's account chooser.
func (r *Registry) StartAuthentication(ctx context.Context, loginHint string) (*Account, error) {
	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return nil, err
	}
	state, err := oauth.GenerateState()
	if err != nil {
		return nil, err
	}

	sess, err := r.deps.Sessions.OpenSession()
	if err != nil {
		return nil, err
	}

	authURL := r.buildAuthURL(sess.RedirectURI(), pkce.Challenge, state, loginHint)
	if !r.nav.Allow(authURL) {
		r.deps.Sessions.Cancel(sess.ID())
		return nil, fmt.Errorf("consent URL blocked by navigation policy: %s", r.cfg.AuthURL)
	}

	win := r.deps.NewWindow()
	defer win.Close()

	// If the user dismisses the window before the redirect arrives, the
	// session is cancelled so Await returns promptly.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-win.Closed():
			r.deps.Sessions.Cancel(sess.ID())
		case <-watchDone:
		}
	}()

	if err := win.Open(ctx, authURL); err != nil {
		r.deps.Sessions.Cancel(sess.ID())
		return nil, fmt.Errorf("failed to open consent window: %w", err)
	}

	slog.Info("authentication started",
		"session_id", sess.ID(),
		"port", sess.Port(),
		"has_login_hint", loginHint != "",
	)

	result, err := r.deps.Sessions.Await(ctx, sess.ID(), r.cfg.CallbackTimeout)
	if err != nil {
		return nil, err
	}

	if result.State != state {
		slog.Warn("authentication rejected", "session_id", sess.ID(), "reason", "state mismatch")
		return nil, ErrStateMismatch
	}

	tokens, err := r.deps.Exchange.ExchangeCode(ctx, result.Code, pkce.Verifier, sess.RedirectURI())
	if err != nil {
		return nil, err
	}

	rec := &store.Record{Tokens: tokens}
	if r.deps.Identity != nil {
		identity, err := r.deps.Identity.Fetch(ctx, tokens)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve account identity: %w", err)
		}
		rec.AccountID = identity.Subject
		rec.DisplayName = identity.Name
		rec.Email = identity.Email
		rec.AvatarURL = identity.Picture
	} else {
		identity, err := oauth.IdentityFromIDToken(tokens.IDToken)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve account identity: %w", err)
		}
		rec.AccountID = identity.Subject
		rec.DisplayName = identity.Name
		rec.Email = identity.Email
		rec.AvatarURL = identity.Picture
	}

	r.mu.Lock()
	// Re-authentication of an existing account keeps its metadata and
	// clears any reauth flag.
	if prev, ok := r.accounts[rec.AccountID]; ok {
		rec.Metadata = prev.Metadata
		if prev.Tokens != nil {
			rec.Tokens = prev.Tokens.Merge(tokens)
		}
	}
	r.accounts[rec.AccountID] = rec
	r.mu.Unlock()

	if err := r.deps.Store.Save(rec); err != nil {
		return nil, err
	}

	slog.Info("authentication completed", "account_id", rec.AccountID)
	return r.view(rec), nil
}

// RefreshIfNeeded refreshes the account's tokens when they are expired
// or about to expire. It returns true when a network refresh actually
// happened. Concurrent calls for the same account collapse into one
// request. A refresh rejected by the provider demotes the account to
// needs-reauth rather than removing it.
func (r *Registry) RefreshIfNeeded(ctx context.Context, accountID string) (bool, error) {
	// Snapshot under the lock; records in the map are never written in
	// place, so the verdicts stay consistent after release.
	r.mu.RLock()
	rec, ok := r.accounts[accountID]
	var needsReauth, valid bool
	if ok {
		needsReauth = rec.NeedsReauth
		valid = rec.Tokens.Valid(r.cfg.ExpirySkew)
	}
	r.mu.RUnlock()
	if !ok {
		return false, ErrUnknownAccount
	}
	if needsReauth {
		return false, ErrReauthRequired
	}
	if valid {
		return false, nil
	}

	v, err, _ := r.refreshGroup.Do(accountID, func() (interface{}, error) {
		r.mu.RLock()
		current, ok := r.accounts[accountID]
		var tokens *oauth.TokenSet
		if ok {
			tokens = current.Tokens
		}
		r.mu.RUnlock()
		if !ok {
			return false, ErrUnknownAccount
		}
		if tokens.Valid(r.cfg.ExpirySkew) {
			return false, nil
		}

		fresh, err := r.deps.Exchange.Refresh(ctx, tokens)
		if err != nil {
			r.demoteToReauth(accountID, err)
			return false, fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}

		// A logout that raced the refresh wins: the rotated tokens are
		// discarded instead of resurrecting the account.
		saved, ok := r.updateAccount(accountID, func(rec *store.Record) {
			rec.Tokens = fresh
			rec.NeedsReauth = false
		})
		if !ok {
			slog.Info("refresh result discarded after logout", "account_id", accountID)
			return false, ErrUnknownAccount
		}

		if err := r.deps.Store.Save(saved); err != nil {
			return false, err
		}
		slog.Debug("tokens refreshed", "account_id", accountID)
		return true, nil
	})
	if err != nil {
		return false, err
	}
	refreshed, _ := v.(bool)
	return refreshed, nil
}

// updateAccount clones the live record, applies fn, and republishes the
// clone. Map entries are replaced, never mutated, so a snapshot taken
// under RLock remains safe to read after the lock is released.
func (r *Registry) updateAccount(accountID string, fn func(*store.Record)) (*store.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.accounts[accountID]
	if !ok {
		return nil, false
	}
	clone := *rec
	fn(&clone)
	r.accounts[accountID] = &clone
	return &clone, true
}

// demoteToReauth flags an account whose refresh token no longer works.
func (r *Registry) demoteToReauth(accountID string, cause error) {
	saved, ok := r.updateAccount(accountID, func(rec *store.Record) {
		rec.NeedsReauth = true
	})
	if !ok {
		return
	}

	slog.Warn("account demoted to needs-reauth",
		"account_id", accountID,
		"error", cause.Error(),
	)
	if err := r.deps.Store.Save(saved); err != nil {
		slog.Warn("failed to persist reauth flag", "account_id", accountID, "error", err.Error())
	}
}

// GetValidAccessToken returns a currently valid access token for the
// account, refreshing first when necessary.
func (r *Registry) GetValidAccessToken(ctx context.Context, accountID string) (string, error) {
	if _, err := r.RefreshIfNeeded(ctx, accountID); err != nil {
		return "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.accounts[accountID]
	if !ok {
		return "", ErrUnknownAccount
	}
	if !rec.Tokens.Valid(r.cfg.ExpirySkew) {
		return "", ErrReauthRequired
	}
	return rec.Tokens.AccessToken, nil
}

// Logout removes an account and its persisted tokens. Idempotent:
// logging out an unknown account succeeds silently.
func (r *Registry) Logout(accountID string) error {
	r.mu.Lock()
	_, existed := r.accounts[accountID]
	delete(r.accounts, accountID)
	r.mu.Unlock()

	if err := r.deps.Store.Delete(accountID); err != nil {
		return err
	}

	if existed {
		slog.Info("account logged out", "account_id", accountID)
	}
	return nil
}

// ListAccounts returns all known accounts ordered by email, tokens
// omitted.
func (r *Registry) ListAccounts() []*Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Account, 0, len(r.accounts))
	for _, rec := range r.accounts {
		out = append(out, r.view(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Email != out[j].Email {
			return out[i].Email < out[j].Email
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetAccount returns a single account view.
func (r *Registry) GetAccount(accountID string) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.accounts[accountID]
	if !ok {
		return nil, false
	}
	return r.view(rec), true
}

// SaveAccountMetadata replaces the user-supplied metadata for an
// account (nickname, color, and similar display fields).
func (r *Registry) SaveAccountMetadata(accountID string, metadata map[string]string) error {
	saved, ok := r.updateAccount(accountID, func(rec *store.Record) {
		rec.Metadata = metadata
	})
	if !ok {
		return ErrUnknownAccount
	}
	return r.deps.Store.Save(saved)
}

// ReloadFromStore replaces the live account set with what is on disk.
// Called at startup and when the store watcher reports an external
// change.
func (r *Registry) ReloadFromStore() error {
	records, err := r.deps.Store.List()
	if err != nil {
		return fmt.Errorf("failed to load persisted accounts: %w", err)
	}

	accounts := make(map[string]*store.Record, len(records))
	for _, rec := range records {
		accounts[rec.AccountID] = rec
	}

	r.mu.Lock()
	r.accounts = accounts
	r.mu.Unlock()

	slog.Debug("accounts loaded from store", "count", len(accounts))
	return nil
}

// TokenSource adapts an account to the oauth2.TokenSource interface so
// provider API clients can consume it directly. Tokens are fetched
// through the registry, so refresh and reauth semantics apply.
func (r *Registry) TokenSource(ctx context.Context, accountID string) oauth2.TokenSource {
	return &registryTokenSource{ctx: ctx, registry: r, accountID: accountID}
}

// Close cancels all in-flight authentication attempts and releases the
// loopback listeners.
func (r *Registry) Close() {
	r.deps.Sessions.Close()
}

func (r *Registry) view(rec *store.Record) *Account {
	acct := &Account{
		ID:          rec.AccountID,
		DisplayName: rec.DisplayName,
		Email:       rec.Email,
		AvatarURL:   rec.AvatarURL,
		NeedsReauth: rec.NeedsReauth,
		TokenValid:  rec.Tokens.Valid(r.cfg.ExpirySkew),
	}
	if rec.Metadata != nil {
		acct.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			acct.Metadata[k] = v
		}
	}
	return acct
}

func (r *Registry) buildAuthURL(redirectURI, challenge, state, loginHint string) string {
	params := url.Values{}
	params.Set("client_id", r.cfg.ClientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(r.cfg.Scopes, " "))
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	params.Set("code_challenge", challenge)
	params.Set("code_challenge_method", oauth.PKCEMethodS256)
	params.Set("state", state)
	if loginHint != "" {
		params.Set("login_hint", loginHint)
	}
	return r.cfg.AuthURL + "?" + params.Encode()
}

type registryTokenSource struct {
	ctx       context.Context
	registry  *Registry
	accountID string
}

func (ts *registryTokenSource) Token() (*oauth2.Token, error) {
	if _, err := ts.registry.RefreshIfNeeded(ts.ctx, ts.accountID); err != nil {
		return nil, err
	}

	ts.registry.mu.RLock()
	defer ts.registry.mu.RUnlock()
	rec, ok := ts.registry.accounts[ts.accountID]
	if !ok {
		return nil, ErrUnknownAccount
	}
	return rec.Tokens.ToOAuth2Token(), nil
}
