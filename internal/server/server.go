// Package server exposes the account registry over a local HTTP API so
// the kiosk renderer can list accounts, trigger sign-ins, and obtain
// access tokens. The API is the trust boundary: responses never carry
// refresh tokens, verifiers, or session internals.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kinboard/internal/account"
	"kinboard/internal/oauth"
)

// AccountService is the slice of the registry the API needs. Narrowed to
// an interface so handler tests can fake it.
type AccountService interface {
	ListAccounts() []*account.Account
	StartAuthentication(ctx context.Context, loginHint string) (*account.Account, error)
	Logout(accountID string) error
	GetValidAccessToken(ctx context.Context, accountID string) (string, error)
	SaveAccountMetadata(accountID string, metadata map[string]string) error
}

// Server is the local account API.
type Server struct {
	service AccountService
	router  chi.Router
}

// New creates the API server around an account service.
func New(service AccountService) *Server {
	s := &Server{service: service}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute)) // sign-in can wait on the user

	r.Route("/api/accounts", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/login", s.handleLogin)
		r.Route("/{accountID}", func(r chi.Router) {
			r.Delete("/", s.handleLogout)
			r.Get("/token", s.handleToken)
			r.Put("/metadata", s.handleMetadata)
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": s.service.ListAccounts(),
	})
}

type loginRequest struct {
	LoginHint string `json:"login_hint,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	acct, err := s.service.StartAuthentication(r.Context(), req.LoginHint)
	if err != nil {
		status, msg := loginErrorStatus(err)
		slog.Warn("sign-in failed", "status", status, "error", err.Error())
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Logout(chi.URLParam(r, "accountID")); err != nil {
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	token, err := s.service.GetValidAccessToken(r.Context(), accountID)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrUnknownAccount):
			writeError(w, http.StatusNotFound, "unknown account")
		case errors.Is(err, account.ErrReauthRequired):
			writeError(w, http.StatusConflict, "account requires re-authentication")
		default:
			writeError(w, http.StatusBadGateway, "token refresh failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "Bearer",
	})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	var metadata map[string]string
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.service.SaveAccountMetadata(chi.URLParam(r, "accountID"), metadata)
	if errors.Is(err, account.ErrUnknownAccount) {
		writeError(w, http.StatusNotFound, "unknown account")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save metadata")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loginErrorStatus maps flow failures to stable API statuses so the UI
// can distinguish "user said no" from "something broke".
func loginErrorStatus(err error) (int, string) {
	var denied *oauth.DeniedError
	var exchange *oauth.ExchangeError

	switch {
	case errors.As(err, &denied):
		return http.StatusForbidden, "consent denied"
	case errors.Is(err, oauth.ErrAuthCancelled):
		return http.StatusConflict, "sign-in cancelled"
	case errors.Is(err, oauth.ErrAuthTimedOut):
		return http.StatusGatewayTimeout, "sign-in timed out"
	case errors.Is(err, account.ErrStateMismatch):
		return http.StatusForbidden, "sign-in rejected"
	case errors.As(err, &exchange):
		return http.StatusBadGateway, "token exchange failed"
	default:
		return http.StatusInternalServerError, "sign-in failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
