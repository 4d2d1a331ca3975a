package oauth

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCallbackTimeout is how long a session waits for the redirect
// before failing with ErrAuthTimedOut.
const DefaultCallbackTimeout = 120 * time.Second

// shutdownGrace is how long a session keeps serving after the first
// redirect so the browser receives its response before the socket closes.
const shutdownGrace = 1 * time.Second

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTmpl = template.Must(template.New("success").Parse(callbackSuccessHTML))
	errorTmpl   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// CallbackResult carries the query parameters captured from the one
// redirect a session accepts.
type CallbackResult struct {
	// Code is the authorization code from the provider.
	Code string

	// State is the state parameter to verify against the original request.
	State string

	// Error is the OAuth error code if the authorization failed.
	Error string

	// ErrorDescription is a human-readable error description.
	ErrorDescription string
}

// Denied returns true if the redirect carried an error parameter.
func (r *CallbackResult) Denied() bool {
	return r.Error != ""
}

// Session is one ephemeral loopback listener, owned by exactly one
// authentication attempt. It captures at most one redirect: the first
// request resolves the waiter, later requests are answered but ignored.
type Session struct {
	id          string
	port        int
	redirectURI string
	createdAt   time.Time

	server   *http.Server
	listener net.Listener

	resultCh   chan *CallbackResult
	cancelCh   chan struct{}
	deliver    sync.Once
	cancelOnce sync.Once
	closeOnce  sync.Once
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Port returns the OS-assigned TCP port the session is listening on.
func (s *Session) Port() int { return s.port }

// RedirectURI returns the exact redirect URI registered with the
// provider for this attempt. The same string must be sent to the token
// endpoint during code exchange.
func (s *Session) RedirectURI() string { return s.redirectURI }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// handleCallback accepts the redirect. Only the first request with query
// parameters resolves the waiter; the browser always gets a response so
// it never hangs on an already-consumed session.
func (s *Session) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// A stray request without an authorization response must not burn
	// the attempt; only the provider redirect resolves it.
	if query.Get("code") == "" && query.Get("error") == "" {
		http.Error(w, "Missing authorization response", http.StatusBadRequest)
		return
	}

	var first bool
	s.deliver.Do(func() {
		first = true
	})

	if !first {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	if result.Denied() {
		_ = errorTmpl.Execute(w, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})
	} else {
		_ = successTmpl.Execute(w, nil)
	}

	// Buffered channel; the single consumer may already have given up.
	select {
	case s.resultCh <- result:
	default:
	}

	// Stop accepting connections once the response has gone out.
	go func() {
		time.Sleep(shutdownGrace)
		s.close()
	}()
}

// cancel signals the session's waiter that the attempt was aborted.
func (s *Session) cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelCh)
	})
}

// close releases the socket. Safe to call from any terminal path.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// SessionManager owns the registry of live loopback sessions, one per
// in-flight authentication attempt. It is the only component that
// mutates the registry; construct one and inject it where needed.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty session registry.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// OpenSession binds a fresh listener on 127.0.0.1 with an OS-assigned
// port so concurrent attempts never collide, and registers the session.
// Returns a *BindError when no port can be bound; the failed session is
// never reused.
func (m *SessionManager) OpenSession() (*Session, error) {
	const addr = "127.0.0.1:0"

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}

	port := listener.Addr().(*net.TCPAddr).Port
	session := &Session{
		id:          uuid.NewString(),
		port:        port,
		redirectURI: fmt.Sprintf("http://127.0.0.1:%d/callback", port),
		createdAt:   time.Now(),
		listener:    listener,
		resultCh:    make(chan *CallbackResult, 1),
		cancelCh:    make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", session.handleCallback)
	session.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	m.mu.Lock()
	m.sessions[session.id] = session
	m.mu.Unlock()

	go func() {
		if err := session.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Debug("loopback session server stopped",
				"session_id", session.id,
				"error", err.Error(),
			)
		}
	}()

	slog.Debug("opened loopback session",
		"session_id", session.id,
		"port", port,
	)

	return session, nil
}

// Await blocks until the session captures its redirect, the timeout
// elapses, the session is cancelled, or ctx is done. Exactly one
// terminal outcome is delivered per session; on every path the listener
// is torn down and the session removed from the registry, so a
// subsequent Await for the same id fails with ErrUnknownSession.
//
// A redirect carrying an error parameter surfaces as *DeniedError;
// timeout as ErrAuthTimedOut; cancellation as ErrAuthCancelled.
func (m *SessionManager) Await(ctx context.Context, sessionID string, timeout time.Duration) (*CallbackResult, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}

	if timeout <= 0 {
		timeout = DefaultCallbackTimeout
	}

	defer m.remove(sessionID)
	defer session.close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-session.resultCh:
		if result.Denied() {
			return nil, &DeniedError{
				Code:        result.Error,
				Description: result.ErrorDescription,
			}
		}
		return result, nil
	case <-session.cancelCh:
		return nil, ErrAuthCancelled
	case <-timer.C:
		return nil, ErrAuthTimedOut
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel tears a session down before it resolves, releasing its socket
// and waking any waiter with ErrAuthCancelled. Cancelling an unknown or
// already-consumed session is a no-op.
func (m *SessionManager) Cancel(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	session.cancel()
	session.close()
	m.remove(sessionID)

	slog.Debug("cancelled loopback session", "session_id", sessionID)
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close cancels every live session. Used at shutdown so no socket leaks.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
		s.close()
	}
}

func (m *SessionManager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}
