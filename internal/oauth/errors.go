package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEntropyUnavailable is returned when the cryptographically secure
// random source cannot produce the bytes a verifier or state needs.
// There is no weak fallback; the attempt fails.
var ErrEntropyUnavailable = errors.New("secure random source unavailable")

// ErrAuthTimedOut is returned when no redirect arrives at the loopback
// listener within the attempt's deadline.
var ErrAuthTimedOut = errors.New("timed out waiting for authorization redirect")

// ErrAuthCancelled is returned when an attempt is cancelled before the
// redirect arrives (session cancelled explicitly or its window closed).
var ErrAuthCancelled = errors.New("authentication cancelled")

// ErrUnknownSession is returned when a session id does not refer to a
// live loopback session (already consumed, cancelled, or never opened).
var ErrUnknownSession = errors.New("unknown loopback session")

// BindError indicates the loopback listener could not be bound.
// It is fatal to the attempt, never to the process; callers retry with a
// fresh session.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind loopback listener on %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// DeniedError indicates the provider (or the user at the consent screen)
// refused the authorization request. It is surfaced to the user and never
// retried automatically.
type DeniedError struct {
	// Code is the OAuth error code from the redirect, e.g. "access_denied".
	Code string

	// Description is the optional human-readable error_description.
	Description string
}

func (e *DeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s (%s)", e.Code, e.Description)
	}
	return fmt.Sprintf("authorization denied: %s", e.Code)
}

// ExchangeError indicates a non-2xx response from the provider token
// endpoint. The body is carried verbatim; error/error_description are
// parsed best-effort. Retry policy belongs to the caller.
type ExchangeError struct {
	StatusCode  int
	Body        string
	Code        string
	Description string
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("token endpoint returned %d: %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Body)
}

// newExchangeError builds an ExchangeError from a provider response,
// extracting the standard OAuth error fields when the body is JSON.
func newExchangeError(statusCode int, body []byte) *ExchangeError {
	e := &ExchangeError{
		StatusCode: statusCode,
		Body:       string(body),
	}

	var parsed struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		e.Code = parsed.Error
		e.Description = parsed.ErrorDescription
	}

	return e
}
