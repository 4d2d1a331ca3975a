package oauth

import (
	"errors"
	"strings"
	"testing"
)

func TestBindError_Unwrap(t *testing.T) {
	cause := errors.New("address already in use")
	err := &BindError{Addr: "127.0.0.1:0", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("BindError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "127.0.0.1:0") {
		t.Errorf("BindError message missing address: %s", err.Error())
	}
}

func TestNewExchangeError_ParsesOAuthFields(t *testing.T) {
	err := newExchangeError(400, []byte(`{"error":"invalid_request","error_description":"missing code"}`))

	if err.Code != "invalid_request" {
		t.Errorf("Code = %q", err.Code)
	}
	if err.Description != "missing code" {
		t.Errorf("Description = %q", err.Description)
	}
	if !strings.Contains(err.Error(), "invalid_request") {
		t.Errorf("message missing error code: %s", err.Error())
	}
}

func TestNewExchangeError_NonJSONBody(t *testing.T) {
	err := newExchangeError(502, []byte("<html>bad gateway</html>"))

	if err.Code != "" {
		t.Errorf("Code = %q, want empty for non-JSON body", err.Code)
	}
	if !strings.Contains(err.Error(), "bad gateway") {
		t.Errorf("message should carry the body verbatim: %s", err.Error())
	}
}

func TestDeniedError_Message(t *testing.T) {
	err := &DeniedError{Code: "access_denied"}
	if !strings.Contains(err.Error(), "access_denied") {
		t.Errorf("message missing code: %s", err.Error())
	}

	withDesc := &DeniedError{Code: "access_denied", Description: "user declined"}
	if !strings.Contains(withDesc.Error(), "user declined") {
		t.Errorf("message missing description: %s", withDesc.Error())
	}
}
