package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinboard/internal/account"
	"kinboard/internal/oauth"
)

type fakeService struct {
	accounts  []*account.Account
	loginErr  error
	loginAcct *account.Account
	tokenErr  error
	token     string

	loggedOut     []string
	savedMetadata map[string]map[string]string
	lastHint      string
}

func (f *fakeService) ListAccounts() []*account.Account { return f.accounts }

func (f *fakeService) StartAuthentication(ctx context.Context, loginHint string) (*account.Account, error) {
	f.lastHint = loginHint
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginAcct, nil
}

func (f *fakeService) Logout(accountID string) error {
	f.loggedOut = append(f.loggedOut, accountID)
	return nil
}

func (f *fakeService) GetValidAccessToken(ctx context.Context, accountID string) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return f.token, nil
}

func (f *fakeService) SaveAccountMetadata(accountID string, metadata map[string]string) error {
	if f.savedMetadata == nil {
		f.savedMetadata = make(map[string]map[string]string)
	}
	f.savedMetadata[accountID] = metadata
	return nil
}

func doRequest(t *testing.T, svc AccountService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	New(svc).ServeHTTP(rec, req)
	return rec
}

func TestServer_ListAccounts(t *testing.T) {
	svc := &fakeService{accounts: []*account.Account{
		{ID: "sub-1", Email: "a@example.com", TokenValid: true},
		{ID: "sub-2", Email: "b@example.com", NeedsReauth: true},
	}}

	rec := doRequest(t, svc, http.MethodGet, "/api/accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Accounts []*account.Account `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Accounts, 2)
	assert.Equal(t, "sub-1", resp.Accounts[0].ID)
	assert.True(t, resp.Accounts[1].NeedsReauth)
}

func TestServer_ListNeverLeaksTokenMaterial(t *testing.T) {
	svc := &fakeService{accounts: []*account.Account{
		{ID: "sub-1", Email: "a@example.com", TokenValid: true},
	}}

	rec := doRequest(t, svc, http.MethodGet, "/api/accounts", "")
	body := rec.Body.String()

	// The account view carries no token fields at all; a response that
	// mentions them means the boundary leaked.
	assert.NotContains(t, body, "refresh_token")
	assert.NotContains(t, body, "access_token")
	assert.NotContains(t, body, "id_token")
	assert.NotContains(t, body, "verifier")
}

func TestServer_Login(t *testing.T) {
	svc := &fakeService{loginAcct: &account.Account{ID: "sub-new", Email: "new@example.com"}}

	rec := doRequest(t, svc, http.MethodPost, "/api/accounts/login", `{"login_hint":"new@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new@example.com", svc.lastHint)

	var acct account.Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acct))
	assert.Equal(t, "sub-new", acct.ID)
}

func TestServer_LoginErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"denied", &oauth.DeniedError{Code: "access_denied"}, http.StatusForbidden},
		{"cancelled", oauth.ErrAuthCancelled, http.StatusConflict},
		{"timed out", oauth.ErrAuthTimedOut, http.StatusGatewayTimeout},
		{"state mismatch", account.ErrStateMismatch, http.StatusForbidden},
		{"exchange failed", &oauth.ExchangeError{StatusCode: 400, Body: "bad"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{loginErr: tt.err}
			rec := doRequest(t, svc, http.MethodPost, "/api/accounts/login", "")
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestServer_Logout(t *testing.T) {
	svc := &fakeService{}

	rec := doRequest(t, svc, http.MethodDelete, "/api/accounts/sub-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"sub-1"}, svc.loggedOut)
}

func TestServer_Token(t *testing.T) {
	svc := &fakeService{token: "at-123"}

	rec := doRequest(t, svc, http.MethodGet, "/api/accounts/sub-1/token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "at-123", resp["access_token"])
	assert.Equal(t, "Bearer", resp["token_type"])
}

func TestServer_TokenErrors(t *testing.T) {
	rec := doRequest(t, &fakeService{tokenErr: account.ErrUnknownAccount},
		http.MethodGet, "/api/accounts/nobody/token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, &fakeService{tokenErr: account.ErrReauthRequired},
		http.MethodGet, "/api/accounts/stale/token", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_Metadata(t *testing.T) {
	svc := &fakeService{}

	rec := doRequest(t, svc, http.MethodPut, "/api/accounts/sub-1/metadata", `{"nickname":"Work"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, map[string]string{"nickname": "Work"}, svc.savedMetadata["sub-1"])

	rec = doRequest(t, svc, http.MethodPut, "/api/accounts/sub-1/metadata", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	rec := doRequest(t, &fakeService{}, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
