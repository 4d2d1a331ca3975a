package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_DefaultsWithEnvClientID(t *testing.T) {
	t.Setenv("KINBOARD_CLIENT_ID", "env-client")
	t.Setenv("KINBOARD_CLIENT_SECRET", "env-secret")

	// Point at a file that does not exist; defaults apply.
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.Provider.ClientID)
	assert.Equal(t, "env-secret", cfg.Provider.ClientSecret)
	assert.Equal(t, DefaultAuthURL, cfg.Provider.AuthURL)
	assert.Equal(t, DefaultTokenURL, cfg.Provider.TokenURL)
	assert.Equal(t, DefaultScopes, cfg.Provider.Scopes)
	assert.Equal(t, "127.0.0.1:7332", cfg.Server.Addr)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  clientId: file-client
  authUrl: https://auth.example.com/authorize
  tokenUrl: https://auth.example.com/token
  scopes:
    - openid
storage:
  dir: /tmp/kinboard-test-accounts
server:
  addr: 127.0.0.1:9000
callbackTimeout: 45s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-client", cfg.Provider.ClientID)
	assert.Equal(t, "https://auth.example.com/authorize", cfg.Provider.AuthURL)
	assert.Equal(t, []string{"openid"}, cfg.Provider.Scopes)
	assert.Equal(t, "/tmp/kinboard-test-accounts", cfg.Storage.Dir)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 45*time.Second, cfg.CallbackTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("KINBOARD_CLIENT_ID", "env-wins")

	path := writeConfig(t, `
provider:
  clientId: file-client
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-wins", cfg.Provider.ClientID)
}

func TestLoad_MissingClientIDFails(t *testing.T) {
	t.Setenv("KINBOARD_CLIENT_ID", "")
	t.Setenv("KINBOARD_CLIENT_SECRET", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clientId")
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := writeConfig(t, "provider: [not: a map")

	_, err := Load(path)
	assert.Error(t, err)
}
