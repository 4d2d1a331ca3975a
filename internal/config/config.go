// Package config loads kinboard's YAML configuration with sane Google
// defaults and environment overrides for the secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default provider endpoints. Google is the provider the calendar
// surfaces are built for, but every endpoint can be overridden for other
// authorization-code providers.
const (
	DefaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL    = "https://oauth2.googleapis.com/token"
	DefaultUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// DefaultScopes cover identity plus read-only calendar access.
var DefaultScopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/calendar.readonly",
}

// Config is the full application configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`

	// CallbackTimeout bounds how long a sign-in waits for the browser
	// redirect.
	CallbackTimeout time.Duration `yaml:"callbackTimeout,omitempty"`
}

// ProviderConfig identifies the OAuth provider and this client.
type ProviderConfig struct {
	AuthURL      string   `yaml:"authUrl,omitempty"`
	TokenURL     string   `yaml:"tokenUrl,omitempty"`
	UserinfoURL  string   `yaml:"userinfoUrl,omitempty"`
	ClientID     string   `yaml:"clientId,omitempty"`
	ClientSecret string   `yaml:"clientSecret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// StorageConfig controls token persistence.
type StorageConfig struct {
	// Dir is the account storage directory. Empty means the default under
	// the user's home.
	Dir string `yaml:"dir,omitempty"`

	// Memory disables file persistence; accounts vanish on exit.
	Memory bool `yaml:"memory,omitempty"`
}

// ServerConfig controls the local account API.
type ServerConfig struct {
	// Addr is the listen address for `kinboard serve`.
	Addr string `yaml:"addr,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			AuthURL:     DefaultAuthURL,
			TokenURL:    DefaultTokenURL,
			UserinfoURL: DefaultUserinfoURL,
			Scopes:      append([]string(nil), DefaultScopes...),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7332",
		},
	}
}

// DefaultPath returns the default config file location,
// ~/.config/kinboard/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "kinboard", "config.yaml"), nil
}

// Load reads the config file at path, layered over the defaults. A
// missing file is not an error: the defaults plus environment overrides
// apply. After loading, KINBOARD_CLIENT_ID and KINBOARD_CLIENT_SECRET
// override the file so secrets can stay out of it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KINBOARD_CLIENT_ID"); v != "" {
		cfg.Provider.ClientID = v
	}
	if v := os.Getenv("KINBOARD_CLIENT_SECRET"); v != "" {
		cfg.Provider.ClientSecret = v
	}
}

func (c *Config) validate() error {
	if c.Provider.ClientID == "" {
		return fmt.Errorf("provider.clientId is required (or set KINBOARD_CLIENT_ID)")
	}
	if c.Provider.AuthURL == "" || c.Provider.TokenURL == "" {
		return fmt.Errorf("provider.authUrl and provider.tokenUrl are required")
	}
	if len(c.Provider.Scopes) == 0 {
		return fmt.Errorf("provider.scopes must not be empty")
	}
	return nil
}
