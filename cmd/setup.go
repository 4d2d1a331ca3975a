package cmd

import (
	"kinboard/internal/account"
	"kinboard/internal/config"
	"kinboard/internal/oauth"
	"kinboard/internal/store"
	"kinboard/internal/window"
)

// appContext bundles the wired-up application for a CLI command.
type appContext struct {
	cfg      *config.Config
	store    *store.Store
	registry *account.Registry
}

// buildApp loads configuration and assembles the registry with all its
// collaborators. Every account-facing command starts here.
func buildApp() (*appContext, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	st, err := store.New(store.Config{
		Dir:      cfg.Storage.Dir,
		FileMode: !cfg.Storage.Memory,
	})
	if err != nil {
		return nil, err
	}

	registry, err := account.NewRegistry(account.Config{
		AuthURL:         cfg.Provider.AuthURL,
		ClientID:        cfg.Provider.ClientID,
		Scopes:          cfg.Provider.Scopes,
		CallbackTimeout: cfg.CallbackTimeout,
	}, account.Deps{
		Sessions:  oauth.NewSessionManager(),
		Exchange:  oauth.NewExchangeClient(oauth.ExchangeConfig{
			TokenURL:     cfg.Provider.TokenURL,
			ClientID:     cfg.Provider.ClientID,
			ClientSecret: cfg.Provider.ClientSecret,
		}),
		Identity:  oauth.NewIdentityClient(cfg.Provider.UserinfoURL, nil),
		Store:     st,
		NewWindow: func() window.Controller { return window.NewBrowserController() },
	})
	if err != nil {
		return nil, err
	}

	return &appContext{cfg: cfg, store: st, registry: registry}, nil
}

func (a *appContext) close() {
	a.registry.Close()
}
