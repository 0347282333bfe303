package main

import (
	"context"
	"fmt"

	"github.com/bridgestowork/bridges-forms/internal/auth"
	"github.com/bridgestowork/bridges-forms/internal/catalog"
	"github.com/bridgestowork/bridges-forms/internal/config"
	"github.com/bridgestowork/bridges-forms/internal/identity"
	"github.com/bridgestowork/bridges-forms/internal/logger"
	"github.com/bridgestowork/bridges-forms/internal/store"
)

// loadConfig loads and validates configuration and applies the log settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	return cfg, nil
}

// app holds the components shared by the wizard and the account commands.
type app struct {
	cfg      *config.Config
	catalog  *catalog.Catalog
	store    *store.Store
	provider *identity.Provider
	gate     *auth.Gate
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	cat, err := catalog.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	provider := identity.New(cfg.Auth, st.Accounts, st.Session)
	mode := auth.SelectMode(cfg.Auth.SignInMode, identity.CanOpenBrowser())
	logger.Debug("Sign-in mode: %s", mode)

	return &app{
		cfg:      cfg,
		catalog:  cat,
		store:    st,
		provider: provider,
		gate:     auth.NewGate(provider, st.Session, cfg.AllowedDomain, cfg.Auth.Scopes, mode),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("Closing store failed: %v", err)
	}
}
