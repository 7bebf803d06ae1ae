package cmd

import (
	"fmt"
	"os"

	"github.com/casahub/leadlink/internal/config"
	"github.com/casahub/leadlink/internal/connection"
	"github.com/casahub/leadlink/internal/store"
	"github.com/casahub/leadlink/internal/store/file"
	"github.com/casahub/leadlink/internal/store/pg"
	"github.com/casahub/leadlink/internal/wapi"
)

func resolveConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	return config.DefaultPath()
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// openInstanceStore selects the persistence backend: Postgres when a DSN
// is configured, the JSON file store otherwise.
func openInstanceStore(cfg *config.Config) (store.InstanceStore, error) {
	if cfg.Store.PostgresDSN == "" {
		return file.NewInstanceStore(cfg.Store.InstancesPath), nil
	}

	db, err := pg.OpenDB(cfg.Store.PostgresDSN)
	if err != nil {
		return nil, err
	}
	pgStore := pg.NewPGInstanceStore(db)
	if err := pgStore.EnsureSchema(); err != nil {
		return nil, err
	}
	return pgStore, nil
}

func newClient(cfg *config.Config) (*wapi.HTTPClient, error) {
	return wapi.NewHTTPClient(wapi.Config{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.Key,
		Timeout: cfg.API.Timeout,
	})
}

func newService(cfg *config.Config, client wapi.Client, stor store.InstanceStore, events connection.Events) *connection.Service {
	return connection.NewService(connection.Config{
		OwnerID:          cfg.Owner.ID,
		WebhookURL:       cfg.Webhook.PublicURL,
		ProbeNumber:      cfg.Owner.ProbeNumber,
		PairWindow:       cfg.Pairing.Window,
		PollInterval:     cfg.Pairing.PollInterval,
		StuckThreshold:   cfg.Pairing.StuckThreshold,
		KeepStalePending: cfg.Pairing.KeepStalePending,
	}, client, stor, events)
}
