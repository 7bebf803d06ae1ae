// Package config loads the leadlink YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Owner   OwnerConfig   `yaml:"owner"`
	API     APIConfig     `yaml:"api"`
	Webhook WebhookConfig `yaml:"webhook"`
	Store   StoreConfig   `yaml:"store"`
	Pairing PairingConfig `yaml:"pairing"`
}

// OwnerConfig identifies the account that owns the channel instance.
type OwnerConfig struct {
	ID          string `yaml:"id"`
	ProbeNumber string `yaml:"probe_number"` // receives the post-pairing confirmation text
}

// APIConfig holds provisioning API connection settings.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Key     string        `yaml:"key"`
	Timeout time.Duration `yaml:"timeout"`
}

// WebhookConfig configures the inbound event receiver.
type WebhookConfig struct {
	Listen    string `yaml:"listen"`     // bind address for the webhook server
	PublicURL string `yaml:"public_url"` // URL registered with the provider
	Token     string `yaml:"token"`      // shared secret on inbound deliveries
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn"` // empty = standalone file mode
	InstancesPath string `yaml:"instances_path"`
	LeadsDBPath   string `yaml:"leads_db_path"`
}

// PairingConfig tunes the connection orchestrator.
type PairingConfig struct {
	Window           time.Duration `yaml:"window"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	StuckThreshold   int           `yaml:"stuck_threshold"`
	KeepStalePending bool          `yaml:"keep_stale_pending"`
}

// DataDir returns the default data directory (~/.leadlink).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".leadlink"
	}
	return filepath.Join(home, ".leadlink")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// Default returns the built-in defaults.
func Default() *Config {
	dataDir := DataDir()
	return &Config{
		API: APIConfig{
			Timeout: 15 * time.Second,
		},
		Webhook: WebhookConfig{
			Listen: "127.0.0.1:8744",
		},
		Store: StoreConfig{
			InstancesPath: filepath.Join(dataDir, "data", "instances.json"),
			LeadsDBPath:   filepath.Join(dataDir, "data", "leads.db"),
		},
		Pairing: PairingConfig{
			Window:         120 * time.Second,
			PollInterval:   2 * time.Second,
			StuckThreshold: 15,
		},
	}
}

// Load reads the config file, layering it over defaults and applying
// environment overrides. A missing file is not an error: defaults plus
// environment are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through to env overrides
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv lets deployment environments inject secrets without touching
// the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LEADLINK_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("LEADLINK_API_KEY"); v != "" {
		cfg.API.Key = v
	}
	if v := os.Getenv("LEADLINK_POSTGRES_DSN"); v != "" {
		cfg.Store.PostgresDSN = v
	}
	if v := os.Getenv("LEADLINK_WEBHOOK_TOKEN"); v != "" {
		cfg.Webhook.Token = v
	}
	if v := os.Getenv("LEADLINK_OWNER_ID"); v != "" {
		cfg.Owner.ID = v
	}
}

// Validate checks the settings required to talk to the provisioning API.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required (or LEADLINK_API_URL)")
	}
	if c.Owner.ID == "" {
		return fmt.Errorf("owner.id is required (or LEADLINK_OWNER_ID)")
	}
	return nil
}
