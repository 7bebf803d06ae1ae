package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Webhook.Listen != "127.0.0.1:8744" {
		t.Errorf("listen = %q", cfg.Webhook.Listen)
	}
	if cfg.Pairing.Window != 120*time.Second {
		t.Errorf("pairing window = %v", cfg.Pairing.Window)
	}
	if cfg.Pairing.PollInterval != 2*time.Second {
		t.Errorf("poll interval = %v", cfg.Pairing.PollInterval)
	}
	if cfg.Pairing.StuckThreshold != 15 {
		t.Errorf("stuck threshold = %d", cfg.Pairing.StuckThreshold)
	}
	if cfg.Store.InstancesPath == "" || cfg.Store.LeadsDBPath == "" {
		t.Error("store paths must default")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file is not an error: %v", err)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Errorf("timeout = %v", cfg.API.Timeout)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
owner:
  id: owner-42
  probe_number: "5511999990000"
api:
  base_url: https://wapi.example
  key: secret-key
webhook:
  listen: 0.0.0.0:9000
  token: hook-secret
pairing:
  window: 90s
  keep_stale_pending: true
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Owner.ID != "owner-42" {
		t.Errorf("owner id = %q", cfg.Owner.ID)
	}
	if cfg.API.BaseURL != "https://wapi.example" || cfg.API.Key != "secret-key" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Webhook.Listen != "0.0.0.0:9000" {
		t.Errorf("listen = %q", cfg.Webhook.Listen)
	}
	if cfg.Pairing.Window != 90*time.Second {
		t.Errorf("window = %v", cfg.Pairing.Window)
	}
	if !cfg.Pairing.KeepStalePending {
		t.Error("keep_stale_pending not applied")
	}
	// Untouched keys keep their defaults.
	if cfg.Pairing.PollInterval != 2*time.Second {
		t.Errorf("poll interval = %v", cfg.Pairing.PollInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEADLINK_API_URL", "https://env.example")
	t.Setenv("LEADLINK_API_KEY", "env-key")
	t.Setenv("LEADLINK_OWNER_ID", "env-owner")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "https://env.example" || cfg.API.Key != "env-key" {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.Owner.ID != "env-owner" {
		t.Errorf("owner id = %q", cfg.Owner.ID)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("owner: [not a map"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("empty base URL must fail validation")
	}

	cfg.API.BaseURL = "https://wapi.example"
	if err := cfg.Validate(); err == nil {
		t.Error("empty owner must fail validation")
	}

	cfg.Owner.ID = "owner-1"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
