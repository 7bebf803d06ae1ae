package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("webhook:\n  token: before\n"), 0600); err != nil {
		t.Fatal(err)
	}

	got := make(chan *Config, 4)
	stop, err := Watch(path, func(c *Config) { got <- c })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte("webhook:\n  token: after\n"), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if cfg.Webhook.Token != "after" {
			t.Errorf("token = %q, want after", cfg.Webhook.Token)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}
}

func TestWatch_MissingFile(t *testing.T) {
	if _, err := Watch(filepath.Join(t.TempDir(), "nope.yaml"), func(*Config) {}); err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}
