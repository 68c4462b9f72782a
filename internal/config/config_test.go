package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("LIVEQUIZ_TOKEN", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:9999" || cfg.Server.Port != "8080" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverlaysFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
api:
  base_url: https://quiz.example.com
  token: from-file
  timeout: 3s
redis:
  addr: localhost:6379
relay:
  jwt_secret: s3cret
cache:
  ttl: 1m
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("LIVEQUIZ_TOKEN", "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "https://quiz.example.com" || cfg.API.Token != "from-file" {
		t.Fatalf("file values not applied: %+v", cfg.API)
	}
	if cfg.Relay.URL != "ws://localhost:8080/ws" {
		t.Fatalf("expected default relay url kept, got %q", cfg.Relay.URL)
	}
	if got := TTLDuration(cfg.Cache.TTL, time.Hour); got != time.Minute {
		t.Fatalf("cache ttl %v", got)
	}

	t.Setenv("LIVEQUIZ_TOKEN", "from-env")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Token != "from-env" {
		t.Fatalf("expected env token, got %q", cfg.API.Token)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected yaml error")
	}
}

func TestTTLDuration(t *testing.T) {
	if got := TTLDuration("", time.Second); got != time.Second {
		t.Fatalf("empty: %v", got)
	}
	if got := TTLDuration("bogus", time.Second); got != time.Second {
		t.Fatalf("bogus: %v", got)
	}
	if got := TTLDuration("90s", time.Second); got != 90*time.Second {
		t.Fatalf("90s: %v", got)
	}
}
