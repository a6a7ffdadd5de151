package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tanklab/tanktalk/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tanktalk.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const validConfig = `
backend:
  base_url: https://dialogue.example
  api_key: file-key
  model: reef-1
  request_timeout: 45s
  poll_interval: 2s
  max_poll_attempts: 20
store:
  driver: sqlite
  dsn: /var/lib/tanktalk/sessions.db
session:
  cleanup_interval: 1h
  retention: 720h
scheduler:
  owner_id: user-1
  group_interval: 5m
  message_interval: 4s
  max_participants: 4
  topics:
    - morning kelp
    - snail sightings
tank:
  fish:
    - id: f1
      name: Bubbles
      personality: cheerful
    - id: f2
      name: Finn
      personality: grumpy
      bio: oldest fish in the tank
`

func TestLoad(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.BaseURL != "https://dialogue.example" {
		t.Errorf("base URL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.RequestTimeout.Std() != 45*time.Second {
		t.Errorf("request timeout = %v, want 45s", cfg.Backend.RequestTimeout.Std())
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("store driver = %q", cfg.Store.Driver)
	}
	if len(cfg.Scheduler.Topics) != 2 {
		t.Errorf("topics = %v", cfg.Scheduler.Topics)
	}
	if len(cfg.Tank.Fish) != 2 || cfg.Tank.Fish[1].Bio == "" {
		t.Errorf("fish = %+v", cfg.Tank.Fish)
	}
}

func TestLoadAPIKeyFromEnv(t *testing.T) {
	path := writeConfig(t, validConfig)

	t.Setenv(config.APIKeyEnv, "env-key")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.APIKey != "env-key" {
		t.Errorf("API key = %q, want env override", cfg.Backend.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing base URL",
			content: "backend:\n  api_key: k\n",
		},
		{
			name:    "unknown store driver",
			content: "backend:\n  base_url: https://x\nstore:\n  driver: postgres\n",
		},
		{
			name:    "sqlite without dsn",
			content: "backend:\n  base_url: https://x\nstore:\n  driver: sqlite\n",
		},
		{
			name:    "fish missing name",
			content: "backend:\n  base_url: https://x\ntank:\n  fish:\n    - id: f1\n",
		},
		{
			name:    "duplicate fish id",
			content: "backend:\n  base_url: https://x\ntank:\n  fish:\n    - id: f1\n      name: A\n    - id: f1\n      name: B\n",
		},
		{
			name:    "bad duration",
			content: "backend:\n  base_url: https://x\n  request_timeout: soon\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := config.Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
