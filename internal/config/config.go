// Package config loads tanktalk configuration from a YAML file, with
// environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// APIKeyEnv overrides the configured backend API key.
const APIKeyEnv = "TANKTALK_API_KEY"

// Duration wraps time.Duration for YAML decoding of values like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level configuration document.
type Config struct {
	Backend   BackendConfig   `yaml:"backend"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tank      TankConfig      `yaml:"tank"`
}

// BackendConfig configures the dialogue service client.
type BackendConfig struct {
	BaseURL         string   `yaml:"base_url"`
	APIKey          string   `yaml:"api_key"`
	Model           string   `yaml:"model"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	PollInterval    Duration `yaml:"poll_interval"`
	MaxPollAttempts int      `yaml:"max_poll_attempts"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn"`
}

// SessionConfig tunes session housekeeping.
type SessionConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	Retention       Duration `yaml:"retention"`
}

// SchedulerConfig tunes the playback scheduler.
type SchedulerConfig struct {
	OwnerID           string   `yaml:"owner_id"`
	GroupInterval     Duration `yaml:"group_interval"`
	MonologueInterval Duration `yaml:"monologue_interval"`
	MessageInterval   Duration `yaml:"message_interval"`
	CheckInterval     Duration `yaml:"check_interval"`
	MaxInactive       Duration `yaml:"max_inactive"`
	MaxRun            Duration `yaml:"max_run"`
	MaxParticipants   int      `yaml:"max_participants"`
	UpgradeCooldown   Duration `yaml:"upgrade_cooldown"`
	Topics            []string `yaml:"topics"`
}

// TankConfig describes the resident fish.
type TankConfig struct {
	Fish []FishConfig `yaml:"fish"`
}

// FishConfig is one configured participant.
type FishConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Personality string `yaml:"personality"`
	Bio         string `yaml:"bio"`
}

// Load reads and validates the config file at path. The backend API key may
// come from the environment instead of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.Backend.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded document for the mistakes a missing field or
// typo'd driver would cause at runtime.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	switch c.Store.Driver {
	case "", "memory":
	case "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	seen := make(map[string]bool)
	for i, fish := range c.Tank.Fish {
		if fish.ID == "" || fish.Name == "" {
			return fmt.Errorf("tank.fish[%d] needs both id and name", i)
		}
		if seen[fish.ID] {
			return fmt.Errorf("duplicate fish id %q", fish.ID)
		}
		seen[fish.ID] = true
	}

	return nil
}
