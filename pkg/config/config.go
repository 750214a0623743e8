// Package config holds the nostr-backup configuration: JSON file defaults
// overlaid with NOSTR_BACKUP_* environment variables. CLI flags override
// both.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// SOCKSConfig locates the SOCKS5 proxy used for .onion relays.
type SOCKSConfig struct {
	Host            string `json:"host" env:"NOSTR_BACKUP_SOCKS_HOST"`
	Port            int    `json:"port" env:"NOSTR_BACKUP_SOCKS_PORT"`
	ProbeTimeoutSec int    `json:"probe_timeout_sec" env:"NOSTR_BACKUP_SOCKS_PROBE_TIMEOUT"`
}

// ProbeTimeout returns the probe bound as a duration.
func (s SOCKSConfig) ProbeTimeout() time.Duration {
	return time.Duration(s.ProbeTimeoutSec) * time.Second
}

type Config struct {
	TargetRelay       string      `json:"target_relay,omitempty" env:"NOSTR_BACKUP_TARGET"`
	SourceRelays      []string    `json:"source_relays,omitempty" env:"NOSTR_BACKUP_SOURCES" envSeparator:","`
	Kinds             []int       `json:"kinds" env:"NOSTR_BACKUP_KINDS" envSeparator:","`
	BatchSize         int         `json:"batch_size" env:"NOSTR_BACKUP_BATCH_SIZE"`
	BatchDelayMS      int         `json:"batch_delay_ms" env:"NOSTR_BACKUP_BATCH_DELAY_MS"`
	PublishTimeoutSec int         `json:"publish_timeout_sec" env:"NOSTR_BACKUP_PUBLISH_TIMEOUT"`
	QueryTimeoutSec   int         `json:"query_timeout_sec" env:"NOSTR_BACKUP_QUERY_TIMEOUT"`
	OnionTimeoutSec   int         `json:"onion_timeout_sec" env:"NOSTR_BACKUP_ONION_TIMEOUT"`
	SOCKS             SOCKSConfig `json:"socks"`
}

// Duration accessors; the JSON/env fields stay plain integers so the config
// file needs no custom unmarshaling.

func (c *Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}

func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutSec) * time.Second
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

func (c *Config) OnionTimeout() time.Duration {
	return time.Duration(c.OnionTimeoutSec) * time.Second
}

// DefaultConfig returns the built-in defaults: batches of 10 with a one
// second pause, 8s per-publish bound, kinds 0/1/3 (profile, notes,
// contacts), and Tor's standard SOCKS port.
func DefaultConfig() *Config {
	return &Config{
		Kinds:             []int{0, 1, 3},
		BatchSize:         10,
		BatchDelayMS:      1000,
		PublishTimeoutSec: 8,
		QueryTimeoutSec:   30,
		OnionTimeoutSec:   15,
		SOCKS: SOCKSConfig{
			Host:            "127.0.0.1",
			Port:            9050,
			ProbeTimeoutSec: 5,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".nostr-backup", "config.json")
}

// LoadConfig reads the JSON file at path (missing file is fine, defaults
// apply) and overlays NOSTR_BACKUP_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as indented JSON, creating the directory if needed.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
