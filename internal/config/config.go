// Package config loads and validates the bot configuration.
//
// Config comes from a YAML file; a couple of secrets (bot token, database
// DSN) may also arrive via environment variables, which take precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

const (
	EnvToken       = "STAGEBOT_TOKEN"
	EnvDatabaseURL = "STAGEBOT_DATABASE_URL"
)

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Storage   StorageConfig   `yaml:"storage"`
	Publish   PublishConfig   `yaml:"publish"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Digest    DigestConfig    `yaml:"digest"`
	Log       LogConfig       `yaml:"log"`

	// AdminIDs may use the broadcast and report commands.
	AdminIDs []int64 `yaml:"admin_ids"`
}

type TelegramConfig struct {
	Token       string   `yaml:"token"`
	PollTimeout Duration `yaml:"poll_timeout"`
}

type StorageConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	// DSN is the postgres connection string.
	DSN string `yaml:"dsn"`
	// Path is the sqlite database file.
	Path        string   `yaml:"path"`
	BusyTimeout Duration `yaml:"busy_timeout"`
}

type PublishConfig struct {
	// CooldownMin is the minimum spacing between two publications for one
	// user; CooldownMax bounds the randomized re-arm delay.
	CooldownMin Duration `yaml:"cooldown_min"`
	CooldownMax Duration `yaml:"cooldown_max"`
}

type BroadcastConfig struct {
	RatePerSec int `yaml:"rate_per_sec"`
}

type DigestConfig struct {
	Enabled bool `yaml:"enabled"`
	// Spec is a cron expression; defaults to 09:00 daily.
	Spec string `yaml:"spec"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Load reads, decodes and validates the config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw YAML, applies env overrides and defaults, and validates.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(os.Getenv(EnvToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Storage.DSN = v
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.PollTimeout.D <= 0 {
		c.Telegram.PollTimeout.D = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Publish.CooldownMin.D <= 0 {
		c.Publish.CooldownMin.D = 30 * time.Minute
	}
	if c.Publish.CooldownMax.D <= 0 {
		c.Publish.CooldownMax.D = 60 * time.Minute
	}
	if c.Broadcast.RatePerSec <= 0 {
		c.Broadcast.RatePerSec = 25
	}
	if c.Digest.Spec == "" {
		c.Digest.Spec = "0 9 * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required (or " + EnvToken + ")")
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return errors.New("storage.dsn is required for the postgres driver (or " + EnvDatabaseURL + ")")
		}
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Publish.CooldownMax.D < c.Publish.CooldownMin.D {
		return errors.New("publish.cooldown_max must be >= publish.cooldown_min")
	}
	return nil
}

// IsAdmin reports whether id is in the configured admin list.
func (c *Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}
