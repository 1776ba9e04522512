// Package config provides YAML-based configuration loading for the
// transcription service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration, loaded from at.yaml.
type Config struct {
	DataDir string       `yaml:"data_dir"`
	Port    int          `yaml:"port"`
	Vendor  VendorConfig `yaml:"vendor"`
	Poll    PollConfig   `yaml:"poll"`
	Limits  LimitsConfig `yaml:"limits"`
	Notify  NotifyConfig `yaml:"notify"`
}

// VendorConfig holds credentials and options for the transcription vendor.
type VendorConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	LanguageCode string `yaml:"language_code"`
}

// PollConfig controls the lifecycle manager's polling loop.
type PollConfig struct {
	Interval     time.Duration `yaml:"interval"`
	MaxInterval  time.Duration `yaml:"max_interval"`
	BackoffEvery time.Duration `yaml:"backoff_every"`
	MaxDuration  time.Duration `yaml:"max_duration"`
}

// LimitsConfig bounds what the ingest endpoint accepts.
type LimitsConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MinFreeBytes   int64 `yaml:"min_free_bytes"`
}

// NotifyConfig enables optional chat notifications on job completion.
type NotifyConfig struct {
	SlackBotToken    string `yaml:"slack_bot_token"`
	SlackChannelID   string `yaml:"slack_channel_id"`
	DiscordBotToken  string `yaml:"discord_bot_token"`
	DiscordChannelID string `yaml:"discord_channel_id"`
}

// DBPath returns the location of the SQLite metadata database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "transcriptions.db")
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.Vendor.APIKey == "" {
		c.Vendor.APIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 5 * time.Second
	}
	if c.Poll.MaxInterval == 0 {
		c.Poll.MaxInterval = 15 * time.Second
	}
	if c.Poll.BackoffEvery == 0 {
		c.Poll.BackoffEvery = 30 * time.Minute
	}
	if c.Poll.MaxDuration == 0 {
		c.Poll.MaxDuration = 4 * time.Hour
	}
	if c.Limits.MaxUploadBytes == 0 {
		c.Limits.MaxUploadBytes = 100 * 1024 * 1024
	}
	if c.Limits.MinFreeBytes == 0 {
		c.Limits.MinFreeBytes = 500 * 1024 * 1024
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Vendor.APIKey == "" {
		errs = append(errs, "vendor.api_key is required (or set ASSEMBLYAI_API_KEY)")
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d out of range", c.Port))
	}
	if c.Poll.Interval < 0 || c.Poll.MaxInterval < 0 || c.Poll.MaxDuration < 0 {
		errs = append(errs, "poll intervals must not be negative")
	}
	if c.Poll.MaxInterval < c.Poll.Interval {
		errs = append(errs, "poll.max_interval must be >= poll.interval")
	}
	if c.Notify.SlackBotToken != "" && c.Notify.SlackChannelID == "" {
		errs = append(errs, "notify.slack_channel_id is required with notify.slack_bot_token")
	}
	if c.Notify.DiscordBotToken != "" && c.Notify.DiscordChannelID == "" {
		errs = append(errs, "notify.discord_channel_id is required with notify.discord_bot_token")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
