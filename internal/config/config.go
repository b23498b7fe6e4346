// Package config provides YAML-based configuration loading for typeset.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level typeset configuration, loaded from typeset.yaml.
type Config struct {
	APIURL            string         `yaml:"api_url"`
	CDNURL            string         `yaml:"cdn_url"`
	CDNBucket         string         `yaml:"cdn_bucket"`
	PreconvertBucket  string         `yaml:"preconvert_bucket"`
	PreconvertURL     string         `yaml:"preconvert_url"`
	GitURL            string         `yaml:"git_url"`
	WebhookToken      string         `yaml:"webhook_token"`
	Port              int            `yaml:"port"`
	DataDir           string         `yaml:"data_dir"`
	WorkerTimeoutSecs int            `yaml:"worker_timeout_secs"`
	SweepSchedule     string         `yaml:"sweep_schedule"`
	Database          DatabaseConfig `yaml:"database"`
	Notify            NotifyConfig   `yaml:"notify"`
}

// DatabaseConfig holds connection settings for the job/module store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	Path     string `yaml:"path"`   // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// NotifyConfig holds chat notification settings. All fields optional;
// an empty config disables notifications.
type NotifyConfig struct {
	SlackBotToken    string `yaml:"slack_bot_token"`
	SlackChannel     string `yaml:"slack_channel"`
	DiscordBotToken  string `yaml:"discord_bot_token"`
	DiscordChannelID string `yaml:"discord_channel_id"`
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
	if c.Port == 0 {
		c.Port = 8090
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.WorkerTimeoutSecs == 0 {
		c.WorkerTimeoutSecs = 300
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = "*/10 * * * *"
	}
	if c.CDNBucket == "" {
		c.CDNBucket = "cdn"
	}
	if c.PreconvertBucket == "" {
		c.PreconvertBucket = "preconvert"
	}
	if c.CDNURL == "" && c.APIURL != "" {
		c.CDNURL = c.APIURL + "/cdn"
	}
	if c.PreconvertURL == "" && c.APIURL != "" {
		c.PreconvertURL = c.APIURL + "/preconvert"
	}
	if c.GitURL == "" {
		c.GitURL = "https://git.door43.org"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "typeset.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "typeset"
		}
	}
}

// WorkerTimeout returns the bounded wait applied to a single converter
// invocation.
func (c *Config) WorkerTimeout() time.Duration {
	return time.Duration(c.WorkerTimeoutSecs) * time.Second
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.APIURL == "" {
		errs = append(errs, "api_url is required")
	}
	if c.Database.Driver != "sqlite" && c.Database.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	if c.Database.Driver == "mysql" && c.Database.User == "" {
		errs = append(errs, "database.user is required for mysql")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
