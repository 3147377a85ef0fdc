// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. SB_AUTH_SECRET.
const EnvPrefix = "SB_"

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverPebble = "pebble"
)

// Config is the top-level Switchboard configuration, loaded from switchboard.yaml.
type Config struct {
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`
	Store  StoreConfig  `yaml:"store" envPrefix:"STORE_"`
	Auth   AuthConfig   `yaml:"auth" envPrefix:"AUTH_"`
	Limits LimitsConfig `yaml:"limits" envPrefix:"LIMITS_"`
	Notify NotifyConfig `yaml:"notify" envPrefix:"NOTIFY_"`
	Log    LogConfig    `yaml:"log" envPrefix:"LOG_"`
}

// ServerConfig holds HTTP and push-channel settings.
type ServerConfig struct {
	Port            int      `yaml:"port" env:"PORT"`
	AllowedOrigins  []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	PushBuffer      int      `yaml:"push_buffer" env:"PUSH_BUFFER"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec" env:"WRITE_TIMEOUT_SEC"`
	HeartbeatSec    int      `yaml:"heartbeat_sec" env:"HEARTBEAT_SEC"`
}

// StoreConfig selects and configures the durable thread store.
type StoreConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER"`
	Path     string `yaml:"path" env:"PATH"` // sqlite file or pebble directory
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Database string `yaml:"database" env:"DATABASE"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// AuthConfig holds operator token verification settings. Tokens are issued
// by the storefront's identity service and signed with Secret (HS256).
type AuthConfig struct {
	Secret        string   `yaml:"secret" env:"SECRET"`
	OperatorRoles []string `yaml:"operator_roles" env:"OPERATOR_ROLES" envSeparator:","`
}

// LimitsConfig bounds guest input.
type LimitsConfig struct {
	MaxTextLen int     `yaml:"max_text_len" env:"MAX_TEXT_LEN"`
	GuestRPS   float64 `yaml:"guest_rps" env:"GUEST_RPS"`
	GuestBurst int     `yaml:"guest_burst" env:"GUEST_BURST"`
}

// NotifyConfig configures operator alerts on a chat platform.
type NotifyConfig struct {
	Platform   string        `yaml:"platform" env:"PLATFORM"` // "slack", "discord", or empty
	Channel    string        `yaml:"channel" env:"CHANNEL"`
	DigestCron string        `yaml:"digest_cron" env:"DIGEST_CRON"`
	Slack      SlackConfig   `yaml:"slack" envPrefix:"SLACK_"`
	Discord    DiscordConfig `yaml:"discord" envPrefix:"DISCORD_"`
}

// SlackConfig holds Slack credentials.
type SlackConfig struct {
	BotToken string `yaml:"bot_token" env:"BOT_TOKEN"`
}

// DiscordConfig holds Discord credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token" env:"BOT_TOKEN"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // "console", "json", or empty for auto
}

// Load reads a YAML config file from path, applies SB_* environment
// overrides, and returns a validated Config. A missing file is not an error
// when the environment supplies everything required.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		data = nil
	}
	return parse(data, true)
}

// Parse unmarshals YAML bytes into a validated Config without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, false)
}

func parse(data []byte, withEnv bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if withEnv {
		if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
			return nil, fmt.Errorf("config: env: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.PushBuffer <= 0 {
		c.Server.PushBuffer = 64
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = 5
	}
	if c.Server.HeartbeatSec <= 0 {
		c.Server.HeartbeatSec = 15
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			c.Store.Path = "switchboard.db"
		}
	case DriverPebble:
		if c.Store.Path == "" {
			c.Store.Path = "switchboard-data"
		}
	case DriverMySQL:
		if c.Store.Host == "" {
			c.Store.Host = "127.0.0.1"
		}
		if c.Store.Port == 0 {
			c.Store.Port = 3306
		}
		if c.Store.User == "" {
			c.Store.User = "root"
		}
	}

	if len(c.Auth.OperatorRoles) == 0 {
		c.Auth.OperatorRoles = []string{"admin", "operator"}
	}

	if c.Limits.MaxTextLen <= 0 {
		c.Limits.MaxTextLen = 4000
	}
	if c.Limits.GuestRPS <= 0 {
		c.Limits.GuestRPS = 1
	}
	if c.Limits.GuestBurst <= 0 {
		c.Limits.GuestBurst = 5
	}

	c.Notify.Platform = strings.ToLower(strings.TrimSpace(c.Notify.Platform))

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, "auth.secret is required")
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverPebble:
	case DriverMySQL:
		if c.Store.Database == "" {
			errs = append(errs, "store.database is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	switch c.Notify.Platform {
	case "":
	case "slack":
		if c.Notify.Slack.BotToken == "" {
			errs = append(errs, "notify.slack.bot_token is required")
		}
	case "discord":
		if c.Notify.Discord.BotToken == "" {
			errs = append(errs, "notify.discord.bot_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("notify.platform %q is not supported", c.Notify.Platform))
	}
	if c.Notify.Platform != "" && c.Notify.Channel == "" {
		errs = append(errs, "notify.channel is required when notify.platform is set")
	}
	if c.Notify.DigestCron != "" {
		if _, err := cron.ParseStandard(c.Notify.DigestCron); err != nil {
			errs = append(errs, fmt.Sprintf("notify.digest_cron: %v", err))
		}
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not supported", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
