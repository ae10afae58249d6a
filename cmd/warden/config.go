// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/logging"
	"github.com/holomush/warden/internal/token"
	"github.com/holomush/warden/internal/xdg"
)

// envPrefix prefixes every environment override; "__" separates levels,
// so WARDEN_DATABASE__AUTO_MIGRATE sets database.auto_migrate.
const envPrefix = "WARDEN_"

// Cache backends.
const (
	backendRedis  = "redis"
	backendMemory = "memory"
)

const redacted = "[REDACTED]"

// Config is the effective configuration of every command.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
	Token    TokenConfig    `koanf:"token" yaml:"token"`
	Session  SessionConfig  `koanf:"session" yaml:"session"`
	Cache    CacheConfig    `koanf:"cache" yaml:"cache"`
	Redis    RedisConfig    `koanf:"redis" yaml:"redis"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// MetricsConfig configures the observability listener. An empty address disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// TokenConfig configures bearer token signing.
type TokenConfig struct {
	Key      string        `koanf:"key" yaml:"key"`
	Issuer   string        `koanf:"issuer" yaml:"issuer"`
	Audience string        `koanf:"audience" yaml:"audience"`
	TTL      time.Duration `koanf:"ttl" yaml:"ttl"`
}

// SessionConfig configures the session manager.
type SessionConfig struct {
	TTL     time.Duration `koanf:"ttl" yaml:"ttl"`
	Channel string        `koanf:"channel" yaml:"channel"`
}

// CacheConfig selects the session cache and broadcaster backend.
type CacheConfig struct {
	Backend string `koanf:"backend" yaml:"backend"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr         string `koanf:"addr" yaml:"addr"`
	Password     string `koanf:"password" yaml:"password"`
	DB           int    `koanf:"db" yaml:"db"`
	PingAttempts int    `koanf:"ping_attempts" yaml:"ping_attempts"`
}

// DatabaseConfig configures the user directory. An empty URL selects the
// in-memory directory.
type DatabaseConfig struct {
	URL         string `koanf:"url" yaml:"url"`
	AutoMigrate bool   `koanf:"auto_migrate" yaml:"auto_migrate"`
	MaxConns    int32  `koanf:"max_conns" yaml:"max_conns"`
}

var defaults = map[string]any{
	"http.addr":             ":8080",
	"metrics.addr":          "127.0.0.1:9100",
	"log.format":            "json",
	"log.level":             "info",
	"token.issuer":          token.DefaultIssuer,
	"token.audience":        token.DefaultAudience,
	"token.ttl":             token.DefaultTTL,
	"session.ttl":           auth.DefaultSessionTTL,
	"session.channel":       auth.DefaultSyncChannel,
	"cache.backend":         backendRedis,
	"redis.addr":            "localhost:6379",
	"redis.db":              0,
	"redis.ping_attempts":   5,
	"database.auto_migrate": true,
	"database.max_conns":    10,
}

// flagKeys maps command flags onto configuration keys.
var flagKeys = map[string]string{
	"http-addr":     "http.addr",
	"metrics-addr":  "metrics.addr",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"cache-backend": "cache.backend",
	"redis-addr":    "redis.addr",
	"database-url":  "database.url",
}

// loadConfig layers defaults, the YAML file at path, WARDEN_ environment
// variables and explicitly set flags, in that order.
func loadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return &cfg, nil
}

// envKey turns WARDEN_REDIS__PING_ATTEMPTS into redis.ping_attempts.
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, envPrefix))
	return strings.ReplaceAll(name, "__", ".")
}

// configFromCommand loads the configuration named by the persistent
// --config flag, letting cmd's own flags override it. Without --config it
// falls back to $XDG_CONFIG_HOME/warden/config.yaml when that file exists.
func configFromCommand(cmd *cobra.Command) (*Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path = ""
	}
	if path == "" {
		path, err = defaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	return loadConfig(path, cmd.Flags())
}

func defaultConfigPath() (string, error) {
	path, found, err := xdg.ExistingConfigFile()
	if err != nil {
		return "", oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}
	if !found {
		return "", nil
	}
	return path, nil
}

func invalid(field, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "log.level %q is not a level", c.Log.Level)
	}
	switch c.Cache.Backend {
	case backendRedis:
		if c.Redis.Addr == "" {
			return invalid("redis.addr", "redis.addr is required for the redis backend")
		}
	case backendMemory:
	default:
		return invalid("cache.backend", "cache.backend must be 'redis' or 'memory', got %q", c.Cache.Backend)
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl", "session.ttl must be positive")
	}
	if c.Token.TTL <= 0 {
		return invalid("token.ttl", "token.ttl must be positive")
	}
	if c.Session.Channel == "" {
		return invalid("session.channel", "session.channel is required")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	return nil
}

// ValidateServe additionally requires a usable signing key.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Token.Key) < token.MinKeyLength {
		return invalid("token.key", "token.key must be at least %d bytes", token.MinKeyLength)
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.Token.Key != "" {
		out.Token.Key = redacted
	}
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}
	out.Database.URL = redactURL(out.Database.URL)
	return out
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), redacted)
	}
	return u.String()
}

// YAML renders the redacted configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yamlv3.Marshal(c.Redacted())
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return data, nil
}

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file and WARDEN_
environment variables are applied. Secrets are redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			cmd.Print(string(data))
			return nil
		},
	}
}
