package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	rbacAuth "github.com/MrEthical07/rbacAuth"
	"github.com/MrEthical07/rbacAuth/api"
	"github.com/MrEthical07/rbacAuth/internal/logging"
	"github.com/MrEthical07/rbacAuth/notify"
	"github.com/MrEthical07/rbacAuth/store/sqlstore"
	"gopkg.in/yaml.v3"
)

// Environment variables for deployment secrets and endpoints. Engine
// settings are overridden by rbacAuth.ApplyEnvOverrides.
const (
	envListenAddr   = "RBACAUTH_LISTEN_ADDR"
	envDatabaseDSN  = "RBACAUTH_DATABASE_DSN"
	envRedisAddr    = "RBACAUTH_REDIS_ADDR"
	envRedisPass    = "RBACAUTH_REDIS_PASSWORD"
	envSMTPPassword = "RBACAUTH_SMTP_PASSWORD"
	envSeedEmail    = "RBACAUTH_SEED_EMAIL"
	envSeedPassword = "RBACAUTH_SEED_PASSWORD"
	envLogLevel     = "RBACAUTH_LOG_LEVEL"
)

// Config is the complete server configuration file.
type Config struct {
	Server   api.Config        `yaml:"server"`
	Database sqlstore.Config   `yaml:"database"`
	Redis    RedisConfig       `yaml:"redis"`
	SMTP     notify.SMTPConfig `yaml:"smtp"`
	Notices  NoticesConfig     `yaml:"notices"`
	Logging  logging.Config    `yaml:"logging"`
	Seed     SeedConfig        `yaml:"seed"`
	Auth     rbacAuth.Config   `yaml:"auth"`
}

// RedisConfig enables the failed-login limiter and the Redis notice queue.
// An empty Addr disables both.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NoticesConfig selects the transport for best-effort notices.
type NoticesConfig struct {
	// Backend is "memory" (in-process dispatcher) or "redis".
	Backend string `yaml:"backend"`
	Key     string `yaml:"key"`
}

// SeedConfig describes the bootstrap superadmin. The password is taken
// from the environment only.
type SeedConfig struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name"`
	Password    string `yaml:"-"`
}

func defaultConfig() Config {
	return Config{
		Server: api.DefaultConfig(),
		Database: sqlstore.Config{
			Dialect:         sqlstore.DialectSQLite,
			DSN:             "file:rbacauth.db?_foreign_keys=on&_busy_timeout=5000",
			MaxOpenConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		SMTP:    notify.SMTPConfig{Port: 587},
		Notices: NoticesConfig{Backend: "memory", Key: "rbacauth:notify"},
		Logging: logging.Config{Level: "info", Format: "json", Output: "stdout"},
		Seed:    SeedConfig{DisplayName: "Administrator"},
		Auth:    rbacAuth.DefaultConfig(),
	}
}

// loadConfig reads path (optional) over the defaults, applies environment
// overrides and validates the result.
func loadConfig(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg, lookup)
	if err := rbacAuth.ApplyEnvOverrides(&cfg.Auth, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(envListenAddr, &cfg.Server.Addr)
	set(envDatabaseDSN, &cfg.Database.DSN)
	set(envRedisAddr, &cfg.Redis.Addr)
	set(envRedisPass, &cfg.Redis.Password)
	set(envSMTPPassword, &cfg.SMTP.Password)
	set(envSeedEmail, &cfg.Seed.Email)
	set(envSeedPassword, &cfg.Seed.Password)
	set(envLogLevel, &cfg.Logging.Level)
}

func (c *Config) validate() error {
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	switch strings.ToLower(c.Notices.Backend) {
	case "", "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("notices: redis backend requires redis.addr")
		}
	default:
		return fmt.Errorf("notices: unknown backend %q", c.Notices.Backend)
	}
	if c.Auth.Lockout.Enabled && c.Redis.Addr == "" {
		return errors.New("auth.lockout requires redis.addr")
	}
	if c.Auth.ProductionMode && c.SMTP.Host == "" {
		return errors.New("smtp.host is required in production")
	}
	if (c.Seed.Email == "") != (c.Seed.Password == "") {
		return fmt.Errorf("seed requires both %s and %s", envSeedEmail, envSeedPassword)
	}
	return nil
}
