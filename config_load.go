package rbacAuth

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvSessionSecret = "RBACAUTH_ACCESS_TOKEN_SECRET"
	EnvSessionTTL    = "RBACAUTH_ACCESS_TOKEN_TTL"
	EnvFrontendURL   = "RBACAUTH_FRONTEND_URL"
	EnvEnvironment   = "RBACAUTH_ENV"
)

// LoadConfig reads a YAML file on top of DefaultConfig, applies environment
// overrides and validates the result. A missing path yields defaults plus
// environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := DecodeConfig(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := ApplyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DecodeConfig unmarshals YAML into cfg, rejecting unknown keys.
func DecodeConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parsing config YAML: %w", err)
	}
	return nil
}

// ApplyEnvOverrides copies recognised environment variables into cfg.
// Secrets belong in the environment rather than in the file.
func ApplyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvSessionSecret); ok && v != "" {
		cfg.Session.Secret = v
	}
	if v, ok := lookup(EnvSessionTTL); ok && v != "" {
		ttl, err := parseTTL(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSessionTTL, err)
		}
		cfg.Session.TTL = ttl
	}
	if v, ok := lookup(EnvFrontendURL); ok && v != "" {
		cfg.FrontendBaseURL = v
	}
	if v, ok := lookup(EnvEnvironment); ok {
		cfg.ProductionMode = strings.EqualFold(strings.TrimSpace(v), "production")
	}
	return nil
}

// parseTTL accepts Go durations and the bare day/hour shorthands common in
// token configuration ("1d", "12h").
func parseTTL(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if strings.HasSuffix(v, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(v, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", v)
	}
	return d, nil
}
