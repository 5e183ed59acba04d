package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns
// the resulting Config. Unknown keys are fatal errors with "did you
// mean?" suggestions — silently ignoring a typo in a config file leads
// to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. Supports the zero-config
// first-run experience: every command except login works without a file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Validate checks field values that TOML decoding alone cannot.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.Logging.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log_level %q (want debug, info, warn, or error)", cfg.Logging.LogLevel))
	}

	if _, err := time.ParseDuration(cfg.Auth.LoginTimeout); err != nil {
		errs = append(errs, fmt.Errorf("invalid login_timeout %q: %w", cfg.Auth.LoginTimeout, err))
	}

	if cfg.Listing.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("max_results must be positive, got %d", cfg.Listing.MaxResults))
	}

	return errors.Join(errs...)
}

// LoginTimeout returns the parsed login timeout. Call after Validate.
func (c *Config) LoginTimeout() time.Duration {
	d, err := time.ParseDuration(c.Auth.LoginTimeout)
	if err != nil {
		d, _ = time.ParseDuration(defaultLoginTimeout)
	}

	return d
}

// HasClientCredentials reports whether the OAuth client registration is
// present. Login requires it; `gmail-go config` sets it.
func (c *Config) HasClientCredentials() bool {
	return c.Auth.ClientID != "" && c.Auth.ClientSecret != ""
}
