// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for gmail-go. Precedence is
// defaults -> config file, with the config path itself overridable by
// the GMAIL_GO_CONFIG environment variable and the --config flag.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Auth    AuthConfig    `toml:"auth"`
	Logging LoggingConfig `toml:"logging"`
	Listing ListingConfig `toml:"listing"`
}

// AuthConfig holds the OAuth client registration and login behavior.
// The client ID and secret come from the user's Google Cloud Console
// project and are written by `gmail-go config`.
type AuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	// LoginTimeout bounds how long `login` waits for the browser callback.
	// Duration string, e.g. "120s" or "2m".
	LoginTimeout string `toml:"login_timeout"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// ListingConfig holds defaults for the list command.
type ListingConfig struct {
	MaxResults   int    `toml:"max_results"`
	DefaultLabel string `toml:"default_label"`
}
