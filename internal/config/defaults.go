package config

// Default values for configuration options. These work for most users
// without any config file, except the OAuth client credentials which
// must be set via `gmail-go config` before login.
const (
	defaultLoginTimeout = "120s"
	defaultLogLevel     = "info"
	defaultMaxResults   = 10
)

// DefaultConfig returns a Config populated with all default values.
// Used both as the starting point for TOML decoding (so unset fields
// retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			LoginTimeout: defaultLoginTimeout,
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
		},
		Listing: ListingConfig{
			MaxResults: defaultMaxResults,
		},
	}
}
