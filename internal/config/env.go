package config

import "os"

// EnvConfig overrides the config file path.
const EnvConfig = "GMAIL_GO_CONFIG"

// ResolveConfigPath applies the precedence chain for the config file
// path: --config flag > GMAIL_GO_CONFIG > platform default.
func ResolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}

	return DefaultConfigPath()
}
