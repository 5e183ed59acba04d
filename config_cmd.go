package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tonimelisma/gmail-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config <client-id>",
		Short: "Store the OAuth client registration",
		Long: "Stores the OAuth client ID and secret from your Google Cloud Console\n" +
			"project. The secret is prompted for without echo. Required once before login.",
		Args: cobra.ExactArgs(1),
		RunE: runConfig,
	}
}

func runConfig(_ *cobra.Command, args []string) error {
	clientID := strings.TrimSpace(args[0])
	if clientID == "" {
		return fmt.Errorf("client ID must not be empty")
	}

	secret, err := promptSecret("Client secret: ")
	if err != nil {
		return err
	}

	if secret == "" {
		return fmt.Errorf("client secret must not be empty")
	}

	path := config.ResolveConfigPath(flagConfigPath)

	// Preserve any existing settings; only the auth section changes.
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}

	cfg.Auth.ClientID = clientID
	cfg.Auth.ClientSecret = secret

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	statusf("Configuration saved to %s\n", path)
	statusf("Run 'gmail-go login' to authenticate.\n")

	return nil
}

// promptSecret reads a line from the terminal without echoing it.
// Falls back to a plain buffered read when stdin is not a terminal
// (tests, pipes).
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}

		return strings.TrimSpace(string(raw)), nil
	}

	var line string
	if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}

	return strings.TrimSpace(line), nil
}
