package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gmail-go/internal/config"
	"github.com/tonimelisma/gmail-go/internal/gmail"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with Gmail in your browser",
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke and remove the saved credential",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated account",
		RunE:  runWhoami,
	}
}

func runLogin(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	if !loadedCfg.HasClientCredentials() {
		return fmt.Errorf("no OAuth client configured — run 'gmail-go config <client-id>' first")
	}

	// Bound the wait for the browser callback; the user may close the tab
	// and walk away.
	ctx, cancel := context.WithTimeout(context.Background(), loadedCfg.LoginTimeout())
	defer cancel()

	creds := gmail.Credentials{
		ClientID:     loadedCfg.Auth.ClientID,
		ClientSecret: loadedCfg.Auth.ClientSecret,
	}

	statusf("Opening your browser to sign in to Google...\n")

	_, err := gmail.Login(ctx, creds, config.TokenPath(), openBrowser, logger)
	if err != nil {
		return err
	}

	statusf("Login successful.\n")

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	if err := gmail.Logout(context.Background(), config.TokenPath(), logger); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Email         string `json:"email"`
	MessagesTotal int    `json:"messages_total"`
	ThreadsTotal  int    `json:"threads_total"`
}

func runWhoami(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	client, err := newSession(ctx)
	if err != nil {
		return err
	}

	profile, err := client.GetProfile(ctx)
	if err != nil {
		return fmt.Errorf("fetching profile: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(whoamiOutput{
			Email:         profile.EmailAddress,
			MessagesTotal: profile.MessagesTotal,
			ThreadsTotal:  profile.ThreadsTotal,
		})
	}

	fmt.Printf("Account:  %s\n", profile.EmailAddress)
	fmt.Printf("Messages: %d\n", profile.MessagesTotal)
	fmt.Printf("Threads:  %d\n", profile.ThreadsTotal)

	return nil
}

// newSession builds an authenticated Gmail client from the saved
// credential. ErrNotLoggedIn gets a friendly hint; the sentinel stays
// wrapped so main() still maps it to the auth exit code.
func newSession(ctx context.Context) (*gmail.Client, error) {
	logger := buildLogger()

	creds := gmail.Credentials{
		ClientID:     loadedCfg.Auth.ClientID,
		ClientSecret: loadedCfg.Auth.ClientSecret,
	}

	ts, err := gmail.TokenSourceFromPath(ctx, creds, config.TokenPath(), logger)
	if err != nil {
		if errors.Is(err, gmail.ErrNotLoggedIn) {
			return nil, fmt.Errorf("%w — run 'gmail-go login' first", err)
		}

		return nil, err
	}

	return gmail.NewClient(gmail.DefaultBaseURL, defaultHTTPClient(), ts, logger), nil
}
