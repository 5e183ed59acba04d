package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/tonimelisma/gmail-go/internal/gmail"
)

// Exit codes. Scripts rely on these to distinguish "log in again" from
// a transient failure.
const (
	exitError        = 1
	exitAuthRequired = 2
	exitNotFound     = 3
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch {
	case errors.Is(err, gmail.ErrNotLoggedIn), errors.Is(err, gmail.ErrReauthRequired):
		return exitAuthRequired
	case errors.Is(err, gmail.ErrNotFound):
		return exitNotFound
	default:
		return exitError
	}
}
