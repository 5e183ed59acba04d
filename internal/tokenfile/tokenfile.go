// Package tokenfile handles reading and writing the credential file.
// It is a leaf package: the session manager in internal/gmail owns the
// credential lifecycle, this package owns its on-disk representation.
// All access goes through an exclusive flock so two concurrent CLI
// invocations cannot interleave a read-modify-write on the store.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts the credential file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credential directory.
const DirPerms = 0o700

// File is the on-disk format for the credential file. The token is
// nested under a "token" key so the format can grow fields without
// colliding with oauth2.Token's own JSON keys.
type File struct {
	Token *oauth2.Token `json:"token"`
}

// Load reads the saved credential from disk. Returns (nil, nil) if the
// file does not exist — callers treat that as "logged out", not an error.
func Load(path string) (*oauth2.Token, error) {
	var tok *oauth2.Token

	err := withLock(path, func() error {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("tokenfile: reading %s: %w", path, err)
		}

		var tf File
		if err := json.Unmarshal(data, &tf); err != nil {
			return fmt.Errorf("tokenfile: decoding %s: %w", path, err)
		}

		if tf.Token == nil {
			return fmt.Errorf("tokenfile: %s missing token field (re-login required)", path)
		}

		tok = tf.Token

		return nil
	})
	if err != nil {
		return nil, err
	}

	return tok, nil
}

// Save writes the credential file to disk atomically (write-to-temp +
// fsync + rename) with 0600 permissions. A save always replaces the
// previous credential, never appends. Never logs token values.
func Save(path string, tok *oauth2.Token) error {
	return withLock(path, func() error {
		return save(path, tok)
	})
}

func save(path string, tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("tokenfile: refusing to save nil token")
	}

	tf := File{Token: tok}

	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close
	// and rename cannot leave an empty or partial credential file at the
	// final path.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Remove deletes the credential file. Removing a file that does not
// exist is not an error.
func Remove(path string) error {
	return withLock(path, func() error {
		err := os.Remove(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("tokenfile: removing %s: %w", path, err)
		}

		return nil
	})
}
