// Package keystore persists serialized key pairs on disk for the CLI.
// Private blobs are written with owner-only permissions and never leave
// the local filesystem.
package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var ErrNotFound = errors.New("keystore: key pair not found")

const (
	publicSuffix  = ".pub"
	privateSuffix = ".key"
)

// Save writes a key pair under dir as <name>.pub / <name>.key. The
// private half is owner-readable only.
func Save(dir, name string, public, private []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("keystore: create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+publicSuffix), public, 0o644); err != nil {
		return fmt.Errorf("keystore: write public key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+privateSuffix), private, 0o600); err != nil {
		return fmt.Errorf("keystore: write private key: %w", err)
	}
	return nil
}

// Load reads a key pair previously written by Save.
func Load(dir, name string) (public, private []byte, err error) {
	public, err = os.ReadFile(filepath.Join(dir, name+publicSuffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("keystore: read public key: %w", err)
	}
	private, err = os.ReadFile(filepath.Join(dir, name+privateSuffix))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("keystore: read private key: %w", err)
	}
	return public, private, nil
}

// Delete removes both halves of a key pair. Missing files are fine.
func Delete(dir, name string) error {
	for _, suffix := range []string{publicSuffix, privateSuffix} {
		if err := os.Remove(filepath.Join(dir, name+suffix)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("keystore: delete: %w", err)
		}
	}
	return nil
}
