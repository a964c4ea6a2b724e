// Package sessioncache persists serialized sessions between runs. Records are
// opaque bytes keyed by name; the session package decides what goes in them.
package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// DefaultKey is the record name used when none is configured.
const DefaultKey = "login"

var (
	ErrNotFound = errors.New("sessioncache: not found")

	// ErrCorrupt means a record exists but cannot be read back, for example
	// a sealed record opened with the wrong passphrase.
	ErrCorrupt = errors.New("sessioncache: corrupt record")

	ErrInvalidKey = errors.New("sessioncache: invalid key")
)

// Store is implemented by every cache backend (file, sqlite, redis).
type Store interface {
	// Save writes data under key, replacing any existing record.
	Save(ctx context.Context, key string, data []byte) error

	// Load returns the record under key or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes the record under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Timestamper is implemented by stores that know when a record was last
// saved. Stores that cannot tell return errors.ErrUnsupported.
type Timestamper interface {
	UpdatedAt(ctx context.Context, key string) (time.Time, error)
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateKey rejects keys that could escape a directory or collide with
// driver prefixes.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// DefaultDir returns ~/.robinhood, the directory the file store writes to
// when none is configured.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".robinhood"), nil
}
