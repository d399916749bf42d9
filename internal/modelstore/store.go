// Package modelstore persists downloaded model weights so later runs skip
// the download.
package modelstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/pdf-slides/internal/domain"
)

// ErrNotFound is returned by Get when no model is stored under the key.
var ErrNotFound = errors.New("model not found")

// Store is a closable model store.
type Store interface {
	domain.ModelStore
	Close() error
}

// Config selects the backend.
type Config struct {
	Driver string `yaml:"driver"` // dir or sqlite
	Dir    string `yaml:"dir"`
}

// DefaultDir returns the per-user cache directory for models.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "pdf-slides", "models")
}

// New opens the store named by cfg.Driver.
func New(cfg Config) (Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultDir()
	}

	switch cfg.Driver {
	case "", "dir":
		s, err := NewDirStore(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLiteStore(filepath.Join(dir, "models.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown model store driver %q", cfg.Driver), nil)
	}
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return domain.ValidationError(fmt.Sprintf("invalid model key %q", key), nil)
	}
	return nil
}
