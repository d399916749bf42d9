package modelstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/spherical/pdf-slides/internal/domain"
)

const lockRetry = 50 * time.Millisecond

// DirStore keeps one file per key. A sidecar lock file guards each key so
// concurrent processes never observe a partial write.
type DirStore struct {
	dir string
}

// NewDirStore creates dir if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, domain.IOError("failed to create model directory", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) path(key string) string {
	return filepath.Join(s.dir, key+".onnx")
}

func (s *DirStore) lock(key string) *flock.Flock {
	return flock.New(filepath.Join(s.dir, key+".lock"))
}

// Get returns the stored bytes or ErrNotFound.
func (s *DirStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}

	fileLock := s.lock(key)
	if _, err := fileLock.TryRLockContext(ctx, lockRetry); err != nil {
		return nil, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	defer func() { _ = fileLock.Unlock() }()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.IOError("failed to read model file", err)
	}
	return data, nil
}

// Put writes data atomically.
func (s *DirStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validKey(key); err != nil {
		return err
	}

	fileLock := s.lock(key)
	if _, err := fileLock.TryLockContext(ctx, lockRetry); err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer func() { _ = fileLock.Unlock() }()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return domain.IOError("failed to create temp model file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return domain.IOError("failed to write model file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return domain.IOError("failed to close model file", err)
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		_ = os.Remove(tmpPath)
		return domain.IOError("failed to move model file into place", err)
	}
	return nil
}

// Delete removes the key. Missing keys are not an error.
func (s *DirStore) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}

	fileLock := s.lock(key)
	if _, err := fileLock.TryLockContext(ctx, lockRetry); err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer func() { _ = fileLock.Unlock() }()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.IOError("failed to delete model file", err)
	}
	return nil
}

// Close is a no-op.
func (s *DirStore) Close() error {
	return nil
}
