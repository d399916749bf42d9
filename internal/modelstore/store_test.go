package modelstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf-slides/internal/domain"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	dir, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	lite, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = dir.Close()
		_ = lite.Close()
	})
	return map[string]Store{"dir": dir, "sqlite": lite}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "lama_model")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "lama_model", []byte("weights-v1")))
			got, err := s.Get(ctx, "lama_model")
			require.NoError(t, err)
			assert.Equal(t, []byte("weights-v1"), got)

			require.NoError(t, s.Put(ctx, "lama_model", []byte("weights-v2")))
			got, err = s.Get(ctx, "lama_model")
			require.NoError(t, err)
			assert.Equal(t, []byte("weights-v2"), got)

			require.NoError(t, s.Delete(ctx, "lama_model"))
			_, err = s.Get(ctx, "lama_model")
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, s.Delete(ctx, "lama_model"), "deleting a missing key")
		})
	}
}

func TestStoreRejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "..", "a/b", `a\b`} {
				err := s.Put(ctx, key, []byte("x"))
				require.Error(t, err, key)
				assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
			}
		})
	}
}

func TestDirStoreConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewDirStore(dir)
	require.NoError(t, err)

	payloads := [][]byte{[]byte("aaaaaaaa"), []byte("bbbbbbbb"), []byte("cccccccc")}
	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			assert.NoError(t, s.Put(ctx, "lama_model", p))
		}(p)
	}
	wg.Wait()

	got, err := s.Get(ctx, "lama_model")
	require.NoError(t, err)
	assert.Contains(t, payloads, got)

	// No temp files left behind.
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	s, err := New(Config{Driver: "dir", Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &DirStore{}, s)
	require.NoError(t, s.Close())

	s, err = New(Config{Driver: "sqlite", Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())
	_, err = os.Stat(filepath.Join(dir, "models.db"))
	assert.NoError(t, err)

	_, err = New(Config{Driver: "s3", Dir: dir})
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}
