package inpaint

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf-slides/internal/domain"
	"github.com/spherical/pdf-slides/internal/modelstore"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestTensorConversion(t *testing.T) {
	tile := image.NewRGBA(image.Rect(0, 0, 2, 2))
	tile.SetRGBA(0, 0, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	tile.SetRGBA(1, 0, color.RGBA{R: 0, G: 255, B: 0, A: 255})
	tile.SetRGBA(0, 1, color.RGBA{R: 0, G: 0, B: 255, A: 255})
	tile.SetRGBA(1, 1, color.RGBA{R: 51, G: 102, B: 204, A: 255})

	chw := make([]float32, 12)
	imageToCHW(tile, chw)
	assert.Equal(t, float32(1), chw[0])   // R plane, (0,0)
	assert.Equal(t, float32(1), chw[4+1]) // G plane, (1,0)
	assert.Equal(t, float32(1), chw[8+2]) // B plane, (0,1)
	assert.InDelta(t, 0.2, chw[3], 1e-6)  // R of (1,1)

	back := chwToImage(chw, 2, 2)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			want := tile.RGBAAt(x, y)
			got := back.RGBAAt(x, y)
			assert.InDelta(t, want.R, got.R, 1)
			assert.InDelta(t, want.G, got.G, 1)
			assert.InDelta(t, want.B, got.B, 1)
			assert.Equal(t, uint8(255), got.A)
		}
	}
}

func TestMaskPlane(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 3, 1))
	mask.Pix = []uint8{0, 128, 255}
	plane := make([]float32, 3)
	maskToPlane(mask, plane)
	assert.Equal(t, []float32{0, 0, 1}, plane)
}

func TestToByteClamps(t *testing.T) {
	tests := []struct {
		in   float32
		want uint8
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 127},
		{1, 255},
		{3, 255},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toByte(tt.in), "toByte(%v)", tt.in)
	}
}

func TestCheckTile(t *testing.T) {
	ok := image.NewRGBA(image.Rect(0, 0, 4, 4))
	okMask := image.NewGray(image.Rect(0, 0, 4, 4))
	assert.NoError(t, checkTile(4, ok, okMask))
	assert.Error(t, checkTile(4, image.NewRGBA(image.Rect(0, 0, 3, 4)), okMask))
	assert.Error(t, checkTile(4, ok, image.NewGray(image.Rect(0, 0, 4, 5))))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 5*time.Second, calculateBackoff(3, cfg))
}

func TestHTTPSourceRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("onnx-bytes"))
	}))
	defer srv.Close()

	var lastRead, lastTotal int64
	src := NewHTTPSource("primary", srv.URL, srv.Client(), fastRetry(), func(_ string, read, total int64) {
		lastRead, lastTotal = read, total
	}, nil)

	data, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("onnx-bytes"), data)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, int64(10), lastRead)
	assert.Equal(t, int64(10), lastTotal)
}

func TestHTTPSourceNonRetryable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPSource("primary", srv.URL, srv.Client(), fastRetry(), nil, nil).Fetch(context.Background())
	assert.ErrorContains(t, err, "HTTP 404")
	assert.Equal(t, int32(1), hits.Load())
}

type fakeSource struct {
	name  string
	data  []byte
	err   error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(context.Context) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func TestFetcherLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to backup and stores", func(t *testing.T) {
		store, err := modelstore.NewDirStore(t.TempDir())
		require.NoError(t, err)
		primary := &fakeSource{name: "primary", err: errors.New("offline")}
		backup := &fakeSource{name: "backup", data: []byte("weights")}

		f := NewFetcher(store, []domain.ModelSource{primary, backup}, nil)
		data, err := f.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("weights"), data)

		stored, err := store.Get(ctx, ModelKey)
		require.NoError(t, err)
		assert.Equal(t, []byte("weights"), stored)

		// Second load never touches the network.
		_, err = f.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, primary.calls)
		assert.Equal(t, 1, backup.calls)
	})

	t.Run("primary wins", func(t *testing.T) {
		primary := &fakeSource{name: "primary", data: []byte("p")}
		backup := &fakeSource{name: "backup", data: []byte("b")}
		data, err := NewFetcher(nil, []domain.ModelSource{primary, backup}, nil).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("p"), data)
		assert.Zero(t, backup.calls)
	})

	t.Run("all sources fail", func(t *testing.T) {
		f := NewFetcher(nil, []domain.ModelSource{
			&fakeSource{name: "primary", err: errors.New("dns")},
			&fakeSource{name: "backup", err: errors.New("tls")},
		}, nil)
		_, err := f.Load(ctx)
		require.Error(t, err)
		assert.True(t, domain.IsType(err, domain.ErrorTypeModelDownload))
		assert.ErrorContains(t, err, "dns")
		assert.ErrorContains(t, err, "tls")
	})

	t.Run("no sources", func(t *testing.T) {
		_, err := NewFetcher(nil, nil, nil).Load(ctx)
		assert.True(t, domain.IsType(err, domain.ErrorTypeModelDownload))
	})

	t.Run("clear", func(t *testing.T) {
		store, err := modelstore.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		defer store.Close()
		require.NoError(t, store.Put(ctx, ModelKey, []byte("w")))

		f := NewFetcher(store, nil, nil)
		require.NoError(t, f.Clear(ctx))
		_, err = store.Get(ctx, ModelKey)
		assert.ErrorIs(t, err, modelstore.ErrNotFound)
	})
}

func TestDefaultSources(t *testing.T) {
	srcs := DefaultSources(DefaultPrimaryURL, DefaultBackupURL, DefaultRetryConfig(), nil, nil)
	require.Len(t, srcs, 2)
	assert.Equal(t, "primary", srcs[0].Name())
	assert.Equal(t, "backup", srcs[1].Name())

	assert.Len(t, DefaultSources("", DefaultBackupURL, DefaultRetryConfig(), nil, nil), 1)
}
