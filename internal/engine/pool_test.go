package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	closed   atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeEngine) Close() error {
	f.closed.Add(1)
	return nil
}

func (f *fakeEngine) work() {
	n := f.inFlight.Add(1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	f.inFlight.Add(-1)
}

func TestPoolLazyAndSingle(t *testing.T) {
	var created atomic.Int32
	eng := &fakeEngine{}
	pool := NewPool(func(ctx context.Context) (*fakeEngine, error) {
		created.Add(1)
		return eng, nil
	})

	assert.False(t, pool.Ready())
	assert.Zero(t, created.Load())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pool.Use(context.Background(), func(e *fakeEngine) error {
				e.work()
				return nil
			}))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(1), eng.maxSeen.Load())
	assert.True(t, pool.Ready())

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	assert.Equal(t, int32(1), eng.closed.Load())

	err := pool.Use(context.Background(), func(*fakeEngine) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPoolRemembersInitFailure(t *testing.T) {
	boom := errors.New("no engine")
	var calls int
	pool := NewPool(func(ctx context.Context) (*fakeEngine, error) {
		calls++
		return nil, boom
	})

	assert.ErrorIs(t, pool.Warm(context.Background()), boom)
	assert.ErrorIs(t, pool.Use(context.Background(), func(*fakeEngine) error { return nil }), boom)
	assert.Equal(t, 1, calls)
	assert.NoError(t, pool.Close())
}

func TestPoolCloseWithoutUse(t *testing.T) {
	pool := NewPool(func(ctx context.Context) (*fakeEngine, error) {
		t.Fatal("factory must not run")
		return nil, nil
	})
	assert.NoError(t, pool.Close())
}

func TestPoolUseRespectsContext(t *testing.T) {
	pool := NewPool(func(ctx context.Context) (*fakeEngine, error) { return &fakeEngine{}, nil })

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Use(context.Background(), func(*fakeEngine) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pool.Use(ctx, func(*fakeEngine) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, pool.Close())
}
