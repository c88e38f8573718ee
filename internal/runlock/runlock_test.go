package runlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebulaflow/pkg/testutil"
)

func TestMemoryLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	lease, err := l.TryAcquire(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, l.Held("p1"))

	_, err = l.TryAcquire(ctx, "p1")
	assert.ErrorIs(t, err, ErrHeld)

	other, err := l.TryAcquire(ctx, "p2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))
	assert.False(t, l.Held("p1"))

	again, err := l.TryAcquire(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestMemoryLockerStaleReleaseKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	first, err := l.TryAcquire(ctx, "p")
	require.NoError(t, err)
	require.NoError(t, first.Release(ctx))

	second, err := l.TryAcquire(ctx, "p")
	require.NoError(t, err)
	require.NoError(t, first.Release(ctx))
	assert.True(t, l.Held("p"))
	require.NoError(t, second.Release(ctx))
}

func TestMemoryLockerConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.TryAcquire(ctx, "shared"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestRedisLocker(t *testing.T) {
	addr := testutil.RequireEnv(t, testutil.RedisAddrEnv)
	ctx := context.Background()
	client, err := Connect(ctx, addr)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedisLocker(client, 3*time.Second, nil)
	key := "test-" + time.Now().Format("150405.000000")

	lease, err := l.TryAcquire(ctx, key)
	require.NoError(t, err)
	_, err = l.TryAcquire(ctx, key)
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, lease.Release(ctx))
	again, err := l.TryAcquire(ctx, key)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
