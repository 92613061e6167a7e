package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/FeatureScope/internal/config"
	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/FeatureScope/pkg/errors"
)

func newTestLocker(t *testing.T, opts ...LockOption) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return NewLocker(c, nil, opts...), mr
}

func TestLocker_AcquireRelease(t *testing.T) {
	l, mr := newTestLocker(t, WithLockPrefix("fs:"))
	ctx := context.Background()

	lock, err := l.TryAcquire(ctx, "scatter:a")
	require.NoError(t, err)
	assert.Equal(t, "fs:lock:scatter:a", lock.Key())
	assert.True(t, mr.Exists("fs:lock:scatter:a"))
	assert.Equal(t, 30*time.Second, mr.TTL("fs:lock:scatter:a"))

	_, err = l.TryAcquire(ctx, "scatter:a")
	assert.True(t, errors.Is(err, ErrLockNotAcquired))

	other, err := l.TryAcquire(ctx, "scatter:b")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists("fs:lock:scatter:a"))
	assert.True(t, errors.Is(lock.Release(ctx), ErrLockNotHeld))
}

func TestLocker_ReleaseAfterTakeover(t *testing.T) {
	l, mr := newTestLocker(t, WithLockTTL(time.Second))
	ctx := context.Background()

	first, err := l.TryAcquire(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	second, err := l.TryAcquire(ctx, "k")
	require.NoError(t, err)

	assert.True(t, errors.Is(first.Release(ctx), ErrLockNotHeld), "expired lease must not free the new owner")
	assert.True(t, errors.Is(first.Extend(ctx, time.Minute), ErrLockNotHeld))
	assert.True(t, mr.Exists(second.Key()))

	require.NoError(t, second.Extend(ctx, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL(second.Key()))
}

func TestLocker_AcquireWaits(t *testing.T) {
	l, _ := newTestLocker(t, WithRetryDelay(5*time.Millisecond))
	ctx := context.Background()

	held, err := l.TryAcquire(ctx, "k")
	require.NoError(t, err)
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = held.Release(context.Background())
	}()

	lock, err := l.Acquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
}

func TestLocker_AcquireGivesUp(t *testing.T) {
	l, _ := newTestLocker(t, WithRetryDelay(5*time.Millisecond))
	_, err := l.TryAcquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeConflict))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestLocker_ClosedClient(t *testing.T) {
	l, _ := newTestLocker(t)
	require.NoError(t, l.client.Close())
	_, err := l.TryAcquire(context.Background(), "k")
	assert.True(t, errors.Is(err, ErrClientClosed))
}
