package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestJobLockAcquireRelease(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewJobLock(client)
	ctx := context.Background()
	key := ReportLockKey("2025-06-02")

	ok, err := lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Second acquisition fails while held.
	ok, err = lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, lock.Release(ctx, key))

	ok, err = lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestJobLockExpires(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lock := NewJobLock(client)
	ctx := context.Background()
	key := ReportLockKey("2025-06-03")

	ok, err := lock.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	srv.FastForward(2 * time.Second)

	ok, err = lock.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestJobLockNilClientPassesThrough(t *testing.T) {
	var lock *JobLock
	ok, err := lock.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock.Release(context.Background(), "k"))
}
