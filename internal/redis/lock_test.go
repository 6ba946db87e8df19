package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithLockReleasesAfterRun(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second)
	key := SlotKey(uuid.New(), "2025-03-10", "09:00:00")

	ran := false
	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(key))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(key))
}

func TestWithLockRejectsSecondHolder(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second)
	key := SlotKey(uuid.New(), "2025-03-10", "09:00:00")

	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, key, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
}

func TestWithLockPropagatesErrorAndReleases(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second)
	key := "lock:slot:test"

	boom := errors.New("conflict")
	err := locker.WithLock(context.Background(), key, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(key))
}

func TestReleaseDoesNotDeleteForeignToken(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := &redisLocker{client: client, ttl: time.Second}

	require.NoError(t, mr.Set("lock:slot:x", "someone-else"))
	require.NoError(t, l.release(context.Background(), "lock:slot:x", "mine"))

	v, err := mr.Get("lock:slot:x")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestNoopLocker(t *testing.T) {
	called := false
	err := NoopLocker{}.WithLock(context.Background(), "k", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestWithLockReportsUnavailableRedis(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second)
	mr.Close()

	called := false
	err := locker.WithLock(context.Background(), "lock:slot:down", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.False(t, called)
}
