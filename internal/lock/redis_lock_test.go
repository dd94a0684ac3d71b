package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/IdrisKulubi/HIH-sub002/internal/lock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocker(t *testing.T) (*miniredis.Miniredis, *lock.RedisLocker) {
	mr := miniredis.RunT(t)
	client := lock.NewRedisClient(config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, lock.Ping(context.Background(), client))
	return mr, lock.NewRedisLocker(client)
}

// TestRedisLocker_Exclusive 测试同一时间只有一个持有者
func TestRedisLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	_, locker := setupLocker(t)

	lease, err := locker.Acquire(ctx, "dd-sweep", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "dd-sweep", time.Minute)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	require.NoError(t, lease.Release(ctx))

	again, err := locker.Acquire(ctx, "dd-sweep", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

// TestRedisLocker_ExpiredLeaseDoesNotReleaseNewHolder 过期的持有者不能释放新持有者的锁
func TestRedisLocker_ExpiredLeaseDoesNotReleaseNewHolder(t *testing.T) {
	ctx := context.Background()
	mr, locker := setupLocker(t)

	stale, err := locker.Acquire(ctx, "dd-sweep", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	current, err := locker.Acquire(ctx, "dd-sweep", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))
	_, err = locker.Acquire(ctx, "dd-sweep", time.Minute)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	require.NoError(t, current.Release(ctx))
}
