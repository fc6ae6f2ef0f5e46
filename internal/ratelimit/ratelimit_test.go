package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gitwallet/market/internal/config"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestEventLockIsExclusiveUntilReleased(t *testing.T) {
	mr, client := newClient(t)
	lock := NewEventLock(client)
	ctx := context.Background()

	unlock, held, err := lock.Acquire(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, held)
	require.True(t, mr.Exists("stripe_event:evt_1"))

	_, held, err = lock.Acquire(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, held)

	require.NoError(t, unlock(ctx))
	require.False(t, mr.Exists("stripe_event:evt_1"))

	_, held, err = lock.Acquire(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, held)
}

func TestEventLockUnlockKeepsForeignOwner(t *testing.T) {
	mr, client := newClient(t)
	lock := NewEventLock(client)
	ctx := context.Background()

	unlock, held, err := lock.Acquire(ctx, "evt_2")
	require.NoError(t, err)
	require.True(t, held)

	// Lock expired and was taken by another delivery.
	require.NoError(t, mr.Set("stripe_event:evt_2", "other-worker"))
	require.NoError(t, unlock(ctx))
	require.True(t, mr.Exists("stripe_event:evt_2"))

	_, _, err = lock.Acquire(ctx, " ")
	require.ErrorIs(t, err, ErrEmptyLockKey)
}

func TestNilEventLockGrants(t *testing.T) {
	var lock *EventLock
	require.Nil(t, NewEventLock(nil))

	unlock, held, err := lock.Acquire(context.Background(), "evt_3")
	require.NoError(t, err)
	require.True(t, held)
	require.NoError(t, unlock(context.Background()))
}

func TestVerifyLimiterDeniesAfterBurst(t *testing.T) {
	_, client := newClient(t)
	cfg := config.Config{Redis: config.RedisConfig{VerifyRate: 0.001, VerifyBurst: 2}}
	limiter := NewVerifyLimiter(client, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	res, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Positive(t, res.RetryAfter)
	require.Positive(t, res.RetryAfterSeconds())
	require.Zero(t, res.Remaining)

	res, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestVerifyLimiterWithoutRedisAllows(t *testing.T) {
	var limiter *VerifyLimiter = NewVerifyLimiter(nil, config.Config{})
	require.Nil(t, limiter)
	res, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	require.True(t, res.Allowed)
}
