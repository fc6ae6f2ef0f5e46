package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	eventLockPrefix = "stripe_event:"
	eventLockTTL    = 30 * time.Second
)

var ErrEmptyLockKey = errors.New("empty_lock_key")

// Deletes the key only while it still holds our token, so a lock that expired
// and was taken by another delivery is left alone.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// EventLock marks a Stripe event id as in flight across replicas.
type EventLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewEventLock(client *redis.Client) *EventLock {
	if client == nil {
		return nil
	}
	return &EventLock{client: client, ttl: eventLockTTL}
}

// Unlock releases a held event lock.
type Unlock func(ctx context.Context) error

// Acquire returns held=false when another delivery of the same event is
// running. A nil lock always grants.
func (l *EventLock) Acquire(ctx context.Context, stripeEventID string) (Unlock, bool, error) {
	if l == nil {
		return func(context.Context) error { return nil }, true, nil
	}
	stripeEventID = strings.TrimSpace(stripeEventID)
	if stripeEventID == "" {
		return nil, false, ErrEmptyLockKey
	}

	key := eventLockPrefix + stripeEventID
	owner := uuid.NewString()
	held, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil || !held {
		return nil, false, err
	}
	return func(ctx context.Context) error {
		return compareAndDelete.Run(ctx, l.client, []string{key}, owner).Err()
	}, true, nil
}
