// Package lockservice provides a Redis-backed mutual-exclusion lock for
// cross-replica coordination (the periodic sweeps in §4.11), distinct from
// internal/keyedlock which only coordinates goroutines within one process.
package lockservice

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/geocoder89/eventhub/internal/queue/redisclient"
)

var ErrNotHeld = errors.New("lockservice: lock not held by this token")

// Lock is a Redis SETNX-with-TTL mutex. One Lock value is safe to reuse
// across acquisitions; it is not safe for concurrent use by multiple
// goroutines holding the same key at once (by design - that's the point).
type Lock struct {
	client *redisclient.Client
}

func New(client *redisclient.Client) *Lock {
	return &Lock{client: client}
}

// TryAcquire attempts to set key with a random token, NX, expiring after
// ttl. Returns ("", false, nil) when another holder already has it.
func (l *Lock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = l.client.Raw().SetNX(ctx, redisKey(key), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes key only if its value still matches token, so a holder
// whose lease already expired and was reacquired by someone else can never
// release the new holder's lock out from under them.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func (l *Lock) Release(ctx context.Context, key, token string) error {
	n, err := releaseScript.Run(ctx, l.client.Raw(), []string{redisKey(key)}, token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// WithLock runs fn only if key was acquired, releasing it afterward
// regardless of fn's outcome. Returns (false, nil) without running fn when
// the lock is already held elsewhere - this is the "skip this tick"
// behavior the sweepers rely on.
func (l *Lock) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (ran bool, err error) {
	token, ok, err := l.TryAcquire(ctx, key, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		_ = l.Release(context.WithoutCancel(ctx), key, token)
	}()
	return true, fn(ctx)
}

func redisKey(key string) string {
	return "eventhub:lock:" + key
}
