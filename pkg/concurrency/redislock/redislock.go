// Package redislock provides a distributed Locker backed by Redis SET NX PX,
// for dispensing engines that run as more than one worker process sharing a
// pharmacy's prescription and NDC key space.
package redislock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ridgeline-health/dispense/pkg/concurrency"
)

// ErrNotAcquired is returned when the lock could not be acquired before ctx
// was done.
var ErrNotAcquired = errors.New("redislock: could not acquire lock")

// Locker implements concurrency.Locker using Redis as the coordination
// point. It polls with a short backoff rather than using Redis pub/sub, to
// keep the dependency surface to a single redis.Client.
type Locker struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	poll    time.Duration
}

// New creates a Locker. prefix namespaces keys (e.g. "dispense:lock:").
func New(client *redis.Client, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl, poll: 25 * time.Millisecond}
}

var _ concurrency.Locker = (*Locker)(nil)

// Lock blocks (polling) until the distributed lock for key is acquired or
// ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	redisKey := l.prefix + key

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.unlock(redisKey, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// unlock releases the key only if it still holds our token, via a Lua
// compare-and-delete to avoid releasing a lock acquired by someone else
// after our TTL expired.
func (l *Locker) unlock(redisKey, token string) {
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = script.Run(ctx, l.client, []string{redisKey}, token).Result()
}

func randomToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
