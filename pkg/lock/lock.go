// Package lock provides an exclusive per-device lock held in Redis, so two
// operators cannot stage changes on the same appliance at once.
package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/ogctl/pkg/util"
)

// KeyPrefix prefixes the Redis key of every device lock.
const KeyPrefix = "OGCTL_LOCK|"

// DefaultTTL bounds how long a crashed holder can block a device.
const DefaultTTL = 10 * time.Minute

// Locker acquires and releases device locks.
type Locker interface {
	Acquire(ctx context.Context, device, holder string, ttl time.Duration) error
	Release(ctx context.Context, device, holder string) error
}

// acquireScript returns 1 on success, 0 if the key already exists.
var acquireScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// releaseScript returns 1 on success, 0 on holder mismatch, -1 if no lock.
var releaseScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// RedisLocker implements Locker with Lua scripts so check-and-set is atomic.
type RedisLocker struct {
	client redis.Scripter
	closer func() error
}

// NewRedisLocker connects to the Redis server at addr.
func NewRedisLocker(addr string) *RedisLocker {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisLocker{client: client, closer: client.Close}
}

// NewWithScripter uses an existing client.
func NewWithScripter(client redis.Scripter) *RedisLocker {
	return &RedisLocker{client: client}
}

// Key returns the Redis key holding the lock for device.
func Key(device string) string {
	return KeyPrefix + device
}

// Acquire takes the lock for device. It returns an error wrapping
// util.ErrDeviceLocked when someone already holds it.
func (l *RedisLocker) Acquire(ctx context.Context, device, holder string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	seconds := int(ttl.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := acquireScript.Run(ctx, l.client, []string{Key(device)},
		holder, now, strconv.Itoa(seconds)).Int()
	if err != nil {
		return fmt.Errorf("acquiring lock for %s: %w", device, err)
	}
	if result == 0 {
		return fmt.Errorf("%s: %w", device, util.ErrDeviceLocked)
	}
	util.WithDevice(device).Debugf("lock acquired by %s for %ds", holder, seconds)
	return nil
}

// Release drops the lock if holder owns it. A missing lock is not an error;
// it may have expired.
func (l *RedisLocker) Release(ctx context.Context, device, holder string) error {
	result, err := releaseScript.Run(ctx, l.client, []string{Key(device)}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock for %s: %w", device, err)
	}
	switch result {
	case 0:
		return fmt.Errorf("lock holder mismatch for %s", device)
	case -1:
		util.WithDevice(device).Debug("lock already gone at release")
	}
	return nil
}

// Close closes the Redis client if this locker created it.
func (l *RedisLocker) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}

var _ Locker = (*RedisLocker)(nil)
