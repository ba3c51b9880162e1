//go:build integration

package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
)

// RedisAddr returns the address of the test Redis server from
// OGCTL_TEST_REDIS_ADDR, or "" when unset.
func RedisAddr() string {
	return os.Getenv("OGCTL_TEST_REDIS_ADDR")
}

// RedisClient returns a client for the test Redis server, skipping the test
// when none is configured. The database is flushed before use.
func RedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := RedisAddr()
	if addr == "" {
		t.Skip("OGCTL_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		client.Close()
		t.Fatalf("flushing test redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
