package lock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/ogctl/pkg/util"
)

// fakeScripter evaluates the two lock scripts against an in-memory map.
type fakeScripter struct {
	holders map[string]string
	ttls    map[string]string
	err     error
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{holders: map[string]string{}, ttls: map[string]string{}}
}

func (f *fakeScripter) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	if f.err != nil {
		return redis.NewCmdResult(nil, f.err)
	}
	key := keys[0]
	_, exists := f.holders[key]

	switch {
	case strings.Contains(script, `"HSET"`):
		if exists {
			return redis.NewCmdResult(int64(0), nil)
		}
		f.holders[key] = args[0].(string)
		f.ttls[key] = args[2].(string)
		return redis.NewCmdResult(int64(1), nil)
	case strings.Contains(script, `"DEL"`):
		if !exists {
			return redis.NewCmdResult(int64(-1), nil)
		}
		if f.holders[key] != args[0].(string) {
			return redis.NewCmdResult(int64(0), nil)
		}
		delete(f.holders, key)
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(nil, errors.New("unexpected script"))
}

func (f *fakeScripter) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("NOSCRIPT No matching script"))
}

func (f *fakeScripter) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	fake := newFakeScripter()
	l := NewWithScripter(fake)

	if err := l.Acquire(ctx, "og1", "alice@host", time.Minute); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got := fake.holders[Key("og1")]; got != "alice@host" {
		t.Errorf("holder = %q, want alice@host", got)
	}
	if got := fake.ttls[Key("og1")]; got != "60" {
		t.Errorf("ttl = %q, want 60", got)
	}

	err := l.Acquire(ctx, "og1", "bob@host", time.Minute)
	if !errors.Is(err, util.ErrDeviceLocked) {
		t.Errorf("second Acquire() error = %v, want ErrDeviceLocked", err)
	}

	if err := l.Release(ctx, "og1", "bob@host"); err == nil {
		t.Error("Release() by non-holder should fail")
	}
	if err := l.Release(ctx, "og1", "alice@host"); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if _, ok := fake.holders[Key("og1")]; ok {
		t.Error("lock should be gone after release")
	}

	if err := l.Release(ctx, "og1", "alice@host"); err != nil {
		t.Errorf("Release() of missing lock should succeed, got %v", err)
	}
}

func TestRedisLocker_DefaultTTL(t *testing.T) {
	fake := newFakeScripter()
	l := NewWithScripter(fake)

	if err := l.Acquire(context.Background(), "og1", "alice", 0); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got := fake.ttls[Key("og1")]; got != "600" {
		t.Errorf("ttl = %q, want 600", got)
	}

	if err := l.Acquire(context.Background(), "og2", "alice", 100*time.Millisecond); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got := fake.ttls[Key("og2")]; got != "1" {
		t.Errorf("ttl = %q, want 1", got)
	}
}

func TestRedisLocker_RedisError(t *testing.T) {
	fake := newFakeScripter()
	fake.err = errors.New("connection refused")
	l := NewWithScripter(fake)

	err := l.Acquire(context.Background(), "og1", "alice", time.Minute)
	if err == nil || errors.Is(err, util.ErrDeviceLocked) {
		t.Errorf("Acquire() error = %v, want redis error", err)
	}
	if err := l.Release(context.Background(), "og1", "alice"); err == nil {
		t.Error("Release() should surface redis error")
	}
}

func TestKey(t *testing.T) {
	if got := Key("og-lon-1"); got != "OGCTL_LOCK|og-lon-1" {
		t.Errorf("Key() = %q", got)
	}
}

func TestRedisLocker_CloseWithoutClient(t *testing.T) {
	if err := NewWithScripter(newFakeScripter()).Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
