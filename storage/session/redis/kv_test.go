package redis

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/storage/session"
)

// fakeRedis is a map backed redClient, ignoring expirations.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

var _ redClient = (*fakeRedis)(nil)

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) set(key string, value interface{}, exp time.Duration) {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = exp
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set(key, value, exp)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetXX(ctx context.Context, key string, value interface{}, exp time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return redis.NewBoolResult(false, redis.Nil)
	}
	f.set(key, value, exp)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, exp time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.set(key, value, exp)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// Eval only knows the unlock script.
func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[keys[0]] == args[0] {
		delete(f.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("NOSCRIPT No matching script"))
}

func (f *fakeRedis) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestKV(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	kv := &KV{cli: fake}

	_, err := kv.Get(ctx, "k")
	assert.Equal(t, session.ErrNoKey, err)

	ok, err := kv.Replace(ctx, "k", []byte("v0"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", []byte("v1"), time.Minute))
	ok, err = kv.Replace(ctx, "k", []byte("v2"), 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Minute, fake.ttls["k"])

	val, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(val))

	require.NoError(t, kv.Del(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.Equal(t, session.ErrNoKey, err)
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	locker := &Locker{cli: fake, ttl: time.Minute, retry: time.Millisecond, timeout: 20 * time.Millisecond}

	unlock, err := locker.Lock(ctx, "reg_session:s1")
	require.NoError(t, err)
	assert.Contains(t, fake.data, "lock:reg_session:s1")

	_, err = locker.Lock(ctx, "reg_session:s1")
	var reqErr *core.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.True(t, strings.Contains(reqErr.Message, "busy"))

	// a stale unlock does not free a lock taken by someone else
	fake.data["lock:reg_session:s1"] = "someone-else"
	unlock()
	assert.Equal(t, "someone-else", fake.data["lock:reg_session:s1"])

	delete(fake.data, "lock:reg_session:s1")
	unlock, err = locker.Lock(ctx, "reg_session:s1")
	require.NoError(t, err)
	unlock()
	assert.NotContains(t, fake.data, "lock:reg_session:s1")
}

func TestLocker_ttl(t *testing.T) {
	tests := []struct {
		name        string
		authTimeout time.Duration
		want        time.Duration
	}{
		{name: "default auth timeout", authTimeout: 15 * time.Second, want: 45 * time.Second},
		{name: "slow auth api", authTimeout: time.Minute, want: 2*time.Minute + 15*time.Second},
		{name: "fast auth api", authTimeout: time.Second, want: 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeRedis()
			conf := &core.Config{AuthAPI: core.AuthAPIConfig{Timeout: tt.authTimeout}}
			locker := newLocker(fake, conf)

			unlock, err := locker.Lock(context.Background(), "reg_session:s1")
			require.NoError(t, err)
			defer unlock()
			assert.Equal(t, tt.want, fake.ttls["lock:reg_session:s1"])
			assert.Greater(t, int64(fake.ttls["lock:reg_session:s1"]), int64(2*tt.authTimeout))
		})
	}
}
