// Package redis is the Redis session backend, shared by every API instance.
package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core"
	"github.com/sauvini/onboarding/core/registration"
	"github.com/sauvini/onboarding/storage/session"
)

var errLockTimeout = errors.New("session is busy, please retry")

// redClient is the part of *redis.Client in use. Mockable.
type redClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetXX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd
	ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd
	ScriptLoad(ctx context.Context, script string) *redis.StringCmd
}

// NewClient connects to Redis.
func NewClient(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "pinging redis")
	}
	return cli, nil
}

type KV struct {
	cli redClient
}

var _ session.KV = (*KV)(nil)

func NewKV(cli *redis.Client) *KV {
	return &KV{cli: cli}
}

func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := kv.cli.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, session.ErrNoKey
	}
	return val, err
}

func (kv *KV) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return kv.cli.Set(ctx, key, val, ttl).Err()
}

func (kv *KV) Replace(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	ok, err := kv.cli.SetXX(ctx, key, val, ttl).Result()
	if err == redis.Nil {
		return false, nil
	}
	return ok, err
}

func (kv *KV) Del(ctx context.Context, key string) error {
	return kv.cli.Del(ctx, key).Err()
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

const (
	minLockTTL = 30 * time.Second
	lockMargin = 15 * time.Second
)

// Locker serialises the session requests across API instances.
type Locker struct {
	cli     redClient
	ttl     time.Duration // lock expiry, in case the holder dies
	retry   time.Duration
	timeout time.Duration
}

var _ registration.Locker = (*Locker)(nil)

func NewLocker(cli *redis.Client, conf *core.Config) *Locker {
	return newLocker(cli, conf)
}

func newLocker(cli redClient, conf *core.Config) *Locker {
	return &Locker{cli: cli, ttl: lockTTL(conf.AuthAPI), retry: 50 * time.Millisecond, timeout: 10 * time.Second}
}

// lockTTL outlives the longest critical section: a student advance calls the
// auth API twice (registration, then the verification email) before saving.
func lockTTL(conf core.AuthAPIConfig) time.Duration {
	ttl := 2*conf.Timeout + lockMargin
	if ttl < minLockTTL {
		return minLockTTL
	}
	return ttl
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	key = "lock:" + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.timeout)

	for {
		ok, err := l.cli.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "acquiring session lock")
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, core.NewRequestError(errLockTimeout.Error(), errLockTimeout)
		}
		select {
		case <-time.After(l.retry):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return func() {
		// the request context may be done by now
		_ = luaUnlock.Run(context.Background(), l.cli, []string{key}, token).Err()
	}, nil
}
