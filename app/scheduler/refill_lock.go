package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RefillLocker serializes refills across replicas. release is nil when ok is false.
type RefillLocker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// RedisLockClient is the subset of *redis.Client the refill lock needs
type RedisLockClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// releaseScript deletes the key only while it still holds the caller's token
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`

// RedisRefillLock is a SETNX lock with a TTL so a crashed holder cannot wedge refills.
// Each acquisition stores a fresh token; release is compare-and-delete so a holder
// whose TTL lapsed cannot free a lock another replica has since taken.
type RedisRefillLock struct {
	rc    RedisLockClient
	key   string
	ttl   time.Duration
	owner string
}

func NewRedisRefillLock(rc RedisLockClient, key string, ttl time.Duration, owner string) *RedisRefillLock {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisRefillLock{rc: rc, key: key, ttl: ttl, owner: owner}
}

func (l *RedisRefillLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := l.owner + ":" + uuid.NewString()
	ok, err := l.rc.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		_ = l.rc.Eval(context.Background(), releaseScript, []string{l.key}, token).Err()
	}, true, nil
}

// redisKey joins the configured prefix with key
func redisKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

// RefillLockKey is the redis key holding the refill lock under prefix
func RefillLockKey(prefix string) string {
	return redisKey(prefix, refillLockKey)
}
