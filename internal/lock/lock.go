// Package lock provides the best-effort mutual exclusion used to coalesce
// background sweeps. Redis is used when configured; otherwise the lock is
// local to the process.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// UnlockFunc releases a lock obtained by TryLock.
type UnlockFunc func(ctx context.Context) error

// Locker hands out expiring locks. ok == false means somebody else holds key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock UnlockFunc, ok bool, err error)
}

// releaseScript удаляет ключ, только если он всё ещё принадлежит владельцу
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

type RedisLocker struct {
	client redis.Cmdable
	token  func() string
}

func NewRedisLocker(client redis.Cmdable) *RedisLocker {
	return &RedisLocker{client: client, token: uuid.NewString}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, bool, error) {
	const op = "lock.RedisLocker.TryLock"

	k := keyPrefix + key
	token := l.token()

	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func(ctx context.Context) error {
		const op = "lock.RedisLocker.unlock"

		if err := l.client.Eval(ctx, releaseScript, []string{k}, token).Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	return unlock, true, nil
}

// LocalLocker uses go-cache's Add with a TTL, so expired locks free themselves.
// mu makes the owner check and delete in unlock one step with respect to Add:
// a holder whose lock expired must not delete the next holder's key.
type LocalLocker struct {
	mu sync.Mutex
	c  *cache.Cache
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{c: cache.New(cache.NoExpiration, time.Minute)}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, bool, error) {
	k := keyPrefix + key
	token := uuid.NewString()

	l.mu.Lock()
	err := l.c.Add(k, token, ttl)
	l.mu.Unlock()
	if err != nil {
		return nil, false, nil
	}

	unlock := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()

		if v, found := l.c.Get(k); found && v == token {
			l.c.Delete(k)
		}
		return nil
	}

	return unlock, true, nil
}
