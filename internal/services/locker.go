package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	apperrors "github.com/bytefinance/backend/internal/errors"
)

// Locker hands out named mutual-exclusion leases. The returned func releases
// the lease and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, name string, ttl time.Duration) (func(), error)
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is a keyed mutex for a single process. ttl is ignored.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyedLock)}
}

func (l *MemoryLocker) Lock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[name]
	if !ok {
		kl = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[name] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(name, kl, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(name, kl, true) })
	}, nil
}

func (l *MemoryLocker) release(name string, kl *keyedLock, held bool) {
	if held {
		<-kl.ch
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, name)
	}
}

// unlockScript deletes the lock only if this holder still owns it.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisLocker is a SETNX lease shared by every server instance. A holder that
// dies keeps the lock until ttl expires.
type RedisLocker struct {
	redis    *redis.Client
	retry    time.Duration
	newToken func() string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		redis:    client,
		retry:    25 * time.Millisecond,
		newToken: uuid.NewString,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := fmt.Sprintf("lock:%s", name)
	token := l.newToken()

	for {
		ok, err := l.redis.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, apperrors.Unavailable("acquire lock", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrLockNotAcquired, name, ctx.Err())
		case <-time.After(l.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release with a fresh context; the caller's may already be done
			l.redis.Eval(context.Background(), unlockScript, []string{key}, token)
		})
	}, nil
}
