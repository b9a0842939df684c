package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/bytefinance/backend/internal/errors"
)

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("serializes holders of the same name", func(t *testing.T) {
		l := NewMemoryLocker()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			inside  int
			maxSeen int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := l.Lock(ctx, "sell:user-1", time.Second)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				unlock()
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, maxSeen)
		assert.Empty(t, l.locks)
	})

	t.Run("different names do not block", func(t *testing.T) {
		l := NewMemoryLocker()
		unlockA, err := l.Lock(ctx, "a", time.Second)
		require.NoError(t, err)
		defer unlockA()

		unlockB, err := l.Lock(ctx, "b", time.Second)
		require.NoError(t, err)
		unlockB()
	})

	t.Run("waiting honours the context", func(t *testing.T) {
		l := NewMemoryLocker()
		unlock, err := l.Lock(ctx, "a", time.Second)
		require.NoError(t, err)

		tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err = l.Lock(tctx, "a", time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		unlock()
		unlock() // second call is a no-op
		assert.Empty(t, l.locks)
	})
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	newLocker := func() (*RedisLocker, redismock.ClientMock) {
		client, mock := redismock.NewClientMock()
		l := NewRedisLocker(client)
		l.newToken = func() string { return "tok" }
		l.retry = time.Millisecond
		return l, mock
	}

	t.Run("acquire and release", func(t *testing.T) {
		l, mock := newLocker()
		mock.ExpectSetNX("lock:sell:user-1", "tok", 10*time.Second).SetVal(true)
		mock.ExpectEval(unlockScript, []string{"lock:sell:user-1"}, "tok").SetVal(int64(1))

		unlock, err := l.Lock(ctx, "sell:user-1", 10*time.Second)
		require.NoError(t, err)
		unlock()
		unlock()

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries while held elsewhere", func(t *testing.T) {
		l, mock := newLocker()
		mock.ExpectSetNX("lock:sell:user-1", "tok", time.Second).SetVal(false)
		mock.ExpectSetNX("lock:sell:user-1", "tok", time.Second).SetVal(true)
		mock.ExpectEval(unlockScript, []string{"lock:sell:user-1"}, "tok").SetVal(int64(1))

		unlock, err := l.Lock(ctx, "sell:user-1", time.Second)
		require.NoError(t, err)
		unlock()

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up when the context ends", func(t *testing.T) {
		l, mock := newLocker()
		l.retry = time.Hour
		mock.ExpectSetNX("lock:sell:user-1", "tok", time.Second).SetVal(false)

		tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := l.Lock(tctx, "sell:user-1", time.Second)
		assert.ErrorIs(t, err, apperrors.ErrLockNotAcquired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis failure is transient", func(t *testing.T) {
		l, mock := newLocker()
		mock.ExpectSetNX("lock:sell:user-1", "tok", time.Second).SetErr(errors.New("connection refused"))

		_, err := l.Lock(ctx, "sell:user-1", time.Second)
		assert.True(t, apperrors.IsUnavailable(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
