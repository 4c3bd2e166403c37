package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(mock redismock.ClientMock)
		wantOK  bool
		wantErr bool
	}{
		{
			name: "acquired and released",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectSetNX("lock:sweep", "token-1", time.Minute).SetVal(true)
				mock.ExpectEval(releaseScript, []string{"lock:sweep"}, "token-1").SetVal(int64(1))
			},
			wantOK: true,
		},
		{
			name: "held by someone else",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectSetNX("lock:sweep", "token-1", time.Minute).SetVal(false)
			},
		},
		{
			name: "redis error",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectSetNX("lock:sweep", "token-1", time.Minute).SetErr(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			tt.setup(mock)

			l := NewRedisLocker(db)
			l.token = func() string { return "token-1" }

			unlock, ok, err := l.TryLock(ctx, "sweep", time.Minute)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantOK, ok)

			if ok {
				require.NoError(t, unlock(ctx))
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	unlock, ok, err := l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second caller must be coalesced")

	require.NoError(t, unlock(ctx))

	_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLocker_Expires(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	_, ok, err := l.TryLock(ctx, "sweep", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)

	_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLocker_StaleUnlockKeepsNewHolder(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	for i := 0; i < 50; i++ {
		staleUnlock, ok, err := l.TryLock(ctx, "sweep", time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(2 * time.Millisecond)

		// старый владелец снимает истёкшую блокировку одновременно с захватом новым
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = staleUnlock(ctx)
		}()
		unlock, ok, err := l.TryLock(ctx, "sweep", time.Minute)
		wg.Wait()
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = l.TryLock(ctx, "sweep", time.Minute)
		require.NoError(t, err)
		require.False(t, ok, "stale unlock released the new holder")

		require.NoError(t, unlock(ctx))
	}
}
