package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockStore_AcquireTripLock(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewLockStore(client)
	ctx := context.Background()

	mock.ExpectSetNX("lock:trip:trip-1", "token-a", 5*time.Second).SetVal(true)
	mock.ExpectSetNX("lock:trip:trip-1", "token-b", 5*time.Second).SetVal(false)

	ok, err := store.AcquireTripLock(ctx, "trip-1", "token-a", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.AcquireTripLock(ctx, "trip-1", "token-b", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not get the lock")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockStore_AcquireTripLock_RedisDown(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewLockStore(client)

	mock.ExpectSetNX("lock:trip:trip-1", "token-a", time.Second).SetErr(errors.New("connection refused"))

	_, err := store.AcquireTripLock(context.Background(), "trip-1", "token-a", time.Second)
	assert.Error(t, err)
}

func TestLockStore_ReleaseTripLock(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewLockStore(client)
	ctx := context.Background()

	mock.ExpectEval(releaseScript, []string{"lock:trip:trip-1"}, "token-a").SetVal(int64(1))
	mock.ExpectEval(releaseScript, []string{"lock:trip:trip-1"}, "stale").SetVal(int64(0))

	released, err := store.ReleaseTripLock(ctx, "trip-1", "token-a")
	require.NoError(t, err)
	assert.True(t, released)

	released, err = store.ReleaseTripLock(ctx, "trip-1", "stale")
	require.NoError(t, err)
	assert.False(t, released, "a stale token must not release the lock")

	assert.NoError(t, mock.ExpectationsWereMet())
}
