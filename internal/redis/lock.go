package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const tripLockPrefix = "lock:trip:"

// releaseScript deletes the lock only if it still carries the caller's token,
// so a holder whose TTL expired cannot free someone else's lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// LockStore handles distributed per-trip locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// AcquireTripLock attempts to take the seat lock of a trip with the given token.
// Returns true if the lock was acquired, false if another holder has it.
func (s *LockStore) AcquireTripLock(ctx context.Context, tripID, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, tripLockPrefix+tripID, token, ttl).Result()
}

// ReleaseTripLock releases the trip lock if it is still held with token.
// Returns false if the lock had already expired or changed hands.
func (s *LockStore) ReleaseTripLock(ctx context.Context, tripID, token string) (bool, error) {
	n, err := s.client.Eval(ctx, releaseScript, []string{tripLockPrefix + tripID}, token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
