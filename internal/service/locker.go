package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"rideshare/internal/redis"
)

// TripLocker serializes seat mutations of one trip. Locks on different trips
// never block each other.
type TripLocker interface {
	// Lock blocks until the trip's lock is held or ctx is done.
	Lock(ctx context.Context, tripID string) (unlock func(), err error)
}

// LocalTripLocker is an in-process keyed lock. Entries are dropped once no
// goroutine holds or waits for them.
type LocalTripLocker struct {
	mu    sync.Mutex
	locks map[string]*tripLock
}

type tripLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalTripLocker creates a new LocalTripLocker.
func NewLocalTripLocker() *LocalTripLocker {
	return &LocalTripLocker{locks: make(map[string]*tripLock)}
}

// Lock acquires the in-process lock for tripID.
func (l *LocalTripLocker) Lock(ctx context.Context, tripID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[tripID]
	if !ok {
		entry = &tripLock{sem: make(chan struct{}, 1)}
		l.locks[tripID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.drop(tripID, entry)
		return nil, fmt.Errorf("lock trip %s: %w", tripID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.drop(tripID, entry)
		})
	}, nil
}

func (l *LocalTripLocker) drop(tripID string, entry *tripLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, tripID)
	}
}

// Size returns the number of trips currently locked or waited on.
func (l *LocalTripLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// DistributedTripLocker chains the in-process lock with a Redis lock so that
// several service instances serialize on the same trip.
type DistributedTripLocker struct {
	local      *LocalTripLocker
	store      redis.LockStoreInterface
	ttl        time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewDistributedTripLocker creates a new DistributedTripLocker.
func NewDistributedTripLocker(store redis.LockStoreInterface, ttl time.Duration, logger *slog.Logger) *DistributedTripLocker {
	return &DistributedTripLocker{
		local:      NewLocalTripLocker(),
		store:      store,
		ttl:        ttl,
		retryDelay: 20 * time.Millisecond,
		logger:     logger,
	}
}

// Lock takes the local lock first, then polls Redis until the trip lock is
// acquired or ctx is done.
func (l *DistributedTripLocker) Lock(ctx context.Context, tripID string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, tripID)
	if err != nil {
		return nil, err
	}

	token := uuid.New().String()
	for {
		ok, err := l.store.AcquireTripLock(ctx, tripID, token, l.ttl)
		if err != nil {
			unlockLocal()
			return nil, fmt.Errorf("acquire trip lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-time.After(l.retryDelay):
		case <-ctx.Done():
			unlockLocal()
			return nil, fmt.Errorf("lock trip %s: %w", tripID, ctx.Err())
		}
	}

	return func() {
		// Release with a fresh context: the caller's may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if released, err := l.store.ReleaseTripLock(releaseCtx, tripID, token); err != nil || !released {
			l.logger.Warn("trip_lock_release_failed",
				slog.String("trip_id", tripID),
				slog.Bool("released", released),
				slog.Any("error", err),
			)
		}
		unlockLocal()
	}, nil
}

// Ensure lockers implement TripLocker.
var (
	_ TripLocker = (*LocalTripLocker)(nil)
	_ TripLocker = (*DistributedTripLocker)(nil)
)
