package redis

import (
	"context"
	"time"

	"rideshare/internal/domain"
)

// LockStoreInterface defines the interface for distributed trip locking.
type LockStoreInterface interface {
	AcquireTripLock(ctx context.Context, tripID, token string, ttl time.Duration) (bool, error)
	ReleaseTripLock(ctx context.Context, tripID, token string) (bool, error)
}

// CacheStoreInterface defines the interface for the trip catalog cache.
type CacheStoreInterface interface {
	GetTrip(ctx context.Context, tripID string) (*domain.Trip, error)
	SetTrip(ctx context.Context, trip *domain.Trip) error
	InvalidateTrip(ctx context.Context, tripID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface  = (*LockStore)(nil)
	_ CacheStoreInterface = (*CacheStore)(nil)
)
