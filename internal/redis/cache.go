package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"rideshare/internal/domain"
)

// TripCacheTTL bounds how stale a cached trip can be when an invalidation is lost.
const TripCacheTTL = 60 * time.Second

const tripCachePrefix = "cache:trip:"

// CacheStore handles trip catalog caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// CachedTrip is the cached representation of a trip.
type CachedTrip struct {
	ID           string    `json:"id"`
	DriverID     string    `json:"driver_id"`
	Departure    string    `json:"departure"`
	Arrival      string    `json:"arrival"`
	DepartureAt  time.Time `json:"departure_at"`
	ArrivalAt    time.Time `json:"arrival_at"`
	PricePerSeat float64   `json:"price_per_seat"`
	Capacity     int       `json:"capacity"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// GetTrip retrieves a trip from cache. Returns nil on a cache miss.
func (s *CacheStore) GetTrip(ctx context.Context, tripID string) (*domain.Trip, error) {
	data, err := s.client.Get(ctx, tripCachePrefix+tripID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var cached CachedTrip
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	return &domain.Trip{
		ID:           cached.ID,
		DriverID:     cached.DriverID,
		Departure:    cached.Departure,
		Arrival:      cached.Arrival,
		DepartureAt:  cached.DepartureAt,
		ArrivalAt:    cached.ArrivalAt,
		PricePerSeat: cached.PricePerSeat,
		Capacity:     cached.Capacity,
		Status:       domain.TripStatus(cached.Status),
		CreatedAt:    cached.CreatedAt,
	}, nil
}

// SetTrip stores a trip in cache.
func (s *CacheStore) SetTrip(ctx context.Context, trip *domain.Trip) error {
	data, err := json.Marshal(CachedTrip{
		ID:           trip.ID,
		DriverID:     trip.DriverID,
		Departure:    trip.Departure,
		Arrival:      trip.Arrival,
		DepartureAt:  trip.DepartureAt,
		ArrivalAt:    trip.ArrivalAt,
		PricePerSeat: trip.PricePerSeat,
		Capacity:     trip.Capacity,
		Status:       string(trip.Status),
		CreatedAt:    trip.CreatedAt,
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, tripCachePrefix+trip.ID, data, TripCacheTTL).Err()
}

// InvalidateTrip removes a trip from cache.
func (s *CacheStore) InvalidateTrip(ctx context.Context, tripID string) error {
	return s.client.Del(ctx, tripCachePrefix+tripID).Err()
}
