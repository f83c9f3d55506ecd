package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideshare/internal/domain"
)

func TestCacheStore_GetTrip_Miss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewCacheStore(client)

	mock.ExpectGet("cache:trip:trip-1").RedisNil()

	trip, err := store.GetTrip(context.Background(), "trip-1")

	require.NoError(t, err)
	assert.Nil(t, trip)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_SetThenGetTrip(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewCacheStore(client)
	ctx := context.Background()

	departAt := time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC)
	trip := &domain.Trip{
		ID:           "trip-1",
		DriverID:     "driver-1",
		Departure:    "Tunis",
		Arrival:      "Sousse",
		DepartureAt:  departAt,
		PricePerSeat: 12.5,
		Capacity:     3,
		Status:       domain.TripStatusActive,
		CreatedAt:    departAt.Add(-time.Hour),
	}
	data, err := json.Marshal(CachedTrip{
		ID:           trip.ID,
		DriverID:     trip.DriverID,
		Departure:    trip.Departure,
		Arrival:      trip.Arrival,
		DepartureAt:  trip.DepartureAt,
		PricePerSeat: trip.PricePerSeat,
		Capacity:     trip.Capacity,
		Status:       string(trip.Status),
		CreatedAt:    trip.CreatedAt,
	})
	require.NoError(t, err)

	mock.ExpectSet("cache:trip:trip-1", data, TripCacheTTL).SetVal("OK")
	mock.ExpectGet("cache:trip:trip-1").SetVal(string(data))

	require.NoError(t, store.SetTrip(ctx, trip))

	cached, err := store.GetTrip(ctx, "trip-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, trip.Capacity, cached.Capacity)
	assert.Equal(t, domain.TripStatusActive, cached.Status)
	assert.True(t, trip.DepartureAt.Equal(cached.DepartureAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_InvalidateTrip(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewCacheStore(client)

	mock.ExpectDel("cache:trip:trip-1").SetVal(1)

	require.NoError(t, store.InvalidateTrip(context.Background(), "trip-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
