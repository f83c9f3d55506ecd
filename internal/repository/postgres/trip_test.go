package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rideshare/internal/domain"
	"rideshare/internal/repository"
)

var tripRowColumns = []string{
	"id", "driver_id", "departure", "arrival", "departure_at", "arrival_at",
	"price_per_seat", "capacity", "status", "created_at",
}

func TestTripRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTripRepository(db)

	departAt := time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM trips WHERE id = \$1`).
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows(tripRowColumns).AddRow(
			"trip-1", "driver-1", "Tunis", "Sousse", departAt, nil, 12.5, 3, "active", departAt.Add(-24*time.Hour),
		))

	trip, err := repo.GetByID(context.Background(), "trip-1")

	require.NoError(t, err)
	assert.Equal(t, "driver-1", trip.DriverID)
	assert.Equal(t, 3, trip.Capacity)
	assert.Equal(t, domain.TripStatusActive, trip.Status)
	assert.True(t, trip.ArrivalAt.IsZero())
	assert.True(t, trip.IsBookable())
}

func TestTripRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTripRepository(db)

	mock.ExpectQuery(`FROM trips WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTripRepository_ListByDriver(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTripRepository(db)

	departAt := time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE driver_id = \$1`).
		WithArgs("driver-1").
		WillReturnRows(sqlmock.NewRows(tripRowColumns).
			AddRow("trip-2", "driver-1", "Sousse", "Sfax", departAt.Add(48*time.Hour), nil, 9.0, 4, "active", departAt).
			AddRow("trip-1", "driver-1", "Tunis", "Sousse", departAt, departAt.Add(2*time.Hour), 12.5, 3, "completed", departAt))

	trips, err := repo.ListByDriver(context.Background(), "driver-1")

	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, "trip-2", trips[0].ID)
	assert.Equal(t, departAt.Add(2*time.Hour), trips[1].ArrivalAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTripRepository_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTripRepository(db)

	mock.ExpectExec(`UPDATE trips SET status = \$1 WHERE id = \$2`).
		WithArgs(domain.TripStatusCancelled, "trip-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE trips SET status = \$1 WHERE id = \$2`).
		WithArgs(domain.TripStatusCancelled, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateStatus(context.Background(), "trip-1", domain.TripStatusCancelled))
	assert.ErrorIs(t, repo.UpdateStatus(context.Background(), "missing", domain.TripStatusCancelled), repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock := newMockDB(t)

	for range schema {
		mock.ExpectExec(`CREATE`).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
