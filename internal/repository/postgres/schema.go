package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trips (
		id             TEXT PRIMARY KEY,
		driver_id      TEXT NOT NULL,
		departure      TEXT NOT NULL,
		arrival        TEXT NOT NULL,
		departure_at   TIMESTAMPTZ NOT NULL,
		arrival_at     TIMESTAMPTZ,
		price_per_seat NUMERIC(10,2) NOT NULL DEFAULT 0,
		capacity       INTEGER NOT NULL CHECK (capacity >= 0),
		status         TEXT NOT NULL DEFAULT 'active',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS trips_driver_idx ON trips (driver_id, departure_at DESC)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id                TEXT PRIMARY KEY,
		trip_id           TEXT NOT NULL REFERENCES trips (id),
		passenger_id      TEXT NOT NULL,
		passenger_name    TEXT NOT NULL,
		passenger_phone   TEXT NOT NULL,
		passenger_address TEXT,
		payment_method    TEXT NOT NULL,
		payment_status    TEXT NOT NULL,
		status            TEXT NOT NULL,
		refund_pending    BOOLEAN NOT NULL DEFAULT FALSE,
		payment_intent_id TEXT,
		payment_deadline  TIMESTAMPTZ,
		cancel_reason     TEXT,
		created_at        TIMESTAMPTZ NOT NULL,
		decided_at        TIMESTAMPTZ,
		updated_at        TIMESTAMPTZ NOT NULL,
		version           INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS reservations_held_idx ON reservations (trip_id)
		WHERE status IN ('awaiting_payment', 'pending', 'accepted')`,
	`CREATE INDEX IF NOT EXISTS reservations_passenger_idx ON reservations (passenger_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS reservations_deadline_idx ON reservations (payment_deadline)
		WHERE status = 'awaiting_payment'`,
	`CREATE TABLE IF NOT EXISTS payments (
		id              TEXT PRIMARY KEY,
		reservation_id  TEXT NOT NULL UNIQUE REFERENCES reservations (id),
		intent_id       TEXT NOT NULL UNIQUE,
		client_secret   TEXT,
		amount          NUMERIC(10,2) NOT NULL,
		status          TEXT NOT NULL,
		refund_id       TEXT,
		failure_reason  TEXT,
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables and indexes the service needs if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
