package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when a reservation was modified since it was read.
	ErrVersionConflict = errors.New("reservation was modified concurrently")

	// ErrCapacityReached is returned when a trip has no free seat left for a new hold.
	ErrCapacityReached = errors.New("trip capacity reached")

	// ErrDuplicate is returned when an insert hits a unique constraint.
	ErrDuplicate = errors.New("entity already exists")
)
