package service

import (
	"context"
	"errors"
	"fmt"

	"rideshare/internal/domain"
	"rideshare/internal/repository"
)

// maxVersionRetries bounds how often a conflicting write is re-read and re-applied.
const maxVersionRetries = 5

// errNoChange lets a mutation report that the reservation is already in the
// wanted shape and nothing needs to be written.
var errNoChange = errors.New("no change")

// mutateReservation reads the reservation, applies fn and writes it with an
// optimistic version check, retrying on conflict. fn sees the freshest copy
// on every attempt. changed is false when fn returned errNoChange.
func mutateReservation(
	ctx context.Context,
	repo repository.ReservationRepository,
	id string,
	fn func(r *domain.Reservation) error,
) (r *domain.Reservation, changed bool, err error) {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		r, err = repo.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}

		if err = fn(r); err != nil {
			if errors.Is(err, errNoChange) {
				return r, false, nil
			}
			return r, false, err
		}

		err = repo.Update(ctx, r)
		if err == nil {
			return r, true, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("reservation %s: %w", id, repository.ErrVersionConflict)
}
