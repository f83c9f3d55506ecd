package domain

import "time"

// TripStatus represents the lifecycle status of a published trip.
type TripStatus string

const (
	TripStatusActive    TripStatus = "active"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
)

// Trip is a driver-published journey with a fixed number of seats.
type Trip struct {
	ID           string
	DriverID     string
	Departure    string
	Arrival      string
	DepartureAt  time.Time
	ArrivalAt    time.Time
	PricePerSeat float64
	Capacity     int
	Status       TripStatus
	CreatedAt    time.Time
}

// IsBookable reports whether new seat holds may be taken on the trip.
func (t *Trip) IsBookable() bool {
	return t.Status == TripStatusActive
}

// OwnedBy reports whether driverID published the trip.
func (t *Trip) OwnedBy(driverID string) bool {
	return driverID != "" && t.DriverID == driverID
}
