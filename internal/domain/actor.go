package domain

// Role identifies who is acting on a reservation.
type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePassenger, RoleDriver, RoleSystem:
		return true
	}
	return false
}

// Actor is the resolved caller of an operation. It is built once per
// request from the session token and passed down explicitly.
type Actor struct {
	Role   Role
	UserID string
}

// SystemActor is used by background workers and trip status cascades.
func SystemActor() Actor {
	return Actor{Role: RoleSystem, UserID: "system"}
}

// IsSystem reports whether the actor is the engine itself.
func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem
}

// IsPassenger reports whether the actor is the given passenger.
func (a Actor) IsPassenger(passengerID string) bool {
	return a.Role == RolePassenger && a.UserID != "" && a.UserID == passengerID
}

// IsDriverOf reports whether the actor is the driver who owns the trip.
func (a Actor) IsDriverOf(trip *Trip) bool {
	return a.Role == RoleDriver && trip != nil && trip.OwnedBy(a.UserID)
}
