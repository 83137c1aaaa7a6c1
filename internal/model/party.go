package model

import (
	"github.com/google/uuid"

	"github.com/mealbridge/dispatch-api/pkg/geo"
)

const (
	ReceiverStatusVerified = "verified"
	ReceiverStatusPending  = "pending"

	VolunteerStatusAvailable = "available"
	VolunteerStatusBusy      = "busy"
	VolunteerStatusOffline   = "offline"
)

// Receiver is a verified recipient organization. External entity; the engine
// only reads verified receivers at match time.
type Receiver struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	Lat                float64   `json:"lat" db:"lat"`
	Lng                float64   `json:"lng" db:"lng"`
	VerificationStatus string    `json:"verification_status" db:"verification_status"`
}

func (r *Receiver) Location() geo.Coordinate {
	return geo.Coordinate{Lat: r.Lat, Lng: r.Lng}
}

// Volunteer is a delivery volunteer. The engine reads availability and
// location for matching and the device token for best-effort pushes.
type Volunteer struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	Lat                float64   `json:"lat" db:"lat"`
	Lng                float64   `json:"lng" db:"lng"`
	AvailabilityStatus string    `json:"availability_status" db:"availability_status"`
	DeviceToken        *string   `json:"device_token,omitempty" db:"device_token"`
	Email              *string   `json:"email,omitempty" db:"email"`
}

func (v *Volunteer) Location() geo.Coordinate {
	return geo.Coordinate{Lat: v.Lat, Lng: v.Lng}
}
