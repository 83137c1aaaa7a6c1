package model

import (
	"github.com/google/uuid"

	"github.com/mealbridge/dispatch-api/pkg/geo"
)

type ListingStatus string

const (
	ListingStatusOpen    ListingStatus = "open"
	ListingStatusMatched ListingStatus = "matched"
	ListingStatusClosed  ListingStatus = "closed"
)

// Listing is a donor's published surplus-food offer. The engine only reads
// it once, at match time; the authoring subsystem owns it.
type Listing struct {
	ID      uuid.UUID     `json:"id" db:"id"`
	DonorID uuid.UUID     `json:"donor_id" db:"donor_id"`
	Lat     *float64      `json:"lat" db:"lat"`
	Lng     *float64      `json:"lng" db:"lng"`
	Title   string        `json:"title" db:"title"`
	Status  ListingStatus `json:"status" db:"status"`
}

// Location returns the listing coordinate and whether it is well formed.
func (l *Listing) Location() (geo.Coordinate, bool) {
	if l.Lat == nil || l.Lng == nil {
		return geo.Coordinate{}, false
	}
	if *l.Lat < -90 || *l.Lat > 90 || *l.Lng < -180 || *l.Lng > 180 {
		return geo.Coordinate{}, false
	}
	return geo.Coordinate{Lat: *l.Lat, Lng: *l.Lng}, true
}

// ListingCreatedEvent is the broker payload consumed by the matching engine.
// Delivery is at least once; the engine's idempotency guard absorbs replays.
type ListingCreatedEvent struct {
	ID      uuid.UUID `json:"id"`
	DonorID uuid.UUID `json:"donor_id"`
	Lat     *float64  `json:"lat"`
	Lng     *float64  `json:"lng"`
	Title   string    `json:"title"`
	Status  string    `json:"status"`
}
