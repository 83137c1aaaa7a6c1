// Package geo provides great-circle distance math and nearest-candidate
// selection over small candidate sets. Selection is a linear scan; callers
// that outgrow it can swap in a spatial index behind the same contract.
package geo

import "math"

// earthRadiusKm is the mean radius of the Earth.
const earthRadiusKm = 6371.0

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Candidate pairs an identifier with a location for selection.
type Candidate struct {
	ID       string
	Location Coordinate
}

// DistanceKm returns the haversine great-circle distance between a and b
// in kilometers. Symmetric, zero for identical points.
func DistanceKm(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// NearestWithin returns the candidate closest to center among those within
// radiusKm. A radius of zero or less means unbounded. The second return is
// false when the set is empty or no candidate falls inside the radius.
// Ties go to the first candidate in input order.
func NearestWithin(center Coordinate, candidates []Candidate, radiusKm float64) (Candidate, bool) {
	var nearest Candidate
	minDist := math.Inf(1)
	found := false

	for _, c := range candidates {
		d := DistanceKm(center, c.Location)
		if radiusKm > 0 && d > radiusKm {
			continue
		}
		if d < minDist {
			minDist = d
			nearest = c
			found = true
		}
	}

	return nearest, found
}
