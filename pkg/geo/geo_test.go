package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	delhi := Coordinate{Lat: 28.61, Lng: 77.21}
	mumbai := Coordinate{Lat: 19.076, Lng: 72.8777}

	d := DistanceKm(delhi, mumbai)
	assert.InDelta(t, 1153, d, 15, "Delhi-Mumbai great-circle distance")

	assert.Equal(t, DistanceKm(delhi, mumbai), DistanceKm(mumbai, delhi), "distance must be symmetric")
	assert.Zero(t, DistanceKm(delhi, delhi))
}

func TestDistanceKmShortRange(t *testing.T) {
	a := Coordinate{Lat: 28.61, Lng: 77.21}
	b := Coordinate{Lat: 28.62, Lng: 77.20}

	d := DistanceKm(a, b)
	assert.Greater(t, d, 0.0)
	assert.Less(t, d, 2.0)
}

func TestNearestWithin(t *testing.T) {
	center := Coordinate{Lat: 28.61, Lng: 77.21}
	candidates := []Candidate{
		{ID: "far", Location: Coordinate{Lat: 28.70, Lng: 77.30}},
		{ID: "near", Location: Coordinate{Lat: 28.62, Lng: 77.20}},
	}

	got, ok := NearestWithin(center, candidates, 10)
	assert.True(t, ok)
	assert.Equal(t, "near", got.ID)
}

func TestNearestWithinEmptySet(t *testing.T) {
	_, ok := NearestWithin(Coordinate{}, nil, 10)
	assert.False(t, ok)
}

func TestNearestWithinNoneInRadius(t *testing.T) {
	center := Coordinate{Lat: 28.61, Lng: 77.21}
	candidates := []Candidate{
		{ID: "mumbai", Location: Coordinate{Lat: 19.076, Lng: 72.8777}},
	}

	_, ok := NearestWithin(center, candidates, 10)
	assert.False(t, ok)
}

func TestNearestWithinUnbounded(t *testing.T) {
	center := Coordinate{Lat: 28.61, Lng: 77.21}
	candidates := []Candidate{
		{ID: "mumbai", Location: Coordinate{Lat: 19.076, Lng: 72.8777}},
	}

	got, ok := NearestWithin(center, candidates, 0)
	assert.True(t, ok)
	assert.Equal(t, "mumbai", got.ID)
}

func TestNearestWithinTieBreaksFirst(t *testing.T) {
	center := Coordinate{Lat: 28.61, Lng: 77.21}
	same := Coordinate{Lat: 28.62, Lng: 77.22}
	candidates := []Candidate{
		{ID: "first", Location: same},
		{ID: "second", Location: same},
	}

	got, ok := NearestWithin(center, candidates, 10)
	assert.True(t, ok)
	assert.Equal(t, "first", got.ID)
}
