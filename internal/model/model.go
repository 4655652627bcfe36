package model

import (
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Valid reports whether the coordinate lies inside the legal degree ranges.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// DistanceKm returns the great-circle (haversine) distance to other.
func (c Coordinate) DistanceKm(other Coordinate) float64 {
	lat1 := c.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (other.Longitude - c.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Event is a single running event as shown to the user. Values are treated
// as immutable once built; identity is the ID alone.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Date carries the time of day as well; calendar views only look at
	// its day in the display timezone.
	Date time.Time `json:"date"`

	// Location is free text as published by the organiser, not geocoded.
	Location string `json:"location,omitempty"`
	URL      string `json:"url,omitempty"`

	// DistanceKm is 0 when unknown.
	DistanceKm float64 `json:"distance_km,omitempty"`

	Coordinates *Coordinate `json:"coordinates,omitempty"`
}

// Same reports whether e and other refer to the same event.
func (e Event) Same(other Event) bool {
	return e.ID == other.ID
}
