// Package routing resolves a displayable route between two points through an
// ordered chain of strategies. The chain always terminates in a straight-line
// strategy, so a route view is never empty when both endpoints are known.
package routing

import (
	"fmt"
	"math"
)

// Point is a plain coordinate pair, decoupled from the GeoJSON wire shape.
type Point struct {
	Lat float64
	Lng float64
}

// Route is the resolved path plus distance/ETA. Source names the strategy
// that produced it.
type Route struct {
	Points          []Point
	DistanceMeters  int
	DurationSeconds int
	DistanceText    string
	DurationText    string
	Source          string
}

// Travel modes and their assumed average speeds in km/h.
const (
	ModeWalking = "walking"
	ModeCycling = "cycling"
	ModeDriving = "driving"
)

var modeSpeeds = map[string]float64{
	ModeWalking: 5,
	ModeCycling: 15,
	ModeDriving: 50,
}

const earthRadiusKm = 6371

// haversineKm returns the great-circle distance between two points.
func haversineKm(a, b Point) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

func toRadians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}

// estimateDuration converts a straight-line distance to an ETA with a 20%
// buffer for actual road routing.
func estimateDuration(distanceKm float64, mode string) int {
	speed, ok := modeSpeeds[mode]
	if !ok {
		speed = modeSpeeds[ModeDriving]
	}

	adjusted := distanceKm * 1.2
	return int(math.Round(adjusted / speed * 3600))
}

func formatDistance(meters int) string {
	return fmt.Sprintf("%.1f km", float64(meters)/1000)
}

func formatDuration(seconds int) string {
	minutes := int(math.Round(float64(seconds) / 60))
	if minutes < 60 {
		return fmt.Sprintf("%d mins", minutes)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
