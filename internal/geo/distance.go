// Package geo holds the distance model and spatial helpers used by the dispatch engine.
package geo

import (
	"math"

	"fieldroute/internal/model"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push a just past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Distance is HaversineKm over two coordinates.
func Distance(a, b model.Coordinate) float64 {
	if a == b {
		return 0
	}
	return HaversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

// PathKm sums consecutive leg distances of an open path.
func PathKm(stops []model.Location) float64 {
	total := 0.0
	for i := 0; i+1 < len(stops); i++ {
		total += Distance(stops[i].Coordinate, stops[i+1].Coordinate)
	}
	return total
}

// DriveMinutes converts a distance to minutes at a constant speed.
func DriveMinutes(km, speedKph float64) float64 {
	if speedKph <= 0 {
		return 0
	}
	return km / speedKph * 60
}
