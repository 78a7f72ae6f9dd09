// Package geo provides the great-circle and travel-time math behind the ETA tool.
package geo

import "math"

const (
	// EarthRadiusKm is the mean Earth radius used by Haversine.
	EarthRadiusKm = 6371.0

	// NearStopKm is the distance under which a bus counts as arriving.
	NearStopKm = 0.1
	// NearStopETASec is the ETA reported for a bus inside NearStopKm.
	NearStopETASec = 120

	// DefaultSpeedKmph applies when no usable speed is known.
	DefaultSpeedKmph = 25.0

	minSpeedMps = 0.1
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// HaversineKm returns the great-circle distance between a and b in kilometres.
func HaversineKm(a, b Point) float64 {
	phi1 := radians(a.Lat)
	phi2 := radians(b.Lat)
	dPhi := radians(b.Lat - a.Lat)
	dLambda := radians(b.Lon - a.Lon)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(math.Min(1, h)))
}

// TravelSeconds returns whole seconds needed to cover distanceKm at speedKmph.
// Speeds are clamped to 0.1 m/s so a stalled bus yields a large but finite value.
func TravelSeconds(distanceKm, speedKmph float64) int {
	mps := math.Max(speedKmph*1000/3600, minSpeedMps)
	return int(distanceKm * 1000 / mps)
}

// ETASeconds applies the arrival rule on top of TravelSeconds: inside
// NearStopKm the ETA is NearStopETASec regardless of speed.
// A non-positive or non-finite speed is replaced by DefaultSpeedKmph.
func ETASeconds(distanceKm, speedKmph float64) int {
	if distanceKm < NearStopKm {
		return NearStopETASec
	}
	return TravelSeconds(distanceKm, NormalizeSpeed(speedKmph))
}

// NormalizeSpeed substitutes DefaultSpeedKmph for unusable speed readings.
func NormalizeSpeed(speedKmph float64) float64 {
	if speedKmph <= 0 || math.IsNaN(speedKmph) || math.IsInf(speedKmph, 0) {
		return DefaultSpeedKmph
	}
	return speedKmph
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
