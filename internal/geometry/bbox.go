package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	// MetersPerDegreeLat is the length of one degree of latitude.
	MetersPerDegreeLat = 111_320.0

	// MaxHalfSpanDegrees bounds each half side of a search box so a large
	// radius or a high latitude never turns into a country-wide query.
	MaxHalfSpanDegrees = 0.25

	// minCosLat keeps the longitude span finite near the poles.
	minCosLat = 0.01
)

// BoundingBox returns the box enclosing a circle of radiusMeters around center.
func BoundingBox(center orb.Point, radiusMeters float64) orb.Bound {
	if radiusMeters < 0 {
		radiusMeters = 0
	}

	latSpan := radiusMeters / MetersPerDegreeLat

	cosLat := math.Cos(center.Lat() * math.Pi / 180)
	if cosLat < minCosLat {
		cosLat = minCosLat
	}
	lonSpan := radiusMeters / (MetersPerDegreeLat * cosLat)

	latSpan = math.Min(latSpan, MaxHalfSpanDegrees)
	lonSpan = math.Min(lonSpan, MaxHalfSpanDegrees)

	return orb.Bound{
		Min: orb.Point{center.Lon() - lonSpan, math.Max(center.Lat()-latSpan, -90)},
		Max: orb.Point{center.Lon() + lonSpan, math.Min(center.Lat()+latSpan, 90)},
	}
}

// DistanceMeters is the great-circle distance between two points.
func DistanceMeters(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b)
}

// ValidPoint reports whether p holds a real-world longitude/latitude.
func ValidPoint(p orb.Point) bool {
	lon, lat := p.Lon(), p.Lat()
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// RoundCoordinate rounds v to the given number of decimals.
func RoundCoordinate(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
