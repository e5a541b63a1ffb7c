// Package geodesy converts between geographic coordinates and local planar
// meters and measures distances and areas on small (city scale) extents.
package geodesy

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	// MetersPerDegreeLat is the flat scale for one degree of latitude.
	MetersPerDegreeLat = 111111.0
	EarthRadiusMeters  = 6371000.0
)

// LatLng is a geographic position in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) IsFinite() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) && !math.IsInf(p.Lat, 0) && !math.IsInf(p.Lng, 0)
}

func (p LatLng) InRange() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// MetersPerDegree returns the local scale factors for small latitude and
// longitude deltas around latitude. Not meaningful beyond roughly ±85°.
func MetersPerDegree(latitude float64) (mLat, mLon float64) {
	return MetersPerDegreeLat, MetersPerDegreeLat * math.Cos(latitude*math.Pi/180)
}

// HaversineMeters is the great-circle distance between a and b.
func HaversineMeters(a, b LatLng) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// Destination moves p by meters along bearing (degrees clockwise from north).
func Destination(p LatLng, bearingDeg, meters float64) LatLng {
	start := s2.LatLngFromDegrees(p.Lat, p.Lng)
	bearing := bearingDeg * math.Pi / 180
	angular := meters / EarthRadiusMeters

	lat1 := start.Lat.Radians()
	lng1 := start.Lng.Radians()

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(bearing))
	lng2 := lng1 + math.Atan2(
		math.Sin(bearing)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2))

	out := s2.LatLngFromDegrees(lat2*180/math.Pi, lng2*180/math.Pi).Normalized()
	return LatLng{Lat: out.Lat.Degrees(), Lng: out.Lng.Degrees()}
}

// Plane is an equirectangular tangent plane centred on Origin. X grows east,
// Y grows north, both in meters.
type Plane struct {
	Origin LatLng
	mLat   float64
	mLon   float64
}

func NewPlane(origin LatLng) Plane {
	mLat, mLon := MetersPerDegree(origin.Lat)
	return Plane{Origin: origin, mLat: mLat, mLon: mLon}
}

func (pl Plane) ToXY(p LatLng) (x, y float64) {
	return (p.Lng - pl.Origin.Lng) * pl.mLon, (p.Lat - pl.Origin.Lat) * pl.mLat
}

func (pl Plane) FromXY(x, y float64) LatLng {
	lng := pl.Origin.Lng
	if pl.mLon != 0 {
		lng += x / pl.mLon
	}
	return LatLng{Lat: pl.Origin.Lat + y/pl.mLat, Lng: lng}
}

// PolygonAreaSqMeters is the planar area enclosed by ring, projected around
// its first point. The ring may be open or closed; orientation is ignored.
// Rings with fewer than three distinct points have zero area.
func PolygonAreaSqMeters(ring []LatLng) float64 {
	if distinctCount(ring, 3) < 3 {
		return 0
	}
	plane := NewPlane(ring[0])

	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		x1, y1 := plane.ToXY(ring[i])
		x2, y2 := plane.ToXY(ring[(i+1)%n])
		sum += x1*y2 - x2*y1
	}
	return math.Abs(sum) / 2
}

// distinctCount counts distinct positions in ring, stopping early at limit.
func distinctCount(ring []LatLng, limit int) int {
	seen := make([]LatLng, 0, limit)
	for _, p := range ring {
		dup := false
		for _, q := range seen {
			if p == q {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, p)
			if len(seen) >= limit {
				break
			}
		}
	}
	return len(seen)
}
