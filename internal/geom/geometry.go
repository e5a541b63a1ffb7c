// Package geom is the planar polygon engine behind territory claims: a
// Ring/MultiRing geometry variant stored as lng/lat orb values, set
// difference and intersection on a local tangent plane, and GeoJSON IO.
package geom

import (
	"errors"
	"fmt"

	"backend-territory/internal/geodesy"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// AreaTolerance is the area (m²) under which a clipped piece or an overlap
// counts as numeric noise.
const AreaTolerance = 0.01

type LatLng = geodesy.LatLng

// Kind tags the shape held by a Geometry.
type Kind int

const (
	KindEmpty Kind = iota
	KindRing
	KindMultiRing
)

func (k Kind) String() string {
	switch k {
	case KindRing:
		return "ring"
	case KindMultiRing:
		return "multi_ring"
	default:
		return "empty"
	}
}

var ErrEmptyGeometry = errors.New("geometry is empty")

// ValidationError reports a ring that cannot describe a claimable region.
type ValidationError struct {
	Ring   int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ring %d: %s", e.Ring, e.Reason)
}

// GeometryError reports a failure of the clipping engine.
type GeometryError struct {
	Op  string
	Err error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry %s: %v", e.Op, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

// Geometry is a set of polygons, each an outer ring followed by its holes.
// Points are orb.Point{lng, lat} and rings are closed.
type Geometry struct {
	mp orb.MultiPolygon
}

func FromMultiPolygon(mp orb.MultiPolygon) Geometry {
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		if len(poly) > 0 && len(poly[0]) > 0 {
			out = append(out, poly)
		}
	}
	return Geometry{mp: out}
}

// FromRings builds a geometry where every ring is an outer boundary.
func FromRings(rings [][]LatLng) (Geometry, error) {
	if len(rings) == 0 {
		return Geometry{}, &ValidationError{Reason: "no rings"}
	}
	mp := make(orb.MultiPolygon, 0, len(rings))
	for i, ring := range rings {
		if err := ValidateRing(ring); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				verr.Ring = i
			}
			return Geometry{}, err
		}
		mp = append(mp, orb.Polygon{toOrbRing(ring)})
	}
	return Geometry{mp: mp}, nil
}

// ValidateRing checks that ring is closed, finite, in range and spans at
// least three distinct positions.
func ValidateRing(ring []LatLng) error {
	if len(ring) < 4 {
		return &ValidationError{Reason: "ring needs at least 4 positions"}
	}
	for _, p := range ring {
		if !p.IsFinite() {
			return &ValidationError{Reason: "non-finite coordinate"}
		}
		if !p.InRange() {
			return &ValidationError{Reason: "coordinate out of range"}
		}
	}
	if ring[0] != ring[len(ring)-1] {
		return &ValidationError{Reason: "ring is not closed"}
	}
	distinct := map[LatLng]struct{}{}
	for _, p := range ring {
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return &ValidationError{Reason: "ring needs at least 3 distinct points"}
	}
	return nil
}

func (g Geometry) Kind() Kind {
	switch len(g.mp) {
	case 0:
		return KindEmpty
	case 1:
		return KindRing
	default:
		return KindMultiRing
	}
}

func (g Geometry) IsEmpty() bool { return len(g.mp) == 0 }

func (g Geometry) MultiPolygon() orb.MultiPolygon { return g.mp }

func (g Geometry) Bound() orb.Bound { return g.mp.Bound() }

// OuterRings returns the outer boundary of every polygon as lat/lng rings.
func (g Geometry) OuterRings() [][]LatLng {
	rings := make([][]LatLng, 0, len(g.mp))
	for _, poly := range g.mp {
		rings = append(rings, fromOrbRing(poly[0]))
	}
	return rings
}

// HoleCount is the number of inner rings across all polygons.
func (g Geometry) HoleCount() int {
	n := 0
	for _, poly := range g.mp {
		n += len(poly) - 1
	}
	return n
}

// Area is the sum of outer ring areas minus their holes, in m².
func Area(g Geometry) float64 {
	var total float64
	for _, poly := range g.mp {
		a := geodesy.PolygonAreaSqMeters(fromOrbRing(poly[0]))
		for _, hole := range poly[1:] {
			a -= geodesy.PolygonAreaSqMeters(fromOrbRing(hole))
		}
		if a > 0 {
			total += a
		}
	}
	return total
}

func (g Geometry) orbGeometry() orb.Geometry {
	if g.Kind() == KindRing {
		return g.mp[0]
	}
	return g.mp
}

// MarshalJSON encodes the geometry as a GeoJSON Polygon or MultiPolygon.
func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.IsEmpty() {
		return []byte("null"), nil
	}
	return geojson.NewGeometry(g.orbGeometry()).MarshalJSON()
}

// UnmarshalJSON accepts a GeoJSON Polygon or MultiPolygon.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*g = Geometry{}
		return nil
	}
	decoded, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return err
	}
	switch v := decoded.Geometry().(type) {
	case orb.Polygon:
		*g = FromMultiPolygon(orb.MultiPolygon{v})
	case orb.MultiPolygon:
		*g = FromMultiPolygon(v)
	default:
		return fmt.Errorf("unsupported geometry type %q", decoded.Type)
	}
	return nil
}

func toOrbRing(ring []LatLng) orb.Ring {
	out := make(orb.Ring, len(ring))
	for i, p := range ring {
		out[i] = orb.Point{p.Lng, p.Lat}
	}
	return out
}

func fromOrbRing(ring orb.Ring) []LatLng {
	out := make([]LatLng, len(ring))
	for i, p := range ring {
		out[i] = LatLng{Lat: p[1], Lng: p[0]}
	}
	return out
}
