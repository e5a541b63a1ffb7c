package geom

import (
	"fmt"
	"math"
	"sort"

	"backend-territory/internal/geodesy"

	polyclip "github.com/ctessum/polyclip-go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Difference returns a minus b.
func Difference(a, b Geometry) (Geometry, error) {
	if a.IsEmpty() {
		return Geometry{}, nil
	}
	if b.IsEmpty() || !a.Bound().Intersects(b.Bound()) {
		return a, nil
	}
	return clip(a, b, polyclip.DIFFERENCE, "difference")
}

// Intersection returns the area shared by a and b.
func Intersection(a, b Geometry) (Geometry, error) {
	if a.IsEmpty() || b.IsEmpty() || !a.Bound().Intersects(b.Bound()) {
		return Geometry{}, nil
	}
	return clip(a, b, polyclip.INTERSECTION, "intersection")
}

// Intersects reports whether a and b overlap by more than AreaTolerance.
// Shared edges or vertices alone do not count.
func Intersects(a, b Geometry) (bool, error) {
	shared, err := Intersection(a, b)
	if err != nil {
		return false, err
	}
	return Area(shared) > AreaTolerance, nil
}

func clip(a, b Geometry, op polyclip.Op, name string) (out Geometry, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = Geometry{}
			err = &GeometryError{Op: name, Err: fmt.Errorf("clipping engine panic: %v", r)}
		}
	}()

	centre := a.Bound().Union(b.Bound()).Center()
	plane := geodesy.NewPlane(LatLng{Lat: centre[1], Lng: centre[0]})

	subject := toContours(a, plane)
	clipping := toContours(b, plane)
	result := subject.Construct(op, clipping)
	return fromContours(result, plane), nil
}

func toContours(g Geometry, plane geodesy.Plane) polyclip.Polygon {
	var poly polyclip.Polygon
	for _, p := range g.mp {
		for _, ring := range p {
			n := len(ring)
			if n > 1 && ring[0] == ring[n-1] {
				n--
			}
			contour := make(polyclip.Contour, 0, n)
			for _, pt := range ring[:n] {
				x, y := plane.ToXY(LatLng{Lat: pt[1], Lng: pt[0]})
				contour = append(contour, polyclip.Point{X: x, Y: y})
			}
			if len(contour) >= 3 {
				poly = append(poly, contour)
			}
		}
	}
	return poly
}

type piece struct {
	ring  orb.Ring
	area  float64
	depth int
}

// fromContours rebuilds polygons from the engine's flat contour list: a
// contour nested inside an odd number of others is a hole of the smallest
// outer contour that contains it.
func fromContours(result polyclip.Polygon, plane geodesy.Plane) Geometry {
	pieces := make([]piece, 0, len(result))
	for _, c := range result {
		if len(c) < 3 {
			continue
		}
		ring := make(orb.Ring, 0, len(c)+1)
		for _, pt := range c {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		ring = append(ring, ring[0])
		area := signedArea(ring)
		if math.Abs(area) < AreaTolerance {
			continue
		}
		pieces = append(pieces, piece{ring: ring, area: area})
	}

	for i := range pieces {
		probe := interiorProbe(pieces[i].ring, pieces[i].area)
		for j := range pieces {
			if i != j && planar.RingContains(pieces[j].ring, probe) {
				pieces[i].depth++
			}
		}
	}

	sort.SliceStable(pieces, func(i, j int) bool {
		return math.Abs(pieces[i].area) > math.Abs(pieces[j].area)
	})

	var outers []int
	polys := map[int]orb.Polygon{}
	for i, p := range pieces {
		if p.depth%2 == 0 {
			outers = append(outers, i)
			polys[i] = orb.Polygon{p.ring}
		}
	}
	for i, p := range pieces {
		if p.depth%2 == 0 {
			continue
		}
		probe := interiorProbe(p.ring, p.area)
		parent := -1
		for _, o := range outers {
			if planar.RingContains(pieces[o].ring, probe) {
				if parent < 0 || math.Abs(pieces[o].area) < math.Abs(pieces[parent].area) {
					parent = o
				}
			}
		}
		if parent >= 0 {
			polys[parent] = append(polys[parent], pieces[i].ring)
		}
	}

	mp := make(orb.MultiPolygon, 0, len(outers))
	for _, o := range outers {
		poly := polys[o]
		geo := make(orb.Polygon, len(poly))
		for k, ring := range poly {
			geo[k] = unproject(ring, plane)
		}
		mp = append(mp, geo)
	}
	return Geometry{mp: mp}
}

func unproject(ring orb.Ring, plane geodesy.Plane) orb.Ring {
	out := make(orb.Ring, len(ring))
	for i, pt := range ring {
		ll := plane.FromXY(pt[0], pt[1])
		out[i] = orb.Point{ll.Lng, ll.Lat}
	}
	return out
}

func signedArea(ring orb.Ring) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return sum / 2
}

// interiorProbe is a point just inside ring next to the midpoint of its
// longest edge.
func interiorProbe(ring orb.Ring, signed float64) orb.Point {
	best, bestLen := 0, -1.0
	for i := 0; i+1 < len(ring); i++ {
		dx, dy := ring[i+1][0]-ring[i][0], ring[i+1][1]-ring[i][1]
		if l := dx*dx + dy*dy; l > bestLen {
			best, bestLen = i, l
		}
	}
	a, b := ring[best], ring[best+1]
	dx, dy := b[0]-a[0], b[1]-a[1]
	length := math.Sqrt(dx*dx + dy*dy)
	mid := orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
	if length == 0 {
		return mid
	}
	// left normal points inward for counter-clockwise rings
	nx, ny := -dy/length, dx/length
	if signed < 0 {
		nx, ny = -nx, -ny
	}
	const nudge = 1e-4
	return orb.Point{mid[0] + nx*nudge, mid[1] + ny*nudge}
}
