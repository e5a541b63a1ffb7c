package geom

import (
	"math"

	"backend-territory/internal/geodesy"
)

type xy struct{ x, y float64 }

// IsSimple reports whether the open path ring (gate point first, latest
// point last) bounds a non-self-intersecting polygon. The closing edge back
// to the gate is not checked, and the first and last edges may cross each
// other near the gate, but never run along each other. A path that doubles
// back on itself is not simple. A closing duplicate of the gate point is
// ignored.
func IsSimple(ring []LatLng) bool {
	if len(ring) == 0 {
		return false
	}
	plane := geodesy.NewPlane(ring[0])
	pts := make([]xy, 0, len(ring))
	for _, p := range ring {
		x, y := plane.ToXY(p)
		q := xy{x, y}
		if len(pts) > 0 && pts[len(pts)-1] == q {
			continue
		}
		pts = append(pts, q)
	}
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return false
	}

	edges := len(pts) - 1
	for i := 0; i+2 < len(pts); i++ {
		if reverses(pts[i], pts[i+1], pts[i+2]) {
			return false
		}
	}
	for i := 0; i < edges; i++ {
		for j := i + 2; j < edges; j++ {
			if !segmentsIntersect(pts[i], pts[i+1], pts[j], pts[j+1]) {
				continue
			}
			if i == 0 && j == edges-1 && !collinear(pts[i], pts[i+1], pts[j], pts[j+1]) {
				continue
			}
			return false
		}
	}
	return true
}

// reverses reports whether the turn a→b→c folds straight back along a→b.
func reverses(a, b, c xy) bool {
	u := xy{b.x - a.x, b.y - a.y}
	v := xy{c.x - b.x, c.y - b.y}
	lu, lv := math.Hypot(u.x, u.y), math.Hypot(v.x, v.y)
	if lu == 0 || lv == 0 {
		return false
	}
	return math.Abs(u.x*v.y-u.y*v.x) <= collinearSin*lu*lv && u.x*v.x+u.y*v.y < 0
}

// collinear reports whether segments p1p2 and p3p4 lie on one line.
func collinear(p1, p2, p3, p4 xy) bool {
	l := math.Hypot(p2.x-p1.x, p2.y-p1.y)
	return math.Abs(cross(p1, p2, p3)) <= collinearSin*l*math.Hypot(p3.x-p1.x, p3.y-p1.y)+crossEps &&
		math.Abs(cross(p1, p2, p4)) <= collinearSin*l*math.Hypot(p4.x-p1.x, p4.y-p1.y)+crossEps
}

const (
	crossEps     = 1e-9
	collinearSin = 1e-7
)

func cross(a, b, c xy) float64 {
	return (b.x-a.x)*(c.y-a.y) - (b.y-a.y)*(c.x-a.x)
}

func onSegment(a, b, p xy) bool {
	return math.Min(a.x, b.x)-crossEps <= p.x && p.x <= math.Max(a.x, b.x)+crossEps &&
		math.Min(a.y, b.y)-crossEps <= p.y && p.y <= math.Max(a.y, b.y)+crossEps
}

// segmentsIntersect treats touching and collinear overlap as intersecting.
func segmentsIntersect(p1, p2, p3, p4 xy) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	if ((d1 > crossEps && d2 < -crossEps) || (d1 < -crossEps && d2 > crossEps)) &&
		((d3 > crossEps && d4 < -crossEps) || (d3 < -crossEps && d4 > crossEps)) {
		return true
	}
	switch {
	case math.Abs(d1) <= crossEps && onSegment(p3, p4, p1):
		return true
	case math.Abs(d2) <= crossEps && onSegment(p3, p4, p2):
		return true
	case math.Abs(d3) <= crossEps && onSegment(p1, p2, p3):
		return true
	case math.Abs(d4) <= crossEps && onSegment(p1, p2, p4):
		return true
	}
	return false
}

// IsSimpleRing reports whether a closed ring has no crossings between
// non-adjacent edges, including the closing edge, and never folds back on
// itself.
func IsSimpleRing(ring []LatLng) bool {
	if len(ring) == 0 {
		return false
	}
	plane := geodesy.NewPlane(ring[0])
	pts := make([]xy, 0, len(ring))
	for _, p := range ring {
		x, y := plane.ToXY(p)
		q := xy{x, y}
		if len(pts) > 0 && pts[len(pts)-1] == q {
			continue
		}
		pts = append(pts, q)
	}
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	n := len(pts)
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		if reverses(pts[i], pts[(i+1)%n], pts[(i+2)%n]) {
			return false
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsIntersect(pts[i], pts[i+1], pts[j], pts[(j+1)%n]) {
				return false
			}
		}
	}
	return true
}
