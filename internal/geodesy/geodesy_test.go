package geodesy

import (
	"math"
	"testing"
)

// square builds a closed ring of side meters with its south-west corner at origin.
func square(origin LatLng, side float64) []LatLng {
	pl := NewPlane(origin)
	return []LatLng{
		pl.FromXY(0, 0),
		pl.FromXY(side, 0),
		pl.FromXY(side, side),
		pl.FromXY(0, side),
		pl.FromXY(0, 0),
	}
}

func TestHaversineMeters(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := HaversineMeters(LatLng{Lat: -6.2, Lng: 106.816}, LatLng{Lat: -6.9175, Lng: 107.6191})
	if d < 100000 || d > 140000 {
		t.Fatalf("unexpected distance: %v", d)
	}
	if HaversineMeters(LatLng{Lat: 1, Lng: 1}, LatLng{Lat: 1, Lng: 1}) != 0 {
		t.Fatalf("expected zero distance")
	}
}

func TestMetersPerDegree(t *testing.T) {
	mLat, mLon := MetersPerDegree(0)
	if mLat != 111111 || math.Abs(mLon-111111) > 1e-6 {
		t.Fatalf("unexpected equator scale: %v %v", mLat, mLon)
	}
	_, mLon = MetersPerDegree(60)
	if math.Abs(mLon-111111*0.5) > 1e-6 {
		t.Fatalf("unexpected scale at 60°: %v", mLon)
	}
}

func TestPolygonAreaSquare(t *testing.T) {
	ring := square(LatLng{Lat: 40.7, Lng: -74}, 120)
	area := PolygonAreaSqMeters(ring)
	if math.Abs(area-14400) > 1e-3 {
		t.Fatalf("unexpected area: %v", area)
	}
}

func TestPolygonAreaRotationAndReversal(t *testing.T) {
	origin := LatLng{Lat: 51.5, Lng: -0.12}
	pl := NewPlane(origin)
	open := []LatLng{pl.FromXY(0, 0), pl.FromXY(300, 20), pl.FromXY(260, 180), pl.FromXY(90, 240), pl.FromXY(-40, 110)}
	base := PolygonAreaSqMeters(open)
	if base <= 0 {
		t.Fatalf("expected positive area")
	}

	for shift := 1; shift < len(open); shift++ {
		rotated := append(append([]LatLng{}, open[shift:]...), open[:shift]...)
		if got := PolygonAreaSqMeters(rotated); math.Abs(got-base)/base > 1e-4 {
			t.Fatalf("rotation %d changed area: %v vs %v", shift, got, base)
		}
	}

	reversed := make([]LatLng, len(open))
	for i := range open {
		reversed[i] = open[len(open)-1-i]
	}
	if got := PolygonAreaSqMeters(reversed); math.Abs(got-base)/base > 1e-4 {
		t.Fatalf("reversal changed area: %v vs %v", got, base)
	}
}

func TestPolygonAreaTranslation(t *testing.T) {
	ring := square(LatLng{Lat: 10, Lng: 20}, 200)
	base := PolygonAreaSqMeters(ring)

	shifted := make([]LatLng, len(ring))
	for i, p := range ring {
		shifted[i] = LatLng{Lat: p.Lat + 0.0003, Lng: p.Lng - 0.0004}
	}
	if got := PolygonAreaSqMeters(shifted); math.Abs(got-base)/base > 1e-4 {
		t.Fatalf("translation changed area: %v vs %v", got, base)
	}
}

func TestPolygonAreaDegenerate(t *testing.T) {
	p := LatLng{Lat: 1, Lng: 1}
	q := LatLng{Lat: 1.001, Lng: 1}
	if PolygonAreaSqMeters(nil) != 0 {
		t.Fatalf("expected zero for empty ring")
	}
	if PolygonAreaSqMeters([]LatLng{p, q, p, q}) != 0 {
		t.Fatalf("expected zero for two distinct points")
	}
}

func TestDestinationRoundTrip(t *testing.T) {
	start := LatLng{Lat: 48.85, Lng: 2.35}
	end := Destination(start, 90, 8000)
	d := HaversineMeters(start, end)
	if math.Abs(d-8000) > 1 {
		t.Fatalf("unexpected destination distance: %v", d)
	}
	if end.Lng <= start.Lng {
		t.Fatalf("expected eastward move")
	}
}

func TestPlaneRoundTrip(t *testing.T) {
	pl := NewPlane(LatLng{Lat: -33.9, Lng: 151.2})
	p := pl.FromXY(123.4, -56.7)
	x, y := pl.ToXY(p)
	if math.Abs(x-123.4) > 1e-6 || math.Abs(y+56.7) > 1e-6 {
		t.Fatalf("unexpected round trip: %v %v", x, y)
	}
}
