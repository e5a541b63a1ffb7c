package loop

import (
	"errors"
	"math"
	"testing"

	"backend-territory/internal/geodesy"
)

var origin = geodesy.LatLng{Lat: 52.52, Lng: 13.405}

// path converts meter offsets (east, north) around origin into timed points.
func path(offsets ...[2]float64) []GpsPoint {
	pl := geodesy.NewPlane(origin)
	points := make([]GpsPoint, len(offsets))
	for i, o := range offsets {
		ll := pl.FromXY(o[0], o[1])
		points[i] = GpsPoint{Latitude: ll.Lat, Longitude: ll.Lng, TimestampMs: int64(1000 * (i + 1))}
	}
	return points
}

func testConfig() Config {
	return Config{MinStepMeters: 5, ClosureRadiusMeters: 20, MinPointsForLoop: 4, MinAreaSqMeters: 1000}
}

func TestSquareClosesOneLoop(t *testing.T) {
	points := path([2]float64{0, 0}, [2]float64{120, 0}, [2]float64{120, -120}, [2]float64{0, -120}, [2]float64{0, 0})
	loops, stats, err := Detect(testConfig(), points)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(loops) != 1 {
		t.Fatalf("expected one loop, got %d", len(loops))
	}
	if math.Abs(loops[0].AreaSqMeters-14400) > 1 {
		t.Fatalf("unexpected area: %v", loops[0].AreaSqMeters)
	}
	ring := loops[0].Ring
	if ring[0] != ring[len(ring)-1] {
		t.Fatalf("expected closed ring")
	}
	if loops[0].ClosedAtMs != points[4].TimestampMs || loops[0].ID == "" {
		t.Fatalf("unexpected loop metadata: %+v", loops[0])
	}
	if stats.Loops != 1 || stats.Accepted != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestStopsShortOfGate(t *testing.T) {
	cfg := testConfig()
	cfg.ClosureRadiusMeters = 10
	points := path([2]float64{0, 0}, [2]float64{120, 0}, [2]float64{120, -120}, [2]float64{0, -120}, [2]float64{0, -15})
	loops, _, err := Detect(cfg, points)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(loops) != 0 {
		t.Fatalf("expected no loops, got %d", len(loops))
	}
}

func TestSkinnyRectangleThreshold(t *testing.T) {
	points := path([2]float64{0, 0}, [2]float64{400, 0}, [2]float64{400, 10}, [2]float64{0, 10}, [2]float64{0, 0})

	cfg := testConfig()
	cfg.MinAreaSqMeters = 4000.01
	loops, stats, _ := Detect(cfg, points)
	if len(loops) != 0 {
		t.Fatalf("expected rejection above 4000 m²")
	}
	if stats.RejectedArea == 0 {
		t.Fatalf("expected area rejection to be counted")
	}

	cfg.MinAreaSqMeters = 3999.99
	loops, _, _ = Detect(cfg, points)
	if len(loops) != 1 {
		t.Fatalf("expected acceptance at or below 4000 m²")
	}
	if math.Abs(loops[0].AreaSqMeters-4000) > 0.01 {
		t.Fatalf("unexpected area: %v", loops[0].AreaSqMeters)
	}
}

func TestSelfCrossingRejected(t *testing.T) {
	points := path(
		[2]float64{0, 0}, [2]float64{200, 0}, [2]float64{200, 200}, [2]float64{100, 200},
		[2]float64{100, -60}, [2]float64{0, -60}, [2]float64{0, -5},
	)
	loops, stats, err := Detect(testConfig(), points)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(loops) != 0 {
		t.Fatalf("expected crossing path to be rejected")
	}
	if stats.RejectedCrossing == 0 {
		t.Fatalf("expected crossing rejection to be counted")
	}
}

func TestDebounceDropsNoise(t *testing.T) {
	d := NewDetector(testConfig())
	points := path([2]float64{0, 0}, [2]float64{1, 1}, [2]float64{2, -1}, [2]float64{30, 0})
	var accepted int
	for _, p := range points {
		step, err := d.Push(p)
		if err != nil {
			t.Fatalf("push: %v", err)
		}
		if step.Accepted {
			accepted++
		}
	}
	if accepted != 2 || d.Stats().Dropped != 2 {
		t.Fatalf("unexpected debounce result: accepted=%d stats=%+v", accepted, d.Stats())
	}
	if len(d.OpenRing()) != 2 {
		t.Fatalf("expected two points in open ring")
	}
}

func TestLoopsChainFromClosingPoint(t *testing.T) {
	points := path(
		[2]float64{0, 0}, [2]float64{120, 0}, [2]float64{120, -120}, [2]float64{0, -120}, [2]float64{0, 0},
		[2]float64{-120, 0}, [2]float64{-120, 120}, [2]float64{0, 120}, [2]float64{0, 2},
	)
	loops, _, err := Detect(testConfig(), points)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(loops) != 2 {
		t.Fatalf("expected two chained loops, got %d", len(loops))
	}
	if loops[1].Ring[0] != points[4].LatLng() {
		t.Fatalf("second loop should start at the first loop's closing point")
	}
}

func TestStateTransitionsAndStop(t *testing.T) {
	d := NewDetector(testConfig())
	if d.State() != StateIdle {
		t.Fatalf("expected idle")
	}
	points := path([2]float64{0, 0}, [2]float64{120, 0}, [2]float64{120, -120}, [2]float64{0, -120}, [2]float64{0, 0}, [2]float64{-60, 0})
	for i, p := range points {
		step, err := d.Push(p)
		if err != nil {
			t.Fatalf("push: %v", err)
		}
		switch {
		case i == 4:
			if step.Loop == nil || d.State() != StateClosed {
				t.Fatalf("expected closed state after loop")
			}
		default:
			if d.State() != StateTracking {
				t.Fatalf("expected tracking at point %d, got %v", i, d.State())
			}
		}
	}

	d.Stop()
	if d.State() != StateStopped || d.OpenRing() != nil {
		t.Fatalf("expected stopped detector with no open ring")
	}
	if d.Stats().DiscardedOnStop != 2 {
		t.Fatalf("expected open ring to be discarded, got %+v", d.Stats())
	}
	if _, err := d.Push(points[0]); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestPushValidation(t *testing.T) {
	d := NewDetector(testConfig())
	var verr *ValidationError
	if _, err := d.Push(GpsPoint{Latitude: math.NaN(), Longitude: 0, TimestampMs: 1}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for NaN")
	}
	if _, err := d.Push(GpsPoint{Latitude: 91, Longitude: 0, TimestampMs: 1}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for out of range latitude")
	}
	if _, err := d.Push(GpsPoint{Latitude: 1, Longitude: 1, TimestampMs: 10}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := d.Push(GpsPoint{Latitude: 1.01, Longitude: 1, TimestampMs: 5}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for out of order timestamp")
	}
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{MinStepMeters: -1, ClosureRadiusMeters: 0, MinPointsForLoop: 1, MinAreaSqMeters: -5}.Normalize()
	if cfg != DefaultConfig() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if StateClosed.String() != "CLOSED" {
		t.Fatalf("unexpected state name")
	}
}

func TestRetraceNeverClosesLoop(t *testing.T) {
	cfg := testConfig()
	cfg.MinAreaSqMeters = 0
	points := path([2]float64{0, 0}, [2]float64{10, 0}, [2]float64{20, 0}, [2]float64{10, 0})
	loops, stats, err := Detect(cfg, points)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(loops) != 0 {
		t.Fatalf("out-and-back path produced %d loops, first area %v", len(loops), loops[0].AreaSqMeters)
	}
	if stats.RejectedArea+stats.RejectedCrossing == 0 {
		t.Fatalf("expected the closure to be rejected, got %+v", stats)
	}
}
