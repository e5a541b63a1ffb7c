// Package loop turns an ordered GPS point stream into closed, validated
// loops that can be claimed as territory.
package loop

import (
	"errors"

	"backend-territory/internal/geodesy"
	"backend-territory/internal/geom"

	"github.com/google/uuid"
)

var ErrStopped = errors.New("detector stopped")

// Detector is a single-session state machine. It is not safe for
// concurrent use; points must arrive in order.
type Detector struct {
	cfg   Config
	state State
	ring  []GpsPoint
	stats Stats
	newID func() string
}

func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg:   cfg.Normalize(),
		state: StateIdle,
		newID: uuid.NewString,
	}
}

func (d *Detector) State() State { return d.state }

func (d *Detector) Stats() Stats { return d.stats }

func (d *Detector) Config() Config { return d.cfg }

// Clone returns an independent copy, so a point can be tried without
// committing it.
func (d *Detector) Clone() *Detector {
	c := *d
	c.ring = append([]GpsPoint(nil), d.ring...)
	return &c
}

// OpenRing returns a copy of the current candidate ring.
func (d *Detector) OpenRing() []GpsPoint {
	return append([]GpsPoint(nil), d.ring...)
}

// Push feeds the next point. Points closer than MinStepMeters to the last
// accepted point are dropped. A returned Loop has already been validated;
// the next candidate ring starts at its closing point.
func (d *Detector) Push(p GpsPoint) (Step, error) {
	if d.state == StateStopped {
		return Step{}, ErrStopped
	}
	ll := p.LatLng()
	if !ll.IsFinite() {
		return Step{}, &ValidationError{Reason: "non-finite coordinate"}
	}
	if !ll.InRange() {
		return Step{}, &ValidationError{Reason: "coordinate out of range"}
	}

	if n := len(d.ring); n > 0 {
		last := d.ring[n-1]
		if p.TimestampMs < last.TimestampMs {
			return Step{}, &ValidationError{Reason: "timestamp went backwards"}
		}
		if geodesy.HaversineMeters(last.LatLng(), ll) < d.cfg.MinStepMeters {
			d.stats.Dropped++
			return Step{}, nil
		}
	}

	d.ring = append(d.ring, p)
	d.stats.Accepted++
	d.state = StateTracking

	loop := d.tryClose()
	if loop == nil {
		return Step{Accepted: true}, nil
	}
	d.ring = []GpsPoint{p}
	d.state = StateClosed
	d.stats.Loops++
	return Step{Accepted: true, Loop: loop}, nil
}

// Stop ends tracking. The open candidate ring is discarded.
func (d *Detector) Stop() {
	if d.state == StateStopped {
		return
	}
	if len(d.ring) > 1 {
		d.stats.DiscardedOnStop = len(d.ring)
	}
	d.ring = nil
	d.state = StateStopped
}

// tryClose looks for the earliest gate point within the closure radius of
// the newest point that yields a valid loop.
func (d *Detector) tryClose() *Loop {
	n := len(d.ring)
	if n < d.cfg.MinPointsForLoop {
		return nil
	}
	cur := d.ring[n-1]
	curLL := cur.LatLng()

	for j := 0; j <= n-d.cfg.MinPointsForLoop; j++ {
		gate := d.ring[j].LatLng()
		if geodesy.HaversineMeters(gate, curLL) > d.cfg.ClosureRadiusMeters {
			continue
		}

		open := make([]geodesy.LatLng, 0, n-j+1)
		for _, p := range d.ring[j:] {
			open = append(open, p.LatLng())
		}
		closed := open
		if open[len(open)-1] != gate {
			closed = append(open, gate)
		}

		area := geodesy.PolygonAreaSqMeters(closed)
		if area <= geom.AreaTolerance || area < d.cfg.MinAreaSqMeters {
			d.stats.RejectedArea++
			continue
		}
		if !geom.IsSimple(open) {
			d.stats.RejectedCrossing++
			continue
		}

		return &Loop{
			ID:           d.newID(),
			ClosedAtMs:   cur.TimestampMs,
			AreaSqMeters: area,
			Ring:         closed,
		}
	}
	return nil
}

// Detect replays a finished point list through a fresh detector.
func Detect(cfg Config, points []GpsPoint) ([]Loop, Stats, error) {
	d := NewDetector(cfg)
	var loops []Loop
	for _, p := range points {
		step, err := d.Push(p)
		if err != nil {
			return nil, d.Stats(), err
		}
		if step.Loop != nil {
			loops = append(loops, *step.Loop)
		}
	}
	d.Stop()
	return loops, d.Stats(), nil
}
