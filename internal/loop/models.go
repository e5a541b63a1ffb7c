package loop

import (
	"fmt"

	"backend-territory/internal/geodesy"
)

// GpsPoint is one fix from a location stream.
type GpsPoint struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	TimestampMs int64   `json:"timestamp_ms"`
}

func (p GpsPoint) LatLng() geodesy.LatLng {
	return geodesy.LatLng{Lat: p.Latitude, Lng: p.Longitude}
}

// Loop is a validated closed polygon. Ring is closed (first == last).
type Loop struct {
	ID           string           `json:"id"`
	ClosedAtMs   int64            `json:"closed_at_ms"`
	AreaSqMeters float64          `json:"area_sq_meters"`
	Ring         []geodesy.LatLng `json:"ring"`
}

type State int

const (
	StateIdle State = iota
	StateTracking
	StateClosed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTracking:
		return "TRACKING"
	case StateClosed:
		return "CLOSED"
	case StateStopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds the detector thresholds. Distances are meters, areas m².
type Config struct {
	MinStepMeters       float64 `json:"min_step_meters"`
	ClosureRadiusMeters float64 `json:"closure_radius_meters"`
	MinPointsForLoop    int     `json:"min_points_for_loop"`
	MinAreaSqMeters     float64 `json:"min_area_sq_meters"`
}

func DefaultConfig() Config {
	return Config{
		MinStepMeters:       5,
		ClosureRadiusMeters: 20,
		MinPointsForLoop:    4,
		MinAreaSqMeters:     1000,
	}
}

// Normalize replaces unusable thresholds with defaults.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.MinStepMeters < 0 {
		c.MinStepMeters = def.MinStepMeters
	}
	if c.ClosureRadiusMeters <= 0 {
		c.ClosureRadiusMeters = def.ClosureRadiusMeters
	}
	if c.MinPointsForLoop < 3 {
		c.MinPointsForLoop = def.MinPointsForLoop
	}
	if c.MinAreaSqMeters < 0 {
		c.MinAreaSqMeters = def.MinAreaSqMeters
	}
	return c
}

// Stats counts what the detector did with its input.
type Stats struct {
	Accepted         int `json:"accepted"`
	Dropped          int `json:"dropped"`
	Loops            int `json:"loops"`
	RejectedArea     int `json:"rejected_area"`
	RejectedCrossing int `json:"rejected_crossing"`
	DiscardedOnStop  int `json:"discarded_on_stop"`
}

// Step is the outcome of feeding one point.
type Step struct {
	Accepted bool
	Loop     *Loop
}

// ValidationError reports a point the detector cannot use.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid point: " + e.Reason }
