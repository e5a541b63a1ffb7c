package tracking

import (
	"backend-territory/internal/loop"
	"backend-territory/internal/session"
)

const EventLoopClosed = "loop.closed"

// PointResult reports what the detector did with one pushed point. Loop is
// the rendered (masked) view of a loop closed by this point.
type PointResult struct {
	Accepted bool          `json:"accepted"`
	State    string        `json:"state"`
	Loop     *session.Loop `json:"loop,omitempty"`
}

type Summary struct {
	SessionID        string     `json:"session_id"`
	State            string     `json:"state"`
	StartedAtMs      int64      `json:"started_at_ms"`
	EndedAtMs        *int64     `json:"ended_at_ms,omitempty"`
	DurationSec      int64      `json:"duration_sec"`
	PointCount       int        `json:"point_count"`
	LoopCount        int        `json:"loop_count"`
	PendingLoops     int        `json:"pending_loops"`
	DistanceM        float64    `json:"distance_m"`
	LoopAreaSqMeters float64    `json:"loop_area_sq_meters"`
	Masked           bool       `json:"masked"`
	Stats            loop.Stats `json:"stats"`
}

type DetectRequest struct {
	Points []loop.GpsPoint `json:"points"`
	Config *loop.Config    `json:"config,omitempty"`
}

type DetectResult struct {
	Loops []loop.Loop `json:"loops"`
	Stats loop.Stats  `json:"stats"`
}
