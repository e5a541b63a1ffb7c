package session

import (
	"errors"
	"math/rand"

	"backend-territory/internal/geodesy"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session already ended")
	ErrLoopNotFound    = errors.New("loop not found")
)

type PathPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	T   int64   `json:"t"`
}

func (p PathPoint) LatLng() geodesy.LatLng {
	return geodesy.LatLng{Lat: p.Lat, Lng: p.Lng}
}

// Loop is a detected loop as persisted with its session. TerritoryID is set
// once the loop has been submitted as a claim.
type Loop struct {
	ID            string           `json:"id"`
	ClosedAtMs    int64            `json:"closed_at_ms"`
	AreaSqMeters  float64          `json:"area_sq_meters"`
	Ring          []geodesy.LatLng `json:"ring"`
	TerritoryID   string           `json:"territory_id,omitempty"`
	SubmittedAtMs int64            `json:"submitted_at_ms,omitempty"`
}

func (l Loop) Submitted() bool { return l.TerritoryID != "" }

// Mask is a fixed displacement applied to rendered coordinates.
type Mask struct {
	BearingDeg float64 `json:"bearing_deg"`
	DistanceM  float64 `json:"distance_m"`
}

const (
	MaskMinMeters = 6000
	MaskMaxMeters = 10000
)

// RandomMask picks a uniformly random bearing and a distance between
// MaskMinMeters and MaskMaxMeters.
func RandomMask() *Mask {
	return &Mask{
		BearingDeg: rand.Float64() * 360,
		DistanceM:  MaskMinMeters + rand.Float64()*(MaskMaxMeters-MaskMinMeters),
	}
}

func (m *Mask) Apply(p geodesy.LatLng) geodesy.LatLng {
	if m == nil || m.DistanceM == 0 {
		return p
	}
	return geodesy.Destination(p, m.BearingDeg, m.DistanceM)
}

func (m *Mask) ApplyRing(ring []geodesy.LatLng) []geodesy.LatLng {
	out := make([]geodesy.LatLng, len(ring))
	for i, p := range ring {
		out[i] = m.Apply(p)
	}
	return out
}

type WalkSession struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id,omitempty"`
	StartedAtMs int64       `json:"started_at_ms"`
	EndedAtMs   *int64      `json:"ended_at_ms,omitempty"`
	Points      []PathPoint `json:"points"`
	Loops       []Loop      `json:"loops"`
	Mask        *Mask       `json:"mask,omitempty"`
}

func (s WalkSession) Ended() bool { return s.EndedAtMs != nil }

// DistanceMeters is the length of the recorded path.
func (s WalkSession) DistanceMeters() float64 {
	var total float64
	for i := 1; i < len(s.Points); i++ {
		total += geodesy.HaversineMeters(s.Points[i-1].LatLng(), s.Points[i].LatLng())
	}
	return total
}

func (s WalkSession) LoopAreaSqMeters() float64 {
	var total float64
	for _, l := range s.Loops {
		total += l.AreaSqMeters
	}
	return total
}

// Pending returns the loops not yet submitted as claims.
func (s WalkSession) Pending() []Loop {
	var out []Loop
	for _, l := range s.Loops {
		if !l.Submitted() {
			out = append(out, l)
		}
	}
	return out
}
