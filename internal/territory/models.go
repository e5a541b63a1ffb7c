package territory

import (
	"errors"
	"time"

	"backend-territory/internal/geodesy"
	"backend-territory/internal/geom"
)

var ErrNotFound = errors.New("territory not found")

// ValidationError rejects a claim before anything is written.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return "invalid claim: " + e.Reason + ": " + e.Err.Error()
	}
	return "invalid claim: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

type Territory struct {
	ID           string             `json:"territory_id"`
	UserID       string             `json:"user_id"`
	Geometry     geom.Geometry      `json:"geometry"`
	Coordinates  [][]geodesy.LatLng `json:"coordinates"`
	AreaSqMeters float64            `json:"area_sq_meters"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Claim is a submitted loop: closed rings plus the area measured on the
// device. A zero area is recomputed from the rings.
type Claim struct {
	Coordinates  [][]geodesy.LatLng `json:"coordinates"`
	AreaSqMeters float64            `json:"area_sq_meters"`
}

type OutcomeKind string

const (
	OutcomeAdjusted OutcomeKind = "adjusted"
	OutcomeDeleted  OutcomeKind = "deleted"
	OutcomeSkipped  OutcomeKind = "skipped"
)

// Outcome is what happened to one neighbouring territory.
type Outcome struct {
	NeighborID string      `json:"neighbor_id,omitempty"`
	OwnerID    string      `json:"owner_id,omitempty"`
	Kind       OutcomeKind `json:"kind"`
	Reason     string      `json:"reason,omitempty"`
	AreaBefore float64     `json:"area_before,omitempty"`
	AreaAfter  float64     `json:"area_after,omitempty"`
}

type Result struct {
	Territory Territory `json:"territory"`
	XpAwarded int       `json:"xp_awarded"`
	Outcomes  []Outcome `json:"outcomes"`
}
