// Package xp scores claimed area and aggregates the resulting ledger into
// leaderboards.
package xp

import (
	"math"
	"time"
)

const (
	SqMetersPerSqMile = 2589988.110336
	DefaultPerSqMile  = 1000.0
)

const (
	ReasonClaim  = "claim"
	ReasonExpand = "expand"
)

// AreaToXp converts an area to XP at rate XP per square mile, rounded to the
// nearest integer. Any positive area is worth at least 1 XP; zero, negative
// and non-finite areas are worth 0.
func AreaToXp(areaSqMeters, perSqMile float64) int {
	if math.IsNaN(areaSqMeters) || math.IsInf(areaSqMeters, 0) || areaSqMeters <= 0 {
		return 0
	}
	if math.IsNaN(perSqMile) || math.IsInf(perSqMile, 0) || perSqMile <= 0 {
		return 0
	}
	xp := math.Round(areaSqMeters / SqMetersPerSqMile * perSqMile)
	if xp < 1 {
		return 1
	}
	if xp > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(xp)
}

type Event struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	DeltaXp     int       `json:"delta_xp"`
	TerritoryID string    `json:"territory_id,omitempty"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// Aggregate sums DeltaXp over events created inside w, bounds inclusive.
func Aggregate(events []Event, w Window) int {
	var total int
	for _, e := range events {
		if w.Contains(e.CreatedAt) {
			total += e.DeltaXp
		}
	}
	return total
}
