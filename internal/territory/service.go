// Package territory persists claimed loops and keeps friends' territories
// from overlapping by subtracting each new claim from the neighbours it
// covers.
package territory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"backend-territory/internal/geom"
	"backend-territory/internal/logger"
	"backend-territory/internal/xp"

	"github.com/google/uuid"
)

// FriendProvider returns the users whose territories a claim contests.
type FriendProvider interface {
	AcceptedFriendIDs(ctx context.Context, userID string) ([]string, error)
}

// Ledger records XP events.
type Ledger interface {
	Append(ctx context.Context, e xp.Event) (xp.Event, error)
}

// Notifier pushes application-state events to a user's connected clients.
type Notifier interface {
	NotifyUser(ctx context.Context, userID, eventType string, data any)
}

var differenceFn = geom.Difference

const (
	EventClaimed  = "territory.claimed"
	EventAdjusted = "territory.adjusted"
	EventLost     = "territory.lost"
)

type Service struct {
	store     Store
	friends   FriendProvider
	ledger    Ledger
	notifier  Notifier
	perSqMile float64
	log       *slog.Logger
	newID     func() string
}

// NewService wires the resolver. ledger and notifier may be nil.
func NewService(store Store, friends FriendProvider, ledger Ledger, notifier Notifier, xpPerSqMile float64) *Service {
	if xpPerSqMile <= 0 {
		xpPerSqMile = xp.DefaultPerSqMile
	}
	return &Service{
		store:     store,
		friends:   friends,
		ledger:    ledger,
		notifier:  notifier,
		perSqMile: xpPerSqMile,
		log:       logger.L(),
		newID:     uuid.NewString,
	}
}

// Submit persists a new territory for ownerID, then subtracts it from every
// intersecting friend territory. Neighbour failures are reported in
// Result.Outcomes and never fail the call once the territory is stored.
func (s *Service) Submit(ctx context.Context, ownerID string, claim Claim) (Result, error) {
	if ownerID == "" {
		return Result{}, &ValidationError{Reason: "owner required"}
	}
	g, area, err := s.validate(claim)
	if err != nil {
		return Result{}, err
	}

	t, err := s.store.Insert(ctx, Territory{
		ID:           s.newID(),
		UserID:       ownerID,
		Geometry:     g,
		Coordinates:  g.OuterRings(),
		AreaSqMeters: area,
	})
	if err != nil {
		return Result{}, err
	}

	awarded := s.award(ctx, ownerID, t.ID, xp.AreaToXp(area, s.perSqMile), xp.ReasonClaim)
	s.notify(ctx, ownerID, EventClaimed, map[string]any{
		"territory_id":   t.ID,
		"area_sq_meters": t.AreaSqMeters,
		"xp":             awarded,
	})

	return Result{Territory: t, XpAwarded: awarded, Outcomes: s.resolve(ctx, t)}, nil
}

// Update overwrites an owned territory's shape in place and resolves
// overlaps against the new shape. Only growth in XP value is awarded.
func (s *Service) Update(ctx context.Context, ownerID, territoryID string, claim Claim) (Result, error) {
	existing, err := s.store.Get(ctx, territoryID)
	if err != nil {
		return Result{}, err
	}
	if existing.UserID != ownerID {
		return Result{}, ErrNotFound
	}
	g, area, err := s.validate(claim)
	if err != nil {
		return Result{}, err
	}

	prevXp := xp.AreaToXp(existing.AreaSqMeters, s.perSqMile)
	existing.Geometry = g
	existing.Coordinates = g.OuterRings()
	existing.AreaSqMeters = area
	t, err := s.store.Overwrite(ctx, existing)
	if err != nil {
		return Result{}, err
	}

	var awarded int
	if delta := xp.AreaToXp(area, s.perSqMile) - prevXp; delta > 0 {
		awarded = s.award(ctx, ownerID, t.ID, delta, xp.ReasonExpand)
	}
	return Result{Territory: t, XpAwarded: awarded, Outcomes: s.resolve(ctx, t)}, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Territory, error) {
	return s.store.ListByOwner(ctx, userID)
}

func (s *Service) Get(ctx context.Context, id string) (Territory, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) validate(claim Claim) (geom.Geometry, float64, error) {
	g, err := geom.FromRings(claim.Coordinates)
	if err != nil {
		return geom.Geometry{}, 0, &ValidationError{Reason: "bad coordinates", Err: err}
	}
	for _, ring := range g.OuterRings() {
		if !geom.IsSimpleRing(ring) {
			return geom.Geometry{}, 0, &ValidationError{Reason: "ring self-intersects"}
		}
	}

	area := claim.AreaSqMeters
	if math.IsNaN(area) || math.IsInf(area, 0) || area < 0 {
		return geom.Geometry{}, 0, &ValidationError{Reason: "area must be a finite, non-negative number"}
	}
	if area == 0 {
		area = geom.Area(g)
	}
	if area <= 0 {
		return geom.Geometry{}, 0, &ValidationError{Reason: "claim encloses no area"}
	}
	return g, area, nil
}

func (s *Service) award(ctx context.Context, userID, territoryID string, amount int, reason string) int {
	if s.ledger == nil || amount <= 0 {
		return 0
	}
	_, err := s.ledger.Append(ctx, xp.Event{UserID: userID, DeltaXp: amount, TerritoryID: territoryID, Reason: reason})
	if err != nil {
		s.log.Error("xp append failed", "user_id", userID, "territory_id", territoryID, "error", err)
		return 0
	}
	return amount
}

func (s *Service) resolve(ctx context.Context, t Territory) []Outcome {
	outcomes := []Outcome{}
	if s.friends == nil {
		return outcomes
	}
	friendIDs, err := s.friends.AcceptedFriendIDs(ctx, t.UserID)
	if err != nil {
		s.log.Warn("overlap scan skipped", "territory_id", t.ID, "reason", "friend lookup failed", "error", err)
		return append(outcomes, Outcome{Kind: OutcomeSkipped, Reason: "friend lookup failed: " + err.Error()})
	}
	if len(friendIDs) == 0 {
		return outcomes
	}
	neighbors, err := s.store.Intersecting(ctx, t.Geometry, friendIDs, t.ID)
	if err != nil {
		s.log.Warn("overlap scan skipped", "territory_id", t.ID, "reason", "intersect query failed", "error", err)
		return append(outcomes, Outcome{Kind: OutcomeSkipped, Reason: "intersect query failed: " + err.Error()})
	}

	for _, n := range neighbors {
		o := s.adjust(ctx, n, t)
		switch o.Kind {
		case OutcomeSkipped:
			s.log.Warn("neighbor adjustment skipped", "territory_id", t.ID, "neighbor_id", n.ID, "reason", o.Reason)
		case OutcomeAdjusted:
			s.notify(ctx, n.UserID, EventAdjusted, map[string]any{
				"territory_id":   n.ID,
				"area_sq_meters": o.AreaAfter,
				"by_user_id":     t.UserID,
			})
		case OutcomeDeleted:
			s.notify(ctx, n.UserID, EventLost, map[string]any{
				"territory_id": n.ID,
				"by_user_id":   t.UserID,
			})
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (s *Service) adjust(ctx context.Context, n Territory, claim Territory) Outcome {
	o := Outcome{NeighborID: n.ID, OwnerID: n.UserID, AreaBefore: n.AreaSqMeters}
	skip := func(reason string) Outcome {
		o.Kind = OutcomeSkipped
		o.Reason = reason
		o.AreaAfter = n.AreaSqMeters
		return o
	}

	shared, err := geom.Intersection(n.Geometry, claim.Geometry)
	if err != nil {
		return skip(err.Error())
	}
	if geom.Area(shared) <= geom.AreaTolerance {
		return skip("no overlapping area")
	}
	rest, err := differenceFn(n.Geometry, claim.Geometry)
	if err != nil {
		return skip(err.Error())
	}

	remaining := geom.Area(rest)
	before := geom.Area(n.Geometry)
	if want := before - geom.Area(shared); math.Abs(remaining-want) > math.Max(1, before*1e-3) {
		gerr := &geom.GeometryError{Op: "difference", Err: fmt.Errorf("remaining area %.1f m², expected %.1f m²", remaining, want)}
		return skip(gerr.Error())
	}
	if rest.IsEmpty() || remaining <= geom.AreaTolerance {
		if err := s.store.Delete(ctx, n.ID); err != nil {
			return skip(storeReason("delete", err))
		}
		o.Kind = OutcomeDeleted
		return o
	}

	n.Geometry = rest
	n.Coordinates = rest.OuterRings()
	n.AreaSqMeters = remaining
	if _, err := s.store.Overwrite(ctx, n); err != nil {
		return skip(storeReason("update", err))
	}
	o.Kind = OutcomeAdjusted
	o.AreaAfter = remaining
	return o
}

func storeReason(op string, err error) string {
	if errors.Is(err, ErrNotFound) {
		return op + " failed: neighbor no longer exists"
	}
	return op + " failed: " + err.Error()
}

func (s *Service) notify(ctx context.Context, userID, eventType string, data any) {
	if s.notifier != nil {
		s.notifier.NotifyUser(ctx, userID, eventType, data)
	}
}
