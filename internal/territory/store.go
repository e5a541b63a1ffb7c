package territory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"backend-territory/internal/db"
	"backend-territory/internal/geodesy"
	"backend-territory/internal/geom"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
)

// Store persists territories. Each call is atomic on its own; callers do not
// get a transaction spanning calls.
type Store interface {
	// Insert saves t and increments its owner's territory count.
	Insert(ctx context.Context, t Territory) (Territory, error)
	Get(ctx context.Context, id string) (Territory, error)
	ListByOwner(ctx context.Context, userID string) ([]Territory, error)
	// Overwrite replaces geometry, coordinates and area in place.
	Overwrite(ctx context.Context, t Territory) (Territory, error)
	// Delete removes the territory and decrements its owner's count, never
	// below zero.
	Delete(ctx context.Context, id string) error
	// Intersecting finds territories owned by ownerIDs whose geometry
	// touches g, excluding excludeID.
	Intersecting(ctx context.Context, g geom.Geometry, ownerIDs []string, excludeID string) ([]Territory, error)
}

type PostgresStore struct {
	db db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

const selectTerritory = `
	SELECT id, user_id, ST_AsGeoJSON(geometry), coordinates::text, area_sq_meters, created_at, updated_at
	FROM territories`

func (s *PostgresStore) Insert(ctx context.Context, t Territory) (Territory, error) {
	geometry, coordinates, err := encodeShape(t)
	if err != nil {
		return Territory{}, err
	}
	row := s.db.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO territories (id, user_id, geometry, coordinates, area_sq_meters)
			VALUES ($1, $2, ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($3), 4326)), $4::jsonb, $5)
			RETURNING created_at, updated_at
		), counted AS (
			UPDATE users SET territory_count = territory_count + 1 WHERE id=$2
		)
		SELECT created_at, updated_at FROM inserted
	`, t.ID, t.UserID, geometry, coordinates, t.AreaSqMeters)
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return Territory{}, err
	}
	return t, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Territory, error) {
	row := s.db.QueryRow(ctx, selectTerritory+` WHERE id=$1`, id)
	t, err := scanTerritory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Territory{}, ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) ListByOwner(ctx context.Context, userID string) ([]Territory, error) {
	rows, err := s.db.Query(ctx, selectTerritory+` WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectTerritories(rows)
}

func (s *PostgresStore) Overwrite(ctx context.Context, t Territory) (Territory, error) {
	geometry, coordinates, err := encodeShape(t)
	if err != nil {
		return Territory{}, err
	}
	row := s.db.QueryRow(ctx, `
		UPDATE territories
		SET geometry = ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($2), 4326)),
		    coordinates = $3::jsonb,
		    area_sq_meters = $4,
		    updated_at = now()
		WHERE id=$1
		RETURNING created_at, updated_at
	`, t.ID, geometry, coordinates, t.AreaSqMeters)
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Territory{}, ErrNotFound
		}
		return Territory{}, err
	}
	return t, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	var ownerID string
	err := s.db.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM territories WHERE id=$1 RETURNING user_id
		), counted AS (
			UPDATE users SET territory_count = GREATEST(territory_count - 1, 0)
			WHERE id IN (SELECT user_id FROM deleted)
		)
		SELECT user_id FROM deleted
	`, id).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) Intersecting(ctx context.Context, g geom.Geometry, ownerIDs []string, excludeID string) ([]Territory, error) {
	if len(ownerIDs) == 0 || g.IsEmpty() {
		return nil, nil
	}
	shape, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, selectTerritory+`
		WHERE user_id = ANY($1) AND id <> $2
		  AND ST_Intersects(geometry, ST_SetSRID(ST_GeomFromGeoJSON($3), 4326))
	`, ownerIDs, excludeID, string(shape))
	if err != nil {
		return nil, err
	}
	return collectTerritories(rows)
}

func encodeShape(t Territory) (string, string, error) {
	geometry, err := json.Marshal(t.Geometry)
	if err != nil {
		return "", "", fmt.Errorf("encode geometry: %w", err)
	}
	coordinates, err := json.Marshal(t.Coordinates)
	if err != nil {
		return "", "", fmt.Errorf("encode coordinates: %w", err)
	}
	return string(geometry), string(coordinates), nil
}

func scanTerritory(row pgx.Row) (Territory, error) {
	var t Territory
	var geometry, coordinates string
	if err := row.Scan(&t.ID, &t.UserID, &geometry, &coordinates, &t.AreaSqMeters, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Territory{}, err
	}
	if err := json.Unmarshal([]byte(geometry), &t.Geometry); err != nil {
		return Territory{}, &geom.GeometryError{Op: "decode", Err: err}
	}
	if err := json.Unmarshal([]byte(coordinates), &t.Coordinates); err != nil {
		return Territory{}, fmt.Errorf("decode coordinates: %w", err)
	}
	return t, nil
}

func collectTerritories(rows pgx.Rows) ([]Territory, error) {
	defer rows.Close()
	var out []Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu          sync.RWMutex
	territories map[string]Territory
	counts      map[string]int
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		territories: map[string]Territory{},
		counts:      map[string]int{},
		now:         time.Now,
	}
}

func (s *MemoryStore) TerritoryCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[userID]
}

func (s *MemoryStore) Insert(_ context.Context, t Territory) (Territory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.territories[t.ID]; ok {
		return Territory{}, fmt.Errorf("territory %s already exists", t.ID)
	}
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	t.Coordinates = copyRings(t.Coordinates)
	s.territories[t.ID] = t
	s.counts[t.UserID]++
	return t, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Territory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.territories[id]
	if !ok {
		return Territory{}, ErrNotFound
	}
	return t, nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, userID string) ([]Territory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Territory
	for _, t := range s.territories {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Overwrite(_ context.Context, t Territory) (Territory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.territories[t.ID]
	if !ok {
		return Territory{}, ErrNotFound
	}
	cur.Geometry = t.Geometry
	cur.Coordinates = copyRings(t.Coordinates)
	cur.AreaSqMeters = t.AreaSqMeters
	cur.UpdatedAt = s.now()
	s.territories[t.ID] = cur
	return cur, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.territories[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.territories, id)
	if s.counts[t.UserID] > 0 {
		s.counts[t.UserID]--
	}
	return nil
}

func (s *MemoryStore) Intersecting(_ context.Context, g geom.Geometry, ownerIDs []string, excludeID string) ([]Territory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owners := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	var out []Territory
	for _, t := range s.territories {
		if t.ID == excludeID || !owners[t.UserID] {
			continue
		}
		if !t.Geometry.Bound().Intersects(g.Bound()) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyRings(rings [][]geodesy.LatLng) [][]geodesy.LatLng {
	out := make([][]geodesy.LatLng, len(rings))
	for i, r := range rings {
		out[i] = append([]geodesy.LatLng(nil), r...)
	}
	return out
}
